package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/case-forecast/internal/server"
	"github.com/sells-group/case-forecast/internal/session"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the interactive forecasting API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		sessions, err := initSessions(ctx)
		if err != nil {
			return err
		}
		defer sessions.Close() //nolint:errcheck

		api := server.New(cfg, env.Pipeline, sessions, env.Store, env.Fetcher, env.Breakers)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("sessions", cfg.Server.SessionBackend),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// initSessions opens the configured session backend. The memory backend
// sweeps expired sessions until ctx is done.
func initSessions(ctx context.Context) (session.Store, error) {
	ttl := time.Duration(cfg.Server.SessionTTLMinutes) * time.Minute

	switch cfg.Server.SessionBackend {
	case "redis":
		rs, err := session.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, ttl)
		if err != nil {
			return nil, err
		}
		return rs, nil
	case "", "memory":
		ms, err := session.NewMemoryStore(cfg.Server.SessionMax, ttl)
		if err != nil {
			return nil, err
		}
		go sweepSessions(ctx, ms, time.Minute)
		return ms, nil
	default:
		return nil, eris.Errorf("unknown session backend %q", cfg.Server.SessionBackend)
	}
}

func sweepSessions(ctx context.Context, ms *session.MemoryStore, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := ms.CleanupExpired(); n > 0 {
				zap.L().Debug("expired sessions removed", zap.Int("count", n))
			}
		}
	}
}
