// Package server exposes the forecast pipeline over HTTP for the
// dashboard front end.
package server

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/case-forecast/internal/config"
	"github.com/sells-group/case-forecast/internal/fetcher"
	"github.com/sells-group/case-forecast/internal/metrics"
	"github.com/sells-group/case-forecast/internal/pipeline"
	"github.com/sells-group/case-forecast/internal/resilience"
	"github.com/sells-group/case-forecast/internal/session"
	"github.com/sells-group/case-forecast/internal/store"
)

// Server holds the HTTP handlers' dependencies.
type Server struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	sessions session.Store
	runs     store.Store
	fetcher  fetcher.Fetcher
	breakers *resilience.ProviderBreakers
	validate *validator.Validate
}

// New creates a Server. runs may be nil, which disables the run history
// endpoints.
func New(
	cfg *config.Config,
	p *pipeline.Pipeline,
	sessions session.Store,
	runs store.Store,
	f fetcher.Fetcher,
	breakers *resilience.ProviderBreakers,
) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: p,
		sessions: sessions,
		runs:     runs,
		fetcher:  f,
		breakers: breakers,
		validate: newValidator(),
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(recordMetrics)

		r.Post("/sessions", s.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Post("/refresh", s.refreshSession)
			r.Post("/forecast", s.runForecast)
			r.Get("/report", s.getReport)
			r.Get("/dashboard", s.getDashboard)
		})

		r.Get("/runs", s.listRuns)
		r.Get("/runs/{id}", s.getRun)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	states := map[string]string{}
	if s.breakers != nil {
		states = s.breakers.States()
	}
	for name, state := range states {
		metrics.SetBreakerState(name, state)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"breakers": states,
	})
}

// recordMetrics counts requests by chi route pattern so path IDs do not
// explode label cardinality.
func recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordAPIRequest(r.Method, route, status, time.Since(start))
	})
}
