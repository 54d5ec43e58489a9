package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/case-forecast/internal/ingest"
	"github.com/sells-group/case-forecast/internal/model"
)

var batchHorizon int

var batchCmd = &cobra.Command{
	Use:   "batch FILE...",
	Short: "Forecast several case-count files concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		req, err := buildRequest(batchHorizon, nil, string(model.FutureMean), nil)
		if err != nil {
			return err
		}

		outcomes := processBatch(ctx, args, cfg.Batch.MaxConcurrent, func(ctx context.Context, path string) (*model.Result, error) {
			return env.Pipeline.Run(ctx, ingest.FileSource{Path: path}, req)
		})
		formatBatch(os.Stdout, outcomes)

		for _, o := range outcomes {
			if o.Err != nil {
				return eris.New("batch: one or more files failed")
			}
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchHorizon, "horizon", 0, "weeks to forecast (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// forecastFunc runs one file through the pipeline.
type forecastFunc func(ctx context.Context, path string) (*model.Result, error)

// batchOutcome is the result of one file, in input order.
type batchOutcome struct {
	Path   string
	Result *model.Result
	Err    error
}

// processBatch forecasts every path with at most concurrency in flight.
// A failed file never aborts the others.
func processBatch(ctx context.Context, paths []string, concurrency int, run forecastFunc) []batchOutcome {
	outcomes := make([]batchOutcome, len(paths))
	if len(paths) == 0 {
		return outcomes
	}

	zap.L().Info("processing batch",
		zap.Int("files", len(paths)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	var succeeded, failed atomic.Int64
	for i, path := range paths {
		g.Go(func() error {
			log := zap.L().With(zap.String("file", path))
			res, err := run(gctx, path)
			outcomes[i] = batchOutcome{Path: path, Result: res, Err: err}
			if err != nil {
				failed.Add(1)
				log.Error("forecast failed", zap.Error(err))
				return nil
			}
			succeeded.Add(1)
			log.Info("forecast complete",
				zap.String("run_id", res.RunID),
				zap.Int("horizon", len(res.Forecast)),
			)
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return outcomes
}

// formatBatch writes one summary row per file.
func formatBatch(out io.Writer, outcomes []batchOutcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tRUN\tWEEKS\tSCORE\tNEXT\tFLAGS\tERROR")
	_, _ = fmt.Fprintln(w, "----\t---\t-----\t-----\t----\t-----\t-----")
	for _, o := range outcomes {
		if o.Err != nil {
			_, _ = fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t%s\n", o.Path, truncate(o.Err.Error(), 60))
			continue
		}
		r := o.Result
		next := "-"
		if len(r.Forecast) > 0 {
			next = fmt.Sprintf("%.1f", r.Forecast[0].PointEstimate)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%d\t\n",
			o.Path, truncateID(r.RunID), len(r.Observations), r.Quality.Score, next, len(r.Flags))
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
