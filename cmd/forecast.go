package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/case-forecast/internal/model"
	"github.com/sells-group/case-forecast/internal/pipeline"
	"github.com/sells-group/case-forecast/internal/report"
)

var (
	forecastSource  sourceFlags
	forecastHorizon int
	forecastFactors []string
	forecastMode    string
	forecastSet     []string
	forecastFormat  string
	forecastChart   string
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast the coming weeks of a case-count series",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		format, err := report.ParseFormat(forecastFormat)
		if err != nil {
			return err
		}
		req, err := buildRequest(forecastHorizon, forecastFactors, forecastMode, forecastSet)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "forecast")
		if err != nil {
			return err
		}
		defer env.Close()

		src, err := forecastSource.build(cmd, env.Fetcher)
		if err != nil {
			return err
		}

		res, err := env.Pipeline.Run(ctx, src, req)
		if err != nil {
			return eris.Wrap(err, "forecast")
		}

		if err := report.Write(os.Stdout, res, format); err != nil {
			return err
		}
		if forecastChart != "" {
			if err := writeChart(forecastChart, res); err != nil {
				return err
			}
			zap.L().Info("dashboard written", zap.String("path", forecastChart))
		}
		return nil
	},
}

func init() {
	forecastSource.register(forecastCmd)
	forecastCmd.Flags().IntVar(&forecastHorizon, "horizon", 0, "weeks to forecast (default from config)")
	forecastCmd.Flags().StringSliceVar(&forecastFactors, "factors", nil, "external factors to include, comma separated")
	forecastCmd.Flags().StringVar(&forecastMode, "future-mode", "mean", "future factor values: mean, last or manual")
	forecastCmd.Flags().StringArrayVar(&forecastSet, "set", nil, "manual future value, factor=value (repeatable)")
	forecastCmd.Flags().StringVar(&forecastFormat, "format", "table", "output format: table, json or yaml")
	forecastCmd.Flags().StringVar(&forecastChart, "chart", "", "write an HTML dashboard to this path")
	rootCmd.AddCommand(forecastCmd)
}

// buildRequest turns command-line values into a pipeline request. A zero
// horizon takes forecast.horizon from config.
func buildRequest(horizon int, factors []string, mode string, set []string) (pipeline.Request, error) {
	if horizon == 0 {
		horizon = cfg.Forecast.Horizon
	}
	req := pipeline.Request{
		HorizonWeeks: horizon,
		Factors:      factors,
		FutureMode:   model.FutureMode(mode),
	}
	switch req.FutureMode {
	case model.FutureMean, model.FutureLast, model.FutureManual:
	default:
		return req, eris.Errorf("unknown --future-mode %q (want mean, last or manual)", mode)
	}

	if len(set) > 0 {
		req.FutureValues = make(map[string]float64, len(set))
		for _, kv := range set {
			name, raw, ok := strings.Cut(kv, "=")
			if !ok {
				return req, eris.Errorf("--set %q: want factor=value", kv)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return req, eris.Wrapf(err, "--set %q", kv)
			}
			req.FutureValues[strings.TrimSpace(name)] = v
		}
	}
	return req, nil
}

func writeChart(path string, res *model.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "create chart file")
	}
	if err := report.RenderDashboard(f, res); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, fmt.Sprintf("close %s", path))
	}
	return nil
}
