package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/case-forecast/internal/fetcher"
	"github.com/sells-group/case-forecast/internal/forecast"
	"github.com/sells-group/case-forecast/internal/forecast/additive"
	"github.com/sells-group/case-forecast/internal/pipeline"
	"github.com/sells-group/case-forecast/internal/resilience"
	"github.com/sells-group/case-forecast/internal/store"
)

// pipelineEnv holds the store, fetcher, breakers and pipeline needed by
// the forecast/batch/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Fetcher  *fetcher.HTTPFetcher
	Breakers *resilience.ProviderBreakers
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates cfg for mode, opens and migrates the run store
// and builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := newEnv()
	env.Store = st
	env.Pipeline = pipeline.New(cfg, st, env.adapter())
	return env, nil
}

// initOffline builds a Pipeline that records nothing.
func initOffline() *pipelineEnv {
	env := newEnv()
	env.Pipeline = pipeline.New(cfg, nil, env.adapter())
	return env
}

func newEnv() *pipelineEnv {
	return &pipelineEnv{
		Fetcher: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:   cfg.Source.UserAgent,
			Timeout:     time.Duration(cfg.Source.TimeoutSecs) * time.Second,
			MaxAttempts: cfg.Source.MaxRetries + 1,
		}),
		Breakers: resilience.NewProviderBreakers(forecast.BreakerConfig()),
	}
}

func (pe *pipelineEnv) adapter() *forecast.Adapter {
	provider := additive.New()
	return forecast.NewAdapter(provider, forecastSettings(), pe.Breakers.Get(provider.Name()))
}

func forecastSettings() forecast.Settings {
	f := cfg.Forecast
	return forecast.Settings{
		HorizonCap:            f.HorizonCap,
		TrainFraction:         f.TrainFraction,
		IntervalWidth:         f.IntervalWidth,
		ChangepointPriorScale: f.ChangepointPriorScale,
		SeasonalityPriorScale: f.SeasonalityPriorScale,
		FitTimeout:            time.Duration(f.FitTimeoutSecs) * time.Second,
	}
}
