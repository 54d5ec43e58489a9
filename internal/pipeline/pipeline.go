// Package pipeline runs the forecast flow: ingest, clean and audit a
// source, then fit, clamp and evaluate a forecast, recording every phase
// in the run store. Each call carries its own state; nothing is shared
// between runs.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/case-forecast/internal/accuracy"
	"github.com/sells-group/case-forecast/internal/clamp"
	"github.com/sells-group/case-forecast/internal/config"
	"github.com/sells-group/case-forecast/internal/forecast"
	"github.com/sells-group/case-forecast/internal/ingest"
	"github.com/sells-group/case-forecast/internal/metrics"
	"github.com/sells-group/case-forecast/internal/model"
	"github.com/sells-group/case-forecast/internal/quality"
	"github.com/sells-group/case-forecast/internal/resilience"
	"github.com/sells-group/case-forecast/internal/series"
	"github.com/sells-group/case-forecast/internal/store"
)

// Phase names, in execution order.
const (
	PhaseIngest   = "1_ingest"
	PhaseAudit    = "2_audit"
	PhaseFit      = "3_fit"
	PhaseClamp    = "4_clamp"
	PhaseEvaluate = "5_evaluate"
)

// Request is a forecast request before future factor values are resolved.
// FutureValues is only read in manual mode.
type Request struct {
	HorizonWeeks int                `json:"horizon_weeks"`
	Factors      []string           `json:"factors,omitempty"`
	FutureMode   model.FutureMode   `json:"future_mode,omitempty"`
	FutureValues map[string]float64 `json:"future_values,omitempty"`
}

// Pipeline wires the stages together.
type Pipeline struct {
	cfg     *config.Config
	store   store.Store
	adapter *forecast.Adapter
	now     func() time.Time
}

// New creates a Pipeline. st may be nil, in which case nothing is
// recorded.
func New(cfg *config.Config, st store.Store, adapter *forecast.Adapter) *Pipeline {
	return &Pipeline{cfg: cfg, store: st, adapter: adapter, now: time.Now}
}

// Adapter returns the forecast adapter.
func (p *Pipeline) Adapter() *forecast.Adapter { return p.adapter }

// Load ingests, cleans and audits src without recording a run.
func (p *Pipeline) Load(ctx context.Context, src ingest.Source) (*model.Dataset, error) {
	ds, err := p.ingest(ctx, src)
	if err != nil {
		return nil, err
	}
	p.audit(ds)
	return ds, nil
}

// Run loads src and forecasts it as one recorded run.
func (p *Pipeline) Run(ctx context.Context, src ingest.Source, req Request) (*model.Result, error) {
	t, err := p.start(ctx, src.Describe())
	if err != nil {
		return nil, err
	}

	t.status(model.RunStatusIngesting)
	var ds *model.Dataset
	if err := t.phase(PhaseIngest, func() (*model.PhaseResult, error) {
		var err error
		ds, err = p.ingest(ctx, src)
		if err != nil {
			return nil, err
		}
		return &model.PhaseResult{Metadata: map[string]any{
			"points":  len(ds.Series),
			"dropped": ds.DroppedRows,
		}}, nil
	}); err != nil {
		return nil, t.fail(err)
	}

	t.status(model.RunStatusAuditing)
	_ = t.phase(PhaseAudit, func() (*model.PhaseResult, error) {
		p.audit(ds)
		return &model.PhaseResult{Metadata: map[string]any{
			"score":  ds.Quality.Score,
			"status": string(ds.Quality.Status),
			"issues": len(ds.Quality.Issues),
		}}, nil
	})

	return p.forecast(t, ds, req)
}

// Forecast runs a request against an already loaded dataset as one
// recorded run. ds is not modified.
func (p *Pipeline) Forecast(ctx context.Context, ds *model.Dataset, req Request) (*model.Result, error) {
	if ds == nil {
		return nil, eris.Wrap(model.ErrEmptySeries, "pipeline: nil dataset")
	}
	t, err := p.start(ctx, ds.Source)
	if err != nil {
		return nil, err
	}
	return p.forecast(t, ds, req)
}

func (p *Pipeline) ingest(ctx context.Context, src ingest.Source) (*model.Dataset, error) {
	info := src.Describe()
	type loaded struct {
		table *ingest.RawTable
		info  model.SourceInfo
	}

	retry := resilience.SourceRetryConfig(p.maxRetries(), string(info.Kind))
	res, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (loaded, error) {
		table, info, err := src.Load(ctx)
		return loaded{table: table, info: info}, err
	})
	metrics.RecordSourceLoad(string(info.Kind), err)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load source")
	}

	return p.build(res.table, res.info)
}

// Refresh re-downloads a hosted sheet only when its ETag changed, returning
// the re-cleaned and re-audited dataset. changed is false and the dataset
// nil when the sheet is unchanged.
func (p *Pipeline) Refresh(ctx context.Context, src *ingest.SheetSource) (*model.Dataset, bool, error) {
	table, info, changed, err := src.Refresh(ctx)
	metrics.RecordSourceLoad(string(model.SourceSheet), err)
	if err != nil {
		return nil, false, eris.Wrap(err, "pipeline: refresh sheet")
	}
	if !changed {
		return nil, false, nil
	}
	ds, err := p.build(table, info)
	if err != nil {
		return nil, false, err
	}
	p.audit(ds)
	return ds, true, nil
}

func (p *Pipeline) build(table *ingest.RawTable, info model.SourceInfo) (*model.Dataset, error) {
	cleaned, err := series.Clean(table)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: clean series")
	}
	return &model.Dataset{
		Source:      info,
		Series:      cleaned.Series,
		DroppedRows: cleaned.Dropped,
		LoadedAt:    p.now(),
	}, nil
}

func (p *Pipeline) audit(ds *model.Dataset) {
	ds.Quality = quality.Audit(ds.Series)
	metrics.RecordDataset(ds.DroppedRows, ds.Quality.Score)
	zap.L().Info("pipeline: quality audited",
		zap.Int("points", len(ds.Series)),
		zap.Int("score", ds.Quality.Score),
		zap.String("status", string(ds.Quality.Status)),
	)
}

func (p *Pipeline) forecast(t *tracker, ds *model.Dataset, req Request) (*model.Result, error) {
	ctx := t.ctx
	t.status(model.RunStatusFitting)

	var (
		fr  model.ForecastRequest
		out *forecast.Output
	)
	if err := t.phase(PhaseFit, func() (*model.PhaseResult, error) {
		if err := forecast.CheckReserved(req.Factors); err != nil {
			return nil, err
		}
		values, err := forecast.ResolveFutureValues(ds.Series, req.Factors, req.FutureMode, req.FutureValues)
		if err != nil {
			return nil, err
		}
		fr = model.ForecastRequest{HorizonWeeks: req.HorizonWeeks, Factors: req.Factors, FutureValues: values}
		out, err = p.adapter.Run(ctx, ds.Series, fr)
		if err != nil {
			return nil, err
		}
		meta := map[string]any{"points": len(out.Forecast), "factors": len(fr.Factors)}
		if out.Validation != nil {
			meta["mae"] = out.Validation.MAE
			meta["mape_pct"] = out.Validation.MAPEPercent
		}
		return &model.PhaseResult{Metadata: meta}, nil
	}); err != nil {
		return nil, t.fail(err)
	}

	var clamped clamp.Result
	_ = t.phase(PhaseClamp, func() (*model.PhaseResult, error) {
		clamped = clamp.Apply(out.Forecast, ds.Series)
		for _, f := range clamped.Flags {
			metrics.RecordFlag(string(f.Code))
		}
		return &model.PhaseResult{Metadata: map[string]any{
			"flags":    len(clamped.Flags),
			"baseline": clamped.Baseline,
		}}, nil
	})

	t.status(model.RunStatusEvaluating)
	var acc model.AccuracyReport
	_ = t.phase(PhaseEvaluate, func() (*model.PhaseResult, error) {
		acc = accuracy.Evaluate(out.InSample, ds.Series)
		meta := map[string]any{"available": acc.Available}
		if acc.Available {
			meta["tier"] = string(acc.Tier)
		}
		return &model.PhaseResult{Metadata: meta}, nil
	})

	warnings := append([]string(nil), out.Warnings...)
	if !acc.Available {
		warnings = append(warnings, acc.Reason)
	}

	result := &model.Result{
		RunID:          t.runID(),
		Source:         ds.Source,
		Request:        fr,
		Observations:   ds.Series,
		DroppedRows:    ds.DroppedRows,
		Quality:        ds.Quality,
		Validation:     out.Validation,
		Forecast:       clamped.Points,
		Baseline:       clamped.Baseline,
		HistoricalMean: clamped.HistoricalMean,
		Flags:          clamped.Flags,
		Accuracy:       acc,
		Components:     out.Components,
		Warnings:       warnings,
		GeneratedAt:    p.now(),
	}
	t.complete(result)
	return result, nil
}

func (p *Pipeline) maxRetries() int {
	if p.cfg == nil {
		return 0
	}
	return p.cfg.Source.LoadRetries
}
