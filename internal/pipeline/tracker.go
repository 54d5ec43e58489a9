package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/case-forecast/internal/metrics"
	"github.com/sells-group/case-forecast/internal/model"
)

// tracker records one run's status and phases. Store failures after the
// run is created are logged, never returned.
type tracker struct {
	p      *Pipeline
	ctx    context.Context
	run    *model.Run
	log    *zap.Logger
	phases []model.PhaseResult
}

func (p *Pipeline) start(ctx context.Context, source model.SourceInfo) (*tracker, error) {
	t := &tracker{p: p, ctx: ctx, log: zap.L().With(zap.String("source", source.Location))}
	if p.store == nil {
		return t, nil
	}
	run, err := p.store.CreateRun(ctx, source)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	t.run = run
	t.log = t.log.With(zap.String("run_id", run.ID))
	t.log.Info("pipeline: run started", zap.String("kind", string(source.Kind)))
	return t, nil
}

func (t *tracker) runID() string {
	if t.run == nil {
		return ""
	}
	return t.run.ID
}

func (t *tracker) status(s model.RunStatus) {
	if t.run == nil {
		return
	}
	if err := t.p.store.UpdateRunStatus(t.ctx, t.run.ID, s); err != nil {
		t.log.Warn("pipeline: failed to update status", zap.String("status", string(s)), zap.Error(err))
	}
}

// phase runs fn as a named phase and returns fn's error.
func (t *tracker) phase(name string, fn func() (*model.PhaseResult, error)) error {
	var phase *model.RunPhase
	if t.run != nil {
		var err error
		phase, err = t.p.store.CreatePhase(t.ctx, t.run.ID, name)
		if err != nil {
			t.log.Warn("pipeline: failed to create phase", zap.String("phase", name), zap.Error(err))
		}
	}

	start := time.Now()
	pr, fnErr := fn()
	elapsed := time.Since(start)

	if pr == nil {
		pr = &model.PhaseResult{}
	}
	pr.Name = name
	pr.Duration = elapsed.Milliseconds()

	if fnErr != nil {
		pr.Status = model.PhaseStatusFailed
		pr.Error = fnErr.Error()
		t.log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", pr.Duration),
			zap.Error(fnErr),
		)
	} else {
		pr.Status = model.PhaseStatusComplete
		t.log.Info("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", pr.Duration),
		)
	}
	metrics.RecordPhase(name, string(pr.Status), elapsed)

	if phase != nil {
		if err := t.p.store.CompletePhase(t.ctx, phase.ID, pr); err != nil {
			t.log.Warn("pipeline: failed to complete phase", zap.String("phase", name), zap.Error(err))
		}
	}
	t.phases = append(t.phases, *pr)
	return fnErr
}

// fail marks the run failed and returns err.
func (t *tracker) fail(err error) error {
	metrics.RecordRun(string(model.RunStatusFailed))
	if t.run != nil {
		// Record the failure even when ctx is done.
		ctx := context.WithoutCancel(t.ctx)
		if ferr := t.p.store.FailRun(ctx, t.run.ID, err.Error()); ferr != nil {
			t.log.Warn("pipeline: failed to record failure", zap.Error(ferr))
		}
	}
	return err
}

func (t *tracker) complete(r *model.Result) {
	metrics.RecordRun(string(model.RunStatusComplete))
	if t.run != nil {
		t.status(model.RunStatusComplete)
		if err := t.p.store.UpdateRunResult(t.ctx, t.run.ID, model.Summarize(r, t.phases)); err != nil {
			t.log.Warn("pipeline: failed to save run result", zap.Error(err))
		}
	}
	t.log.Info("pipeline: forecast complete",
		zap.Int("points", len(r.Observations)),
		zap.Int("horizon", len(r.Forecast)),
		zap.Int("flags", len(r.Flags)),
		zap.Int("score", r.Quality.Score),
	)
}
