package forecast

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/case-forecast/internal/accuracy"
	"github.com/sells-group/case-forecast/internal/model"
	"github.com/sells-group/case-forecast/internal/resilience"
)

// Output is everything the adapter derives from one forecast request.
type Output struct {
	Config     ModelConfig
	Validation *model.ValidationMetrics
	Forecast   []model.ForecastPoint
	InSample   []model.FittedPoint
	Components []model.ComponentPoint
	Warnings   []string
}

// Adapter runs forecast requests against a Provider. Every provider call
// runs under a timeout, a panic guard and a shared circuit breaker.
type Adapter struct {
	provider Provider
	settings Settings
	breaker  *resilience.CircuitBreaker
}

// NewAdapter creates an Adapter. A nil breaker gets a default one that
// trips only on provider unavailability, not on bad input.
func NewAdapter(p Provider, s Settings, breaker *resilience.CircuitBreaker) *Adapter {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(BreakerConfig())
	}
	return &Adapter{provider: p, settings: s.withDefaults(), breaker: breaker}
}

// BreakerConfig is the provider breaker policy. Only timeouts count toward
// opening; bad input and fit failures do not.
func BreakerConfig() resilience.CircuitBreakerConfig {
	return resilience.ProviderBreakerConfig(0, 0, func(err error) bool {
		return errors.Is(err, model.ErrProviderUnavailable)
	})
}

// Settings returns the effective settings.
func (a *Adapter) Settings() Settings { return a.settings }

// MaxHorizon is min(cap, floor(n/2)).
func (a *Adapter) MaxHorizon(n int) int {
	return min(a.settings.HorizonCap, n/2)
}

// Validate checks req against s without calling the provider.
func (a *Adapter) Validate(s model.Series, req model.ForecastRequest) error {
	if len(s) == 0 {
		return eris.Wrap(model.ErrEmptySeries, "forecast: validate request")
	}
	if err := CheckReserved(req.Factors); err != nil {
		return err
	}
	if maxH := a.MaxHorizon(len(s)); req.HorizonWeeks < 1 || req.HorizonWeeks > maxH {
		return eris.Wrapf(model.ErrInvalidRequest,
			"forecast: horizon %d outside [1, %d] for %d weeks of history", req.HorizonWeeks, maxH, len(s))
	}
	seen := make(map[string]bool, len(req.Factors))
	for _, f := range req.Factors {
		if seen[f] {
			return eris.Wrapf(model.ErrInvalidRequest, "forecast: factor %q selected twice", f)
		}
		seen[f] = true
		if !s.HasFactor(f) {
			return eris.Wrapf(model.ErrInvalidRequest, "forecast: factor %q not in series", f)
		}
		if _, ok := req.FutureValues[f]; !ok {
			return eris.Wrapf(model.ErrInvalidRequest, "forecast: no future value for factor %q", f)
		}
	}
	return nil
}

// Run validates req, fits on the training partition, scores the held-out
// tail, refits on the full series and predicts the horizon. s is copied
// before use.
func (a *Adapter) Run(ctx context.Context, s model.Series, req model.ForecastRequest) (*Output, error) {
	if err := a.Validate(s, req); err != nil {
		return nil, err
	}
	s = s.Clone()
	n := len(s)
	full := frameOf(s, req.Factors)
	out := &Output{Config: BuildConfig(a.settings, n, req.Factors)}

	split := int(float64(n) * a.settings.TrainFraction)
	var final Model
	switch {
	case split < 2:
		out.Warnings = append(out.Warnings, "too little history for hold-out validation; fitted on all weeks")
		m, err := a.fit(ctx, out.Config, full)
		if err != nil {
			return nil, err
		}
		final = m
	case split >= n:
		m, err := a.fit(ctx, out.Config, full)
		if err != nil {
			return nil, err
		}
		final = m
	default:
		train := full.Slice(0, split)
		m, err := a.fit(ctx, out.Config, train)
		if err != nil {
			return nil, err
		}
		val, err := a.validate(ctx, m, train, full.Slice(split, n))
		switch {
		case err == nil:
			out.Validation = val
		case errors.Is(err, model.ErrValidationCompute):
			out.Warnings = append(out.Warnings, err.Error())
		default:
			return nil, err
		}

		if final, err = a.fit(ctx, out.Config, full); err != nil {
			return nil, err
		}
	}

	future := extend(full, req.HorizonWeeks, req.Factors, req.FutureValues)
	pred, err := a.predict(ctx, final, future)
	if err != nil {
		return nil, err
	}
	if err := checkShape(pred, future.Len()); err != nil {
		return nil, err
	}

	for i := range n {
		out.InSample = append(out.InSample, model.FittedPoint{
			Date:  pred.Dates[i],
			Value: pred.Yhat[i],
			Lower: pred.Lower[i],
			Upper: pred.Upper[i],
		})
	}
	next := s.MaxWeek() + 1
	for i := n; i < future.Len(); i++ {
		out.Forecast = append(out.Forecast, model.ForecastPoint{
			WeekIndex:     next + (i - n),
			Date:          pred.Dates[i],
			PointEstimate: pred.Yhat[i],
			LowerBound:    pred.Lower[i],
			UpperBound:    pred.Upper[i],
		})
	}

	if comps, ok := components(pred); ok {
		out.Components = comps
	} else {
		out.Warnings = append(out.Warnings, "component decomposition unavailable")
	}

	zap.L().Debug("forecast: run complete",
		zap.String("provider", a.provider.Name()),
		zap.Int("points", n),
		zap.Int("horizon", req.HorizonWeeks),
		zap.Bool("validated", out.Validation != nil),
	)
	return out, nil
}

// validate predicts the test span the way the final forecast is made:
// weekly steps past the end of training, compared by position. Regressor
// values for those steps come from the test rows.
func (a *Adapter) validate(ctx context.Context, m Model, train, test Frame) (*model.ValidationMetrics, error) {
	frame := Frame{Dates: FutureDates(train.Dates, test.Len())}
	if len(train.Regressors) > 0 {
		frame.Regressors = make(map[string][]float64, len(train.Regressors))
		for k, v := range train.Regressors {
			frame.Regressors[k] = append(append([]float64(nil), v...), test.Regressors[k]...)
		}
	}
	pred, err := a.predict(ctx, m, frame)
	if err != nil {
		return nil, err
	}
	if err := checkShape(pred, frame.Len()); err != nil {
		return nil, err
	}
	predicted := pred.Yhat[len(pred.Yhat)-test.Len():]

	mae, err := accuracy.MAE(test.Y, predicted)
	if err != nil {
		return nil, model.Classify(model.ErrValidationCompute, err, "forecast: validation MAE")
	}
	mape, err := accuracy.MAPE(test.Y, predicted)
	if err != nil {
		return nil, model.Classify(model.ErrValidationCompute, err, "forecast: validation MAPE")
	}
	return &model.ValidationMetrics{
		TrainSize:   train.Len(),
		TestSize:    test.Len(),
		MAE:         mae,
		MAPEPercent: mape,
	}, nil
}

func (a *Adapter) fit(ctx context.Context, cfg ModelConfig, f Frame) (Model, error) {
	return guarded(ctx, a, "fit", func(ctx context.Context) (Model, error) {
		return a.provider.Fit(ctx, cfg, f)
	})
}

func (a *Adapter) predict(ctx context.Context, m Model, f Frame) (*Prediction, error) {
	return guarded(ctx, a, "predict", func(ctx context.Context) (*Prediction, error) {
		return m.Predict(ctx, f)
	})
}

// guarded runs fn through the breaker under the fit timeout. Panics become
// model.ErrFit; timeouts and an open circuit become
// model.ErrProviderUnavailable.
func guarded[T any](ctx context.Context, a *Adapter, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	val, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, a.settings.FitTimeout)
		defer cancel()

		type result struct {
			val T
			err error
		}
		done := make(chan result, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- result{err: eris.Wrapf(model.ErrFit, "forecast: provider %s panicked: %v", op, r)}
				}
			}()
			v, err := fn(ctx)
			done <- result{val: v, err: err}
		}()

		select {
		case r := <-done:
			return r.val, r.err
		case <-ctx.Done():
			return zero, model.Classify(model.ErrProviderUnavailable, ctx.Err(), "forecast: provider "+op)
		}
	})
	if err == nil {
		return val, nil
	}
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return zero, model.Classify(model.ErrProviderUnavailable, err, "forecast: provider "+op)
	case errors.Is(err, model.ErrProviderUnavailable), errors.Is(err, model.ErrFit):
		return zero, err
	default:
		return zero, model.Classify(model.ErrFit, err, fmt.Sprintf("forecast: %s %s", a.provider.Name(), op))
	}
}

func checkShape(p *Prediction, rows int) error {
	if p == nil || len(p.Dates) != rows || len(p.Yhat) != rows || len(p.Lower) != rows || len(p.Upper) != rows {
		got := 0
		if p != nil {
			got = len(p.Yhat)
		}
		return eris.Wrapf(model.ErrFit, "forecast: provider returned %d rows for %d dates", got, rows)
	}
	return nil
}

func frameOf(s model.Series, factors []string) Frame {
	f := Frame{Dates: s.Dates(), Y: s.Cases()}
	if len(factors) > 0 {
		f.Regressors = make(map[string][]float64, len(factors))
		for _, name := range factors {
			f.Regressors[name] = s.Factor(name)
		}
	}
	return f
}

// extend appends horizon weekly dates; each factor holds its single future
// value across every appended week.
func extend(history Frame, horizon int, factors []string, values map[string]float64) Frame {
	out := Frame{Dates: FutureDates(history.Dates, horizon)}
	if len(factors) > 0 {
		out.Regressors = make(map[string][]float64, len(factors))
		for _, name := range factors {
			col := append([]float64(nil), history.Regressors[name]...)
			for range horizon {
				col = append(col, values[name])
			}
			out.Regressors[name] = col
		}
	}
	return out
}

func components(p *Prediction) ([]model.ComponentPoint, bool) {
	n := len(p.Dates)
	if len(p.Trend) != n || len(p.Seasonal) != n {
		return nil, false
	}
	out := make([]model.ComponentPoint, n)
	for i := range n {
		out[i] = model.ComponentPoint{Date: p.Dates[i], Trend: p.Trend[i], Seasonal: p.Seasonal[i]}
		if len(p.Regressors) == n {
			out[i].Regressors = p.Regressors[i]
		}
	}
	return out, true
}
