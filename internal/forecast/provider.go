// Package forecast adapts a cleaned Series to a pluggable forecasting
// provider: it builds the model configuration, runs the hold-out
// validation, refits and projects the requested horizon.
package forecast

import (
	"context"
	"time"
)

// Frame is the provider's input table: one row per date, an optional
// target column and one column per registered regressor.
type Frame struct {
	Dates      []time.Time
	Y          []float64
	Regressors map[string][]float64
}

// Len returns the number of rows.
func (f Frame) Len() int { return len(f.Dates) }

// Slice returns rows [from, to) as a new frame.
func (f Frame) Slice(from, to int) Frame {
	out := Frame{Dates: append([]time.Time(nil), f.Dates[from:to]...)}
	if f.Y != nil {
		out.Y = append([]float64(nil), f.Y[from:to]...)
	}
	if len(f.Regressors) > 0 {
		out.Regressors = make(map[string][]float64, len(f.Regressors))
		for k, v := range f.Regressors {
			out.Regressors[k] = append([]float64(nil), v[from:to]...)
		}
	}
	return out
}

// Prediction is the provider's output for every row of a future frame.
// The component slices decompose Yhat and may be nil.
type Prediction struct {
	Dates []time.Time
	Yhat  []float64
	Lower []float64
	Upper []float64

	Trend      []float64
	Seasonal   []float64
	Regressors []float64
}

// Provider trains models.
type Provider interface {
	Name() string
	Fit(ctx context.Context, cfg ModelConfig, train Frame) (Model, error)
}

// Model is a fitted provider model.
type Model interface {
	Predict(ctx context.Context, future Frame) (*Prediction, error)
}

// FutureDates returns the history dates followed by periods weekly
// Sundays strictly after the last history date.
func FutureDates(history []time.Time, periods int) []time.Time {
	out := append([]time.Time(nil), history...)
	if len(history) == 0 || periods <= 0 {
		return out
	}
	last := history[0]
	for _, d := range history {
		if d.After(last) {
			last = d
		}
	}
	next := last.AddDate(0, 0, int(7-last.Weekday())%7)
	if !next.After(last) {
		next = next.AddDate(0, 0, 7)
	}
	for i := range periods {
		out = append(out, next.AddDate(0, 0, 7*i))
	}
	return out
}
