package forecast

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Fit(ctx context.Context, cfg ModelConfig, train Frame) (Model, error) {
	args := m.Called(ctx, cfg, train)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Model), args.Error(1)
}

type mockModel struct {
	mock.Mock
}

// Predict returns either a fixed *Prediction or, when the mock was given a
// func(Frame) *Prediction, the result of calling it.
func (m *mockModel) Predict(ctx context.Context, f Frame) (*Prediction, error) {
	args := m.Called(ctx, f)
	switch v := args.Get(0).(type) {
	case nil:
		return nil, args.Error(1)
	case func(Frame) *Prediction:
		return v(f), args.Error(1)
	default:
		return v.(*Prediction), args.Error(1)
	}
}

// flat predicts level at every date with a ±10 band.
func flat(level float64) func(Frame) *Prediction {
	return func(f Frame) *Prediction {
		n := f.Len()
		p := &Prediction{Dates: f.Dates, Yhat: make([]float64, n), Lower: make([]float64, n), Upper: make([]float64, n),
			Trend: make([]float64, n), Seasonal: make([]float64, n)}
		for i := range n {
			p.Yhat[i] = level
			p.Lower[i] = level - 10
			p.Upper[i] = level + 10
			p.Trend[i] = level
		}
		return p
	}
}
