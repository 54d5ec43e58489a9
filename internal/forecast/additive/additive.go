// Package additive is the built-in forecasting provider: a piecewise
// linear trend with changepoints, Fourier seasonality and linear
// regressors, fitted by ridge-penalised least squares. Each penalty is the
// inverse square of the configured prior scale. Intervals come from the
// in-sample residual spread.
package additive

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/case-forecast/internal/forecast"
	"github.com/sells-group/case-forecast/internal/model"
)

const (
	interceptPenalty = 1e-9
	slopePrior       = 5.0
	changepointRange = 0.8
)

type season struct {
	name   string
	period float64 // days
	order  int
}

type regressor struct {
	spec model.FactorSpec
	mu   float64
	sd   float64
}

// Provider fits additive models.
type Provider struct {
	// MaxChangepoints bounds the number of potential trend changepoints.
	MaxChangepoints int
}

// New returns a Provider with 25 potential changepoints.
func New() *Provider {
	return &Provider{MaxChangepoints: 25}
}

// Name implements forecast.Provider.
func (p *Provider) Name() string { return "additive" }

// Fit implements forecast.Provider.
func (p *Provider) Fit(ctx context.Context, cfg forecast.ModelConfig, train forecast.Frame) (forecast.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "additive: fit")
	}
	n := train.Len()
	if n < 2 || len(train.Y) != n {
		return nil, eris.Wrapf(model.ErrFit, "additive: need at least 2 observations, got %d", n)
	}
	if stat.Variance(train.Y, nil) == 0 {
		return nil, eris.Wrap(model.ErrFit, "additive: target is constant")
	}

	m := &fitted{cfg: cfg, n: n, t0: train.Dates[0]}
	last := train.Dates[0]
	for _, d := range train.Dates {
		if d.Before(m.t0) {
			m.t0 = d
		}
		if d.After(last) {
			last = d
		}
	}
	m.spanDays = days(last.Sub(m.t0))
	if m.spanDays <= 0 {
		return nil, eris.Wrap(model.ErrFit, "additive: all observations share one date")
	}
	m.stepDays = m.spanDays / float64(n-1)

	m.yScale = floats.Max(absAll(train.Y))

	y := make([]float64, n)
	ts := make([]float64, n)
	for i, v := range train.Y {
		y[i] = v / m.yScale
		ts[i] = m.scaledTime(train.Dates[i])
	}

	m.changepoints = changepoints(ts, p.MaxChangepoints)
	m.seasons = seasonsFor(cfg)
	for _, spec := range cfg.Regressors {
		col, ok := train.Regressors[spec.Name]
		if !ok || len(col) != n {
			return nil, eris.Wrapf(model.ErrFit, "additive: regressor %q missing from training frame", spec.Name)
		}
		m.regs = append(m.regs, standardise(spec, col))
	}

	// Pre-fit a straight line so multiplicative terms can scale with trend.
	pre, err := ridge(
		func(i int) []float64 { return []float64{1, ts[i]} },
		y, []float64{interceptPenalty, 1 / (slopePrior * slopePrior)},
	)
	if err != nil {
		return nil, err
	}
	m.pre = [2]float64{pre[0], pre[1]}

	rows := func(i int) []float64 { return m.features(train.Dates[i], ts[i], rowValues(train.Regressors, m.regs, i)) }
	m.beta, err = ridge(rows, y, m.penalties())
	if err != nil {
		return nil, err
	}

	var ss float64
	for i := range n {
		r := y[i] - floats.Dot(rows(i), m.beta)
		ss += r * r
	}
	m.sigma = math.Sqrt(ss / float64(max(n-1, 1)))

	width := cfg.IntervalWidth
	if width <= 0 || width >= 1 {
		width = 0.95
	}
	m.z = distuv.UnitNormal.Quantile(0.5 + width/2)
	m.lastT = m.scaledTime(last)

	return m, nil
}

type fitted struct {
	cfg forecast.ModelConfig
	n   int

	t0       time.Time
	spanDays float64
	stepDays float64
	lastT    float64
	yScale   float64

	changepoints []float64
	seasons      []season
	regs         []regressor

	pre   [2]float64
	beta  []float64
	sigma float64
	z     float64
}

// Predict implements forecast.Model.
func (m *fitted) Predict(ctx context.Context, future forecast.Frame) (*forecast.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "additive: predict")
	}
	rows := future.Len()
	for _, r := range m.regs {
		if col, ok := future.Regressors[r.spec.Name]; !ok || len(col) != rows {
			return nil, eris.Errorf("additive: regressor %q missing from future frame", r.spec.Name)
		}
	}

	p := &forecast.Prediction{
		Dates:      append([]time.Time(nil), future.Dates...),
		Yhat:       make([]float64, rows),
		Lower:      make([]float64, rows),
		Upper:      make([]float64, rows),
		Trend:      make([]float64, rows),
		Seasonal:   make([]float64, rows),
		Regressors: make([]float64, rows),
	}
	nTrend, nSeason := m.groupSizes()
	for i, d := range future.Dates {
		t := m.scaledTime(d)
		x := m.features(d, t, rowValues(future.Regressors, m.regs, i))

		trend := floats.Dot(x[:nTrend], m.beta[:nTrend])
		seasonal := floats.Dot(x[nTrend:nTrend+nSeason], m.beta[nTrend:nTrend+nSeason])
		regs := floats.Dot(x[nTrend+nSeason:], m.beta[nTrend+nSeason:])
		yhat := trend + seasonal + regs

		spread := m.z * m.sigma
		if t > m.lastT {
			steps := (t - m.lastT) * m.spanDays / m.stepDays
			spread *= math.Sqrt(1 + steps/float64(m.n))
		}

		p.Yhat[i] = yhat * m.yScale
		p.Lower[i] = (yhat - spread) * m.yScale
		p.Upper[i] = (yhat + spread) * m.yScale
		p.Trend[i] = trend * m.yScale
		p.Seasonal[i] = seasonal * m.yScale
		p.Regressors[i] = regs * m.yScale
	}
	return p, nil
}

func (m *fitted) scaledTime(d time.Time) float64 {
	return days(d.Sub(m.t0)) / m.spanDays
}

func (m *fitted) groupSizes() (trend, seasonal int) {
	trend = 2 + len(m.changepoints)
	for _, s := range m.seasons {
		seasonal += 2 * s.order
	}
	return trend, seasonal
}

func (m *fitted) penalties() []float64 {
	nTrend, nSeason := m.groupSizes()
	out := make([]float64, 0, nTrend+nSeason+len(m.regs))
	out = append(out, interceptPenalty, 1/(slopePrior*slopePrior))
	for range m.changepoints {
		out = append(out, inverseSquare(m.cfg.ChangepointPriorScale))
	}
	for range nSeason {
		out = append(out, inverseSquare(m.cfg.SeasonalityPriorScale))
	}
	for _, r := range m.regs {
		out = append(out, inverseSquare(r.spec.PriorScale))
	}
	return out
}

// features builds one design row: trend, seasonal terms, then regressors.
func (m *fitted) features(d time.Time, t float64, regValues []float64) []float64 {
	nTrend, nSeason := m.groupSizes()
	x := make([]float64, 0, nTrend+nSeason+len(m.regs))
	x = append(x, 1, t)
	for _, c := range m.changepoints {
		x = append(x, math.Max(0, t-c))
	}

	base := m.pre[0] + m.pre[1]*t
	epochDays := float64(d.Unix()) / 86400
	for _, s := range m.seasons {
		for k := 1; k <= s.order; k++ {
			arg := 2 * math.Pi * float64(k) * epochDays / s.period
			sin, cos := math.Sin(arg), math.Cos(arg)
			if m.cfg.SeasonalityMode == model.ModeMultiplicative {
				sin, cos = sin*base, cos*base
			}
			x = append(x, sin, cos)
		}
	}

	for i, r := range m.regs {
		v := (regValues[i] - r.mu) / r.sd
		if r.spec.Mode == model.ModeMultiplicative {
			v *= base
		}
		x = append(x, v)
	}
	return x
}

func seasonsFor(cfg forecast.ModelConfig) []season {
	var out []season
	if cfg.YearlySeasonality {
		out = append(out, season{name: "yearly", period: 365.25, order: 10})
	}
	if cfg.WeeklySeasonality {
		out = append(out, season{name: "weekly", period: 7, order: 3})
	}
	if cfg.DailySeasonality {
		out = append(out, season{name: "daily", period: 1, order: 4})
	}
	return out
}

// changepoints spreads up to limit candidates uniformly over the first
// 80% of the history, excluding the first point.
func changepoints(ts []float64, limit int) []float64 {
	hist := int(math.Floor(float64(len(ts)) * changepointRange))
	count := min(limit, hist-1)
	if count <= 0 {
		return nil
	}
	out := make([]float64, 0, count)
	for j := 1; j <= count; j++ {
		idx := int(math.Round(float64(j) * float64(hist-1) / float64(count)))
		out = append(out, ts[idx])
	}
	return out
}

// standardise centres and scales a regressor column. Binary columns are
// left as they are.
func standardise(spec model.FactorSpec, col []float64) regressor {
	binary := true
	for _, v := range col {
		if v != 0 && v != 1 {
			binary = false
			break
		}
	}
	if binary {
		return regressor{spec: spec, mu: 0, sd: 1}
	}
	mu, sd := stat.MeanStdDev(col, nil)
	if sd == 0 || math.IsNaN(sd) {
		sd = 1
	}
	return regressor{spec: spec, mu: mu, sd: sd}
}

func rowValues(cols map[string][]float64, regs []regressor, i int) []float64 {
	out := make([]float64, len(regs))
	for j, r := range regs {
		out[j] = cols[r.spec.Name][i]
	}
	return out
}

// ridge solves (XᵀX + diag(penalty)) β = Xᵀy.
func ridge(row func(i int) []float64, y, penalty []float64) ([]float64, error) {
	n, p := len(y), len(penalty)
	x := mat.NewDense(n, p, nil)
	for i := range n {
		x.SetRow(i, row(i))
	}

	var a mat.Dense
	a.Mul(x.T(), x)
	for j := range p {
		a.Set(j, j, a.At(j, j)+penalty[j])
	}
	var b mat.VecDense
	b.MulVec(x.T(), mat.NewVecDense(n, y))

	var beta mat.VecDense
	if err := beta.SolveVec(&a, &b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, model.Classify(model.ErrFit, err, "additive: solve")
		}
	}
	out := make([]float64, p)
	for j := range p {
		out[j] = beta.AtVec(j)
		if math.IsNaN(out[j]) || math.IsInf(out[j], 0) {
			return nil, eris.Wrap(model.ErrFit, "additive: solution is not finite")
		}
	}
	return out, nil
}

func inverseSquare(scale float64) float64 {
	if scale <= 0 {
		return 1
	}
	return 1 / (scale * scale)
}

func absAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}

func days(d time.Duration) float64 {
	return d.Hours() / 24
}
