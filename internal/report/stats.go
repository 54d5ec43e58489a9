// Package report turns pipeline results into the artifacts a person reads:
// descriptive statistics, trend analysis, narrative text, tables, JSON/YAML
// and an HTML chart dashboard.
package report

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/case-forecast/internal/clamp"
	"github.com/sells-group/case-forecast/internal/model"
)

// Stats are descriptive statistics of a sample. StdDev is the sample
// standard deviation and is zero for fewer than two values.
type Stats struct {
	Count  int     `json:"count" yaml:"count"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
}

// Describe summarises vals. An empty input yields the zero Stats.
func Describe(vals []float64) Stats {
	if len(vals) == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	s := Stats{
		Count: len(vals),
		Mean:  stat.Mean(vals, nil),
		Min:   floats.Min(vals),
		Max:   floats.Max(vals),
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		s.Median = sorted[mid]
	} else {
		s.Median = (sorted[mid-1] + sorted[mid]) / 2
	}
	if len(vals) > 1 {
		s.StdDev = stat.StdDev(vals, nil)
	}
	return s
}

// Direction is the sign of the forecast over the horizon.
type Direction string

const (
	DirectionIncreasing Direction = "increasing"
	DirectionDecreasing Direction = "decreasing"
	DirectionFlat       Direction = "flat"
)

// Trend compares the forecast against history.
type Trend struct {
	HistoricalMean float64   `json:"historical_mean" yaml:"historical_mean"`
	ForecastMean   float64   `json:"forecast_mean" yaml:"forecast_mean"`
	Delta          float64   `json:"delta" yaml:"delta"`
	ChangePct      float64   `json:"change_pct" yaml:"change_pct"`
	Direction      Direction `json:"direction" yaml:"direction"`
	// Slope is last minus first point estimate.
	Slope        float64 `json:"slope" yaml:"slope"`
	AvgHalfWidth float64 `json:"avg_half_width" yaml:"avg_half_width"`
}

// AnalyzeTrend compares fc with history. ChangePct is NaN when the
// historical mean is zero.
func AnalyzeTrend(history model.Series, fc []model.ForecastPoint) Trend {
	var t Trend
	if len(history) > 0 {
		t.HistoricalMean = stat.Mean(history.Cases(), nil)
	}
	if len(fc) == 0 {
		t.Direction = DirectionFlat
		return t
	}

	est := estimates(fc)
	t.ForecastMean = stat.Mean(est, nil)
	t.Delta = t.ForecastMean - t.HistoricalMean
	if t.HistoricalMean != 0 {
		t.ChangePct = t.Delta / t.HistoricalMean * 100
	} else {
		t.ChangePct = math.NaN()
	}

	t.Slope = est[len(est)-1] - est[0]
	switch {
	case t.Slope > 0:
		t.Direction = DirectionIncreasing
	case t.Slope < 0:
		t.Direction = DirectionDecreasing
	default:
		t.Direction = DirectionFlat
	}

	half := make([]float64, len(fc))
	for i, p := range fc {
		half[i] = (p.UpperBound - p.LowerBound) / 2
	}
	t.AvgHalfWidth = stat.Mean(half, nil)
	return t
}

// BaselineRow is one forecast week set against the recent baseline.
type BaselineRow struct {
	model.ForecastPoint
	Baseline   float64 `json:"baseline" yaml:"baseline"`
	Difference float64 `json:"difference" yaml:"difference"`
}

// CompareBaseline pairs each forecast week with the recent-average baseline.
func CompareBaseline(history model.Series, fc []model.ForecastPoint) []BaselineRow {
	base := clamp.Baseline(history)
	out := make([]BaselineRow, len(fc))
	for i, p := range fc {
		out[i] = BaselineRow{ForecastPoint: p, Baseline: base, Difference: p.PointEstimate - base}
	}
	return out
}

func estimates(fc []model.ForecastPoint) []float64 {
	out := make([]float64, len(fc))
	for i, p := range fc {
		out[i] = p.PointEstimate
	}
	return out
}
