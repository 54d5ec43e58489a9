// Package clamp bounds raw forecasts against the observed history and
// raises advisory flags when a forecast looks implausible.
package clamp

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/case-forecast/internal/model"
)

const (
	// BaselineWeeks is the size of the recent window averaged into the baseline.
	BaselineWeeks = 4

	ratioHigh = 3.0
	ratioLow  = 0.3

	floorFactor   = 0.1
	ceilingFactor = 5.0

	farPct  = 50.0
	nearPct = 5.0
)

// Result is the clamped forecast plus the statistics it was judged against.
type Result struct {
	Points         []model.ForecastPoint
	Flags          []model.Flag
	HistoricalMean float64
	Baseline       float64
	// Ratio is mean(point)/HistoricalMean before clamping; +Inf when the
	// historical mean is zero.
	Ratio float64
	// MaxDeviationPct is the largest |point - baseline| / baseline after
	// clamping, as a percentage. Zero when the baseline is zero.
	MaxDeviationPct float64
	Floor           float64
	Ceiling         float64
}

// Baseline is the mean of the last min(BaselineWeeks, len(s)) cases.
func Baseline(s model.Series) float64 {
	if len(s) == 0 {
		return 0
	}
	tail := s.Cases()[len(s)-min(BaselineWeeks, len(s)):]
	return stat.Mean(tail, nil)
}

// Bounds returns the point-estimate range [max(0, 0.1m), 5m] for a
// historical mean m. The ceiling never drops below the floor.
func Bounds(mean float64) (floor, ceiling float64) {
	floor = math.Max(0, floorFactor*mean)
	ceiling = math.Max(ceilingFactor*mean, floor)
	return floor, ceiling
}

// Apply clamps points into the history-derived bounds. points is not
// modified. Flags never block the forecast.
func Apply(points []model.ForecastPoint, history model.Series) Result {
	res := Result{Points: make([]model.ForecastPoint, len(points))}
	copy(res.Points, points)
	if len(history) == 0 || len(points) == 0 {
		return res
	}

	res.HistoricalMean = stat.Mean(history.Cases(), nil)
	res.Baseline = Baseline(history)
	res.Floor, res.Ceiling = Bounds(res.HistoricalMean)

	estimates := make([]float64, len(points))
	for i, p := range points {
		estimates[i] = p.PointEstimate
	}
	if res.HistoricalMean == 0 {
		res.Ratio = math.Inf(1)
	} else {
		res.Ratio = stat.Mean(estimates, nil) / res.HistoricalMean
	}
	switch {
	case math.IsInf(res.Ratio, 1):
		res.Flags = append(res.Flags, model.Flag{
			Code:    model.FlagImplausibleRatio,
			Message: "historical mean is zero; any forecast is implausible relative to history",
		})
	case res.Ratio > ratioHigh || res.Ratio < ratioLow:
		res.Flags = append(res.Flags, model.Flag{
			Code:    model.FlagImplausibleRatio,
			Message: fmt.Sprintf("forecast averages %.2fx the historical mean; implausible relative to history", res.Ratio),
			Value:   res.Ratio,
		})
	}

	clamped := 0
	for i := range res.Points {
		if bound(&res.Points[i], res.Floor, res.Ceiling) {
			clamped++
		}
	}
	if clamped > 0 {
		res.Flags = append(res.Flags, model.Flag{
			Code:    model.FlagClamped,
			Message: fmt.Sprintf("%d of %d forecast weeks clamped into [%.1f, %.1f]", clamped, len(points), res.Floor, res.Ceiling),
			Value:   float64(clamped),
		})
		zap.L().Info("clamp: forecast bounded",
			zap.Int("clamped", clamped),
			zap.Float64("floor", res.Floor),
			zap.Float64("ceiling", res.Ceiling),
		)
	}

	if res.Baseline > 0 {
		for _, p := range res.Points {
			d := math.Abs(p.PointEstimate-res.Baseline) / res.Baseline * 100
			res.MaxDeviationPct = math.Max(res.MaxDeviationPct, d)
		}
		switch {
		case res.MaxDeviationPct > farPct:
			res.Flags = append(res.Flags, model.Flag{
				Code:    model.FlagFarFromBaseline,
				Message: fmt.Sprintf("forecast deviates up to %.1f%% from the %d-week baseline", res.MaxDeviationPct, BaselineWeeks),
				Value:   res.MaxDeviationPct,
			})
		case res.MaxDeviationPct < nearPct:
			res.Flags = append(res.Flags, model.Flag{
				Code:    model.FlagNearBaseline,
				Message: fmt.Sprintf("forecast stays within %.1f%% of the baseline and may add no value", res.MaxDeviationPct),
				Value:   res.MaxDeviationPct,
			})
		}
	}
	return res
}

// bound clamps one point in place and reports whether anything moved.
// Afterwards lower <= point <= upper.
func bound(p *model.ForecastPoint, floor, ceiling float64) bool {
	before := *p
	p.PointEstimate = clampTo(p.PointEstimate, floor, ceiling)
	p.UpperBound = clampTo(p.UpperBound, floor, ceiling)
	p.LowerBound = clampTo(p.LowerBound, 0, ceiling)

	if p.LowerBound > p.PointEstimate {
		p.LowerBound = p.PointEstimate
	}
	if p.UpperBound < p.PointEstimate {
		p.UpperBound = p.PointEstimate
	}
	return *p != before
}

func clampTo(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
