package model

import "time"

// FutureMode selects how a factor's single future value is chosen.
type FutureMode string

const (
	FutureMean   FutureMode = "mean"
	FutureLast   FutureMode = "last"
	FutureManual FutureMode = "manual"
)

// ForecastRequest describes one forecast run over a cleaned series.
// FutureValues holds the scalar used for every future week of each
// selected factor; factors are held constant over the horizon.
type ForecastRequest struct {
	HorizonWeeks int                `json:"horizon_weeks"`
	Factors      []string           `json:"factors,omitempty"`
	FutureValues map[string]float64 `json:"future_values,omitempty"`
}

// ForecastPoint is a single future week with its interval.
type ForecastPoint struct {
	WeekIndex     int       `json:"week_index"`
	Date          time.Time `json:"date"`
	PointEstimate float64   `json:"point_estimate"`
	LowerBound    float64   `json:"lower_bound"`
	UpperBound    float64   `json:"upper_bound"`
}

// FittedPoint is the provider's reconstruction of one historical date.
type FittedPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Lower float64   `json:"lower"`
	Upper float64   `json:"upper"`
}

// ComponentPoint is the trend/seasonality decomposition at a date.
type ComponentPoint struct {
	Date       time.Time `json:"date"`
	Trend      float64   `json:"trend"`
	Seasonal   float64   `json:"seasonal"`
	Regressors float64   `json:"regressors"`
}

// ValidationMetrics describe held-out performance on the chronological
// tail of the series.
type ValidationMetrics struct {
	TrainSize   int     `json:"train_size"`
	TestSize    int     `json:"test_size"`
	MAE         float64 `json:"mae"`
	MAPEPercent float64 `json:"mape_percent"`
}

// AccuracyTier is the qualitative label derived from MAPE.
type AccuracyTier string

const (
	TierVeryGood         AccuracyTier = "very_good"
	TierGood             AccuracyTier = "good"
	TierNeedsImprovement AccuracyTier = "needs_improvement"
)

// TierForMAPE maps a MAPE percentage to its accuracy tier.
func TierForMAPE(mape float64) AccuracyTier {
	switch {
	case mape < 10:
		return TierVeryGood
	case mape < 20:
		return TierGood
	default:
		return TierNeedsImprovement
	}
}

// Residual is actual minus predicted at one historical date.
type Residual struct {
	Date      time.Time `json:"date"`
	Predicted float64   `json:"predicted"`
	Residual  float64   `json:"residual"`
}

// AccuracyReport holds in-sample accuracy. When Available is false the
// metric fields are zero and Reason explains why.
type AccuracyReport struct {
	Available   bool         `json:"available"`
	Reason      string       `json:"reason,omitempty"`
	MAE         float64      `json:"mae"`
	RMSE        float64      `json:"rmse"`
	MAPEPercent float64      `json:"mape_percent"`
	RSquared    float64      `json:"r_squared"`
	Tier        AccuracyTier `json:"tier,omitempty"`
	Residuals   []Residual   `json:"residuals,omitempty"`
}

// FlagCode identifies an advisory raised by the sanity clamp.
type FlagCode string

const (
	FlagImplausibleRatio FlagCode = "implausible_ratio"
	FlagFarFromBaseline  FlagCode = "far_from_baseline"
	FlagNearBaseline     FlagCode = "near_baseline"
	FlagClamped          FlagCode = "clamped"
)

// Flag is a non-blocking advisory attached to a forecast.
type Flag struct {
	Code    FlagCode `json:"code"`
	Message string   `json:"message"`
	Value   float64  `json:"value"`
}
