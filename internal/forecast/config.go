package forecast

import (
	"time"

	"github.com/sells-group/case-forecast/internal/model"
)

// YearlyMinWeeks is the history length at which yearly seasonality turns on.
const YearlyMinWeeks = 52

// ModelConfig is what a provider is asked to fit.
type ModelConfig struct {
	WeeklySeasonality     bool                `json:"weekly_seasonality"`
	DailySeasonality      bool                `json:"daily_seasonality"`
	YearlySeasonality     bool                `json:"yearly_seasonality"`
	SeasonalityMode       model.RegressorMode `json:"seasonality_mode"`
	IntervalWidth         float64             `json:"interval_width"`
	ChangepointPriorScale float64             `json:"changepoint_prior_scale"`
	SeasonalityPriorScale float64             `json:"seasonality_prior_scale"`
	Regressors            []model.FactorSpec  `json:"regressors,omitempty"`
}

// Settings are the adapter's tunables.
type Settings struct {
	HorizonCap            int
	TrainFraction         float64
	IntervalWidth         float64
	ChangepointPriorScale float64
	SeasonalityPriorScale float64
	FitTimeout            time.Duration
}

// DefaultSettings returns conservative defaults for short, noisy series.
func DefaultSettings() Settings {
	return Settings{
		HorizonCap:            12,
		TrainFraction:         0.8,
		IntervalWidth:         0.95,
		ChangepointPriorScale: 0.05,
		SeasonalityPriorScale: 10,
		FitTimeout:            30 * time.Second,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.HorizonCap <= 0 {
		s.HorizonCap = d.HorizonCap
	}
	if s.TrainFraction <= 0 || s.TrainFraction > 1 {
		s.TrainFraction = d.TrainFraction
	}
	if s.IntervalWidth <= 0 || s.IntervalWidth >= 1 {
		s.IntervalWidth = d.IntervalWidth
	}
	if s.ChangepointPriorScale <= 0 {
		s.ChangepointPriorScale = d.ChangepointPriorScale
	}
	if s.SeasonalityPriorScale <= 0 {
		s.SeasonalityPriorScale = d.SeasonalityPriorScale
	}
	if s.FitTimeout <= 0 {
		s.FitTimeout = d.FitTimeout
	}
	return s
}

// BuildConfig configures a model for a series of n points with the given
// factors registered as regressors.
func BuildConfig(s Settings, n int, factors []string) ModelConfig {
	s = s.withDefaults()
	cfg := ModelConfig{
		WeeklySeasonality:     true,
		DailySeasonality:      false,
		YearlySeasonality:     n >= YearlyMinWeeks,
		SeasonalityMode:       model.ModeAdditive,
		IntervalWidth:         s.IntervalWidth,
		ChangepointPriorScale: s.ChangepointPriorScale,
		SeasonalityPriorScale: s.SeasonalityPriorScale,
	}
	for _, f := range factors {
		cfg.Regressors = append(cfg.Regressors, model.SpecFor(f))
	}
	return cfg
}
