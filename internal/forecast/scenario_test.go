package forecast_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/case-forecast/internal/forecast"
	"github.com/sells-group/case-forecast/internal/forecast/additive"
	"github.com/sells-group/case-forecast/internal/model"
)

func TestAdditive_TenWeekIncreasing(t *testing.T) {
	start := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	s := make(model.Series, 10)
	for i := range s {
		s[i] = model.ObservedPoint{WeekIndex: i + 1, Date: start.AddDate(0, 0, 7*i), Cases: float64(10 * (i + 1))}
	}

	a := forecast.NewAdapter(additive.New(), forecast.DefaultSettings(), nil)
	out, err := a.Run(context.Background(), s, model.ForecastRequest{HorizonWeeks: 4})
	require.NoError(t, err)

	require.Len(t, out.Forecast, 4)
	for i, fp := range out.Forecast {
		assert.Equal(t, 11+i, fp.WeekIndex)
		assert.Equal(t, start.AddDate(0, 0, 7*(10+i)), fp.Date)
		assert.LessOrEqual(t, fp.LowerBound, fp.PointEstimate)
		assert.LessOrEqual(t, fp.PointEstimate, fp.UpperBound)
	}
	assert.Greater(t, out.Forecast[3].PointEstimate, out.Forecast[0].PointEstimate)

	require.NotNil(t, out.Validation)
	assert.Equal(t, 8, out.Validation.TrainSize)
	assert.Equal(t, 2, out.Validation.TestSize)
	assert.Len(t, out.InSample, 10)
	assert.False(t, out.Config.YearlySeasonality)
}

func TestAdditive_RegressorHeldConstant(t *testing.T) {
	start := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	s := make(model.Series, 20)
	for i := range s {
		campaign := float64(i % 2)
		s[i] = model.ObservedPoint{
			WeekIndex: i + 1,
			Date:      start.AddDate(0, 0, 7*i),
			Cases:     100 + 40*campaign,
			Factors:   map[string]float64{model.FactorCampaign: campaign},
		}
	}
	a := forecast.NewAdapter(additive.New(), forecast.DefaultSettings(), nil)

	run := func(v float64) []model.ForecastPoint {
		out, err := a.Run(context.Background(), s, model.ForecastRequest{
			HorizonWeeks: 3,
			Factors:      []string{model.FactorCampaign},
			FutureValues: map[string]float64{model.FactorCampaign: v},
		})
		require.NoError(t, err)
		return out.Forecast
	}
	off, on := run(0), run(1)
	for i := range off {
		assert.Greater(t, on[i].PointEstimate, off[i].PointEstimate)
	}
}
