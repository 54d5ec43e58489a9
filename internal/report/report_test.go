package report

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/case-forecast/internal/model"
)

var start = time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)

func sampleResult() *model.Result {
	obs := make(model.Series, 8)
	for i := range obs {
		obs[i] = model.ObservedPoint{WeekIndex: i + 1, Date: start.AddDate(0, 0, 7*i), Cases: float64(100 + 10*i)}
	}
	return &model.Result{
		Observations: obs,
		DroppedRows:  1,
		Quality: model.QualityReport{Score: 70, Status: model.QualityGood, Issues: []model.QualityIssue{
			{Category: model.IssueInsufficientData, Severity: model.SeverityWarning, Message: "only 8 weeks", AffectedPoints: []int{1, 2, 3, 4, 5, 6, 7, 8}},
		}},
		Request: model.ForecastRequest{HorizonWeeks: 2},
		Forecast: []model.ForecastPoint{
			{WeekIndex: 9, Date: start.AddDate(0, 0, 56), PointEstimate: 180, LowerBound: 160, UpperBound: 200},
			{WeekIndex: 10, Date: start.AddDate(0, 0, 63), PointEstimate: 190, LowerBound: 166, UpperBound: 214},
		},
		Baseline:       155,
		HistoricalMean: 135,
		Validation:     &model.ValidationMetrics{TrainSize: 6, TestSize: 2, MAE: 4.5, MAPEPercent: 2.8},
		Accuracy: model.AccuracyReport{
			Available: true, MAE: 2, RMSE: 2.5, MAPEPercent: 1.6, RSquared: 0.97, Tier: model.TierVeryGood,
			Residuals: []model.Residual{{Date: start, Predicted: 98, Residual: 2}},
		},
		Components: []model.ComponentPoint{{Date: start, Trend: 100, Seasonal: 1}},
		Flags:      []model.Flag{{Code: model.FlagFarFromBaseline, Message: "forecast deviates up to 22.6% from the 4-week baseline"}},
		Warnings:   []string{"component decomposition unavailable"},
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	s := Describe([]float64{4, 1, 3, 2})
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 2.5, s.Mean, 1e-9)
	assert.InDelta(t, 2.5, s.Median, 1e-9)
	assert.InDelta(t, math.Sqrt(5.0/3.0), s.StdDev, 1e-9)
	assert.InDelta(t, 1, s.Min, 1e-9)
	assert.InDelta(t, 4, s.Max, 1e-9)

	s = Describe([]float64{7, 1, 5})
	assert.InDelta(t, 5, s.Median, 1e-9)

	s = Describe([]float64{3})
	assert.Zero(t, s.StdDev)
	assert.InDelta(t, 3, s.Median, 1e-9)

	assert.Equal(t, Stats{}, Describe(nil))
}

func TestAnalyzeTrend(t *testing.T) {
	t.Parallel()

	r := sampleResult()
	tr := AnalyzeTrend(r.Observations, r.Forecast)
	assert.InDelta(t, 135, tr.HistoricalMean, 1e-9)
	assert.InDelta(t, 185, tr.ForecastMean, 1e-9)
	assert.InDelta(t, 50, tr.Delta, 1e-9)
	assert.InDelta(t, 50.0/135*100, tr.ChangePct, 1e-9)
	assert.Equal(t, DirectionIncreasing, tr.Direction)
	assert.InDelta(t, 10, tr.Slope, 1e-9)
	assert.InDelta(t, 22, tr.AvgHalfWidth, 1e-9)
}

func TestAnalyzeTrend_Directions(t *testing.T) {
	t.Parallel()

	fc := func(a, b float64) []model.ForecastPoint {
		return []model.ForecastPoint{{PointEstimate: a}, {PointEstimate: b}}
	}
	h := model.Series{{Cases: 10}}
	assert.Equal(t, DirectionDecreasing, AnalyzeTrend(h, fc(5, 3)).Direction)
	assert.Equal(t, DirectionFlat, AnalyzeTrend(h, fc(5, 5)).Direction)
	assert.Equal(t, DirectionFlat, AnalyzeTrend(h, nil).Direction)

	zero := AnalyzeTrend(model.Series{{Cases: 0}}, fc(1, 2))
	assert.True(t, math.IsNaN(zero.ChangePct))
}

func TestCompareBaseline(t *testing.T) {
	t.Parallel()

	r := sampleResult()
	rows := CompareBaseline(r.Observations, r.Forecast)
	require.Len(t, rows, 2)
	// Last four weeks: 140, 150, 160, 170.
	assert.InDelta(t, 155, rows[0].Baseline, 1e-9)
	assert.InDelta(t, 25, rows[0].Difference, 1e-9)
	assert.InDelta(t, 35, rows[1].Difference, 1e-9)
	assert.Equal(t, 9, rows[0].WeekIndex)
}

func TestNarrative(t *testing.T) {
	t.Parallel()

	text := Narrative(sampleResult(), language.English)
	assert.Contains(t, text, "Loaded 8 weeks of history (1 malformed rows dropped)")
	assert.Contains(t, text, "good (score 70/100, 1 issue(s) flagged)")
	assert.Contains(t, text, "average 185 per week")
	assert.Contains(t, text, "37.0% above the historical mean of 135")
	assert.Contains(t, text, "increasing across the horizon")
	assert.Contains(t, text, "MAE 4.5, MAPE 2.8%")
	assert.Contains(t, text, "In-sample accuracy is very good")
	assert.Contains(t, text, "Note: forecast deviates")
	assert.Contains(t, text, "Warning: component decomposition unavailable.")
}

func TestNarrative_NoForecastNoValidation(t *testing.T) {
	t.Parallel()

	r := sampleResult()
	r.Validation = nil
	text := Narrative(r, language.English)
	assert.Contains(t, text, "Hold-out validation was not available.")

	r.Forecast = nil
	text = Narrative(r, language.English)
	assert.Contains(t, text, "No forecast was produced.")
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Format{"": FormatTable, "TABLE": FormatTable, "json": FormatJSON, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestWrite_Table(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleResult(), FormatTable))
	out := buf.String()
	assert.Contains(t, out, "WEEK")
	assert.Contains(t, out, "2024-03-03")
	assert.Contains(t, out, "+25.0")
	assert.Contains(t, out, "Quality score:")
	assert.Contains(t, out, "insufficient_data")
	assert.Contains(t, out, "1,2,3,4,5,6,+2")
}

func TestWrite_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleResult(), FormatJSON))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Contains(t, doc, "result")
	assert.Contains(t, doc, "trend")
	assert.Len(t, doc["baseline_comparison"], 2)
}

func TestWrite_JSONZeroHistory(t *testing.T) {
	t.Parallel()

	r := sampleResult()
	for i := range r.Observations {
		r.Observations[i].Cases = 0
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r, FormatJSON))
}

func TestWrite_YAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleResult(), FormatYAML))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Contains(t, doc, "history_stats")
	assert.Contains(t, doc, "forecast_stats")
}

func TestRenderDashboard(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, RenderDashboard(&buf, sampleResult()))
	html := buf.String()
	assert.True(t, strings.Contains(html, "<html"))
	assert.Contains(t, html, "Weekly cases")
	assert.Contains(t, html, "Components")
	assert.Contains(t, html, "Residuals")
}

func TestRenderDashboard_NoAccuracy(t *testing.T) {
	t.Parallel()

	r := sampleResult()
	r.Accuracy = model.AccuracyReport{Available: false, Reason: "dates misaligned"}
	r.Components = nil
	var buf bytes.Buffer
	require.NoError(t, RenderDashboard(&buf, r))
	assert.NotContains(t, buf.String(), "Residuals")
	assert.NotContains(t, buf.String(), "Components")
}
