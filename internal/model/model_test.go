package model

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score int
		want  QualityStatus
	}{
		{100, QualityExcellent},
		{90, QualityExcellent},
		{89, QualityGood},
		{70, QualityGood},
		{69, QualityFair},
		{50, QualityFair},
		{49, QualityPoor},
		{0, QualityPoor},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusForScore(tt.score), "score %d", tt.score)
	}
}

func TestTierForMAPE(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TierVeryGood, TierForMAPE(0))
	assert.Equal(t, TierVeryGood, TierForMAPE(9.99))
	assert.Equal(t, TierGood, TierForMAPE(10))
	assert.Equal(t, TierGood, TierForMAPE(19.9))
	assert.Equal(t, TierNeedsImprovement, TierForMAPE(20))
	assert.Equal(t, TierNeedsImprovement, TierForMAPE(250))
}

func TestQualityReport_HighestSeverity(t *testing.T) {
	t.Parallel()

	r := QualityReport{}
	assert.Equal(t, Severity(""), r.HighestSeverity())

	r.Issues = []QualityIssue{
		{Category: IssueSuddenJump, Severity: SeverityInfo},
		{Category: IssueNonPositiveValue, Severity: SeverityError},
		{Category: IssueInsufficientData, Severity: SeverityWarning},
	}
	assert.Equal(t, SeverityError, r.HighestSeverity())
	assert.Len(t, r.IssuesOf(IssueSuddenJump), 1)
	assert.Empty(t, r.IssuesOf(IssueOutlier))
}

func TestSeries_CloneIsDeep(t *testing.T) {
	t.Parallel()

	s := Series{
		{WeekIndex: 1, Date: time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), Cases: 10, Factors: map[string]float64{"temperature": 20}},
	}
	c := s.Clone()
	c[0].Cases = 99
	c[0].Factors["temperature"] = 30

	assert.Equal(t, 10.0, s[0].Cases)
	assert.Equal(t, 20.0, s[0].Factors["temperature"])
}

func TestSeries_Helpers(t *testing.T) {
	t.Parallel()

	d := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	s := Series{
		{WeekIndex: 3, Date: d, Cases: 5, Factors: map[string]float64{"humidity": 1, "campaign": 0}},
		{WeekIndex: 1, Date: d.AddDate(0, 0, 7), Cases: 7, Factors: map[string]float64{"humidity": 2, "campaign": 1}},
	}

	assert.Equal(t, []float64{5, 7}, s.Cases())
	assert.Equal(t, []float64{1, 2}, s.Factor("humidity"))
	assert.Equal(t, []string{"campaign", "humidity"}, s.FactorNames())
	assert.True(t, s.HasFactor("campaign"))
	assert.False(t, s.HasFactor("tourists"))
	assert.Equal(t, 3, s.MaxWeek())

	byWeek := s.ByWeek()
	require.Len(t, byWeek, 2)
	assert.Equal(t, 1, byWeek[0].WeekIndex)
	assert.Equal(t, 3, s[0].WeekIndex, "ByWeek must not reorder the receiver")
}

func TestSpecFor(t *testing.T) {
	t.Parallel()

	spec := SpecFor(FactorCampaign)
	assert.Equal(t, ModeMultiplicative, spec.Mode)
	assert.InDelta(t, 0.8, spec.PriorScale, 1e-9)

	spec = SpecFor("rainfall")
	assert.Equal(t, ModeAdditive, spec.Mode)
	assert.InDelta(t, 0.5, spec.PriorScale, 1e-9)
	assert.False(t, IsRecognisedFactor("rainfall"))
	assert.Len(t, RecognisedFactors(), 8)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	r := &Result{
		Observations: Series{{WeekIndex: 1}, {WeekIndex: 2}},
		Quality:      QualityReport{Score: 80},
		Request:      ForecastRequest{HorizonWeeks: 1},
		Forecast:     []ForecastPoint{{WeekIndex: 3}},
	}
	sum := Summarize(r, []PhaseResult{{Name: "audit", Status: PhaseStatusComplete}})
	assert.Equal(t, 2, sum.Points)
	assert.Equal(t, 80, sum.QualityScore)
	assert.Equal(t, 1, sum.Horizon)
	assert.Len(t, sum.Phases, 1)
}

func TestClassify(t *testing.T) {
	cause := &net.DNSError{Err: "no such host", Name: "docs.google.com"}
	err := Classify(ErrIngestion, cause, "ingest: download sheet")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIngestion))

	var dnsErr *net.DNSError
	assert.True(t, errors.As(err, &dnsErr))
	assert.Contains(t, err.Error(), "ingest: download sheet")

	assert.NoError(t, Classify(ErrIngestion, nil, "noop"))
}
