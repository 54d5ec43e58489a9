package ingest

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/case-forecast/internal/model"
)

func TestSampleSource_Deterministic(t *testing.T) {
	a := SampleSource{Seed: 42}.Generate()
	b := SampleSource{Seed: 42}.Generate()
	c := SampleSource{Seed: 7}.Generate()

	assert.Equal(t, a, b)
	assert.NotEqual(t, a.Rows, c.Rows)
}

func TestSampleSource_Shape(t *testing.T) {
	table, info, err := SampleSource{Seed: 1}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SourceSample, info.Kind)
	require.NoError(t, table.RequireColumns())
	require.Len(t, table.Rows, 52)

	for i := range table.Rows {
		cases, err := strconv.ParseFloat(table.Value(i, ColCases), 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, cases, 0.0)

		week, err := strconv.Atoi(table.Value(i, ColWeekNum))
		require.NoError(t, err)
		assert.Equal(t, i+1, week)

		d, err := time.Parse(DateLayout, table.Value(i, ColEndDate))
		require.NoError(t, err)
		assert.Equal(t, DefaultSampleStart.AddDate(0, 0, 7*i), d)
	}
}

func TestSampleSource_WithFactors(t *testing.T) {
	table := SampleSource{Weeks: 10, Seed: 3, WithFactors: true}.Generate()
	require.Len(t, table.Rows, 10)
	for _, name := range model.RecognisedFactors() {
		assert.GreaterOrEqual(t, table.Column(name), 0, name)
	}
	for i := range table.Rows {
		for _, name := range []string{model.FactorHolidayFlag, model.FactorCampaign, model.FactorSchoolClosed} {
			v := table.Value(i, name)
			assert.Contains(t, []string{"0.00", "1.00"}, v)
		}
	}
}
