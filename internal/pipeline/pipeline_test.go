package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/case-forecast/internal/config"
	"github.com/sells-group/case-forecast/internal/forecast"
	"github.com/sells-group/case-forecast/internal/forecast/additive"
	"github.com/sells-group/case-forecast/internal/ingest"
	"github.com/sells-group/case-forecast/internal/model"
	"github.com/sells-group/case-forecast/internal/resilience"
)

// weeklyCSV builds n weekly rows of slowly rising cases with a temperature
// column, plus any extra raw lines.
func weeklyCSV(n int, extra ...string) []byte {
	var b strings.Builder
	b.WriteString("end_date,cases,week_num,temperature\n")
	start := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	for i := range n {
		d := start.AddDate(0, 0, 7*i)
		cases := 100 + 2*i + (i%3)*4
		fmt.Fprintf(&b, "%s,%d,%d,%d\n", d.Format(ingest.DateLayout), cases, i+1, 10+i%5)
	}
	for _, line := range extra {
		b.WriteString(line + "\n")
	}
	return []byte(b.String())
}

func testConfig() *config.Config {
	return &config.Config{Source: config.SourceConfig{LoadRetries: 0}}
}

func newTestPipeline(st *mockStore) *Pipeline {
	adapter := forecast.NewAdapter(additive.New(), forecast.DefaultSettings(), nil)
	if st == nil {
		return New(testConfig(), nil, adapter)
	}
	return New(testConfig(), st, adapter)
}

func expectTrackedRun(st *mockStore, phases int) {
	st.On("CreateRun", mock.Anything, mock.Anything).Return(&model.Run{ID: "run-1"}, nil)
	st.On("UpdateRunStatus", mock.Anything, "run-1", mock.Anything).Return(nil)
	st.On("CreatePhase", mock.Anything, "run-1", mock.Anything).
		Return(&model.RunPhase{ID: "phase"}, nil).Times(phases)
	st.On("CompletePhase", mock.Anything, "phase", mock.Anything).Return(nil).Times(phases)
}

func TestRun_Success(t *testing.T) {
	st := &mockStore{}
	expectTrackedRun(st, 5)

	var summary *model.RunSummary
	st.On("UpdateRunResult", mock.Anything, "run-1", mock.Anything).
		Run(func(args mock.Arguments) { summary = args.Get(2).(*model.RunSummary) }).
		Return(nil)

	p := newTestPipeline(st)
	src := ingest.UploadSource{Name: "cases.csv", Data: weeklyCSV(20)}

	res, err := p.Run(context.Background(), src, Request{HorizonWeeks: 4})
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, model.SourceUpload, res.Source.Kind)
	require.Len(t, res.Forecast, 4)
	assert.Equal(t, 21, res.Forecast[0].WeekIndex)
	for _, f := range res.Forecast {
		assert.LessOrEqual(t, f.LowerBound, f.PointEstimate)
		assert.LessOrEqual(t, f.PointEstimate, f.UpperBound)
		assert.GreaterOrEqual(t, f.LowerBound, 0.0)
	}
	assert.NotNil(t, res.Validation)
	assert.True(t, res.Accuracy.Available)
	assert.Greater(t, res.Baseline, 0.0)
	assert.Len(t, res.Observations, 20)

	require.NotNil(t, summary)
	require.Len(t, summary.Phases, 5)
	names := make([]string, len(summary.Phases))
	for i, ph := range summary.Phases {
		names[i] = ph.Name
		assert.Equal(t, model.PhaseStatusComplete, ph.Status)
	}
	assert.Equal(t, []string{PhaseIngest, PhaseAudit, PhaseFit, PhaseClamp, PhaseEvaluate}, names)
	assert.Equal(t, 4, summary.Horizon)

	st.AssertCalled(t, "UpdateRunStatus", mock.Anything, "run-1", model.RunStatusComplete)
	st.AssertNotCalled(t, "FailRun", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_IngestFailureFailsRun(t *testing.T) {
	st := &mockStore{}
	expectTrackedRun(st, 1)
	st.On("FailRun", mock.Anything, "run-1", mock.Anything).Return(nil)

	src := &mockSource{}
	src.On("Load", mock.Anything).
		Return(nil, model.SourceInfo{Kind: model.SourceSheet}, model.Classify(model.ErrIngestion, errors.New("HTTP 404"), "ingest: download sheet"))

	p := newTestPipeline(st)
	_, err := p.Run(context.Background(), src, Request{HorizonWeeks: 4})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrIngestion))

	src.AssertNumberOfCalls(t, "Load", 1)
	st.AssertCalled(t, "FailRun", mock.Anything, "run-1", mock.Anything)
	st.AssertNotCalled(t, "UpdateRunResult", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_RetriesTransientLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps for one backoff")
	}
	src := &mockSource{}
	transient := resilience.NewTransientError(errors.New("503 Service Unavailable"), 503)
	src.On("Load", mock.Anything).Return(nil, model.SourceInfo{Kind: model.SourceSheet}, transient).Once()
	table, err := ingest.Parse(context.Background(), weeklyCSV(12), ingest.FormatCSV)
	require.NoError(t, err)
	src.On("Load", mock.Anything).Return(table, model.SourceInfo{Kind: model.SourceSheet, Location: "sheet"}, nil).Once()

	p := newTestPipeline(nil)
	p.cfg.Source.LoadRetries = 1

	ds, err := p.Load(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, ds.Series, 12)
	src.AssertNumberOfCalls(t, "Load", 2)
}

func TestRun_CreateRunError(t *testing.T) {
	st := &mockStore{}
	st.On("CreateRun", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	p := newTestPipeline(st)
	_, err := p.Run(context.Background(), ingest.SampleSource{Weeks: 20, Seed: 1}, Request{HorizonWeeks: 4})
	assert.ErrorContains(t, err, "create run")
}

func TestRun_StoreWriteErrorsDoNotFailRun(t *testing.T) {
	st := &mockStore{}
	st.On("CreateRun", mock.Anything, mock.Anything).Return(&model.Run{ID: "run-1"}, nil)
	st.On("UpdateRunStatus", mock.Anything, "run-1", mock.Anything).Return(errors.New("locked"))
	st.On("CreatePhase", mock.Anything, "run-1", mock.Anything).Return(nil, errors.New("locked"))
	st.On("UpdateRunResult", mock.Anything, "run-1", mock.Anything).Return(errors.New("locked"))

	p := newTestPipeline(st)
	res, err := p.Run(context.Background(), ingest.UploadSource{Name: "c.csv", Data: weeklyCSV(16)}, Request{HorizonWeeks: 2})
	require.NoError(t, err)
	assert.Len(t, res.Forecast, 2)
	st.AssertNotCalled(t, "CompletePhase", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoad_DroppedRowsAndQuality(t *testing.T) {
	p := newTestPipeline(nil)
	src := ingest.UploadSource{Name: "c.csv", Data: weeklyCSV(10, "not-a-date,5,11,10", "14/03/2024,,12,10")}

	ds, err := p.Load(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.DroppedRows)
	assert.Len(t, ds.Series, 10)
	assert.Equal(t, model.SourceUpload, ds.Source.Kind)
	assert.NotEmpty(t, ds.Quality.Status)
	assert.False(t, ds.LoadedAt.IsZero())
}

func TestLoad_EmptySeries(t *testing.T) {
	p := newTestPipeline(nil)
	src := ingest.UploadSource{Name: "c.csv", Data: []byte("end_date,cases,week_num\nbad,bad,bad\n")}

	_, err := p.Load(context.Background(), src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrEmptySeries))
}

func TestForecast_HorizonTooLong(t *testing.T) {
	p := newTestPipeline(nil)
	ds, err := p.Load(context.Background(), ingest.UploadSource{Name: "c.csv", Data: weeklyCSV(10)})
	require.NoError(t, err)

	_, err = p.Forecast(context.Background(), ds, Request{HorizonWeeks: 6})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidRequest))
}

func TestForecast_ReservedFactor(t *testing.T) {
	p := newTestPipeline(nil)
	ds, err := p.Load(context.Background(), ingest.UploadSource{Name: "c.csv", Data: weeklyCSV(12)})
	require.NoError(t, err)

	_, err = p.Forecast(context.Background(), ds, Request{HorizonWeeks: 2, Factors: []string{"holidays"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrReservedName))
}

func TestForecast_FactorModes(t *testing.T) {
	p := newTestPipeline(nil)
	ds, err := p.Load(context.Background(), ingest.UploadSource{Name: "c.csv", Data: weeklyCSV(20)})
	require.NoError(t, err)

	res, err := p.Forecast(context.Background(), ds, Request{
		HorizonWeeks: 3,
		Factors:      []string{"temperature"},
		FutureMode:   model.FutureLast,
	})
	require.NoError(t, err)
	assert.Equal(t, ds.Series[len(ds.Series)-1].Factors["temperature"], res.Request.FutureValues["temperature"])
	assert.Len(t, res.Forecast, 3)

	_, err = p.Forecast(context.Background(), ds, Request{
		HorizonWeeks: 3,
		Factors:      []string{"temperature"},
		FutureMode:   model.FutureManual,
	})
	assert.True(t, errors.Is(err, model.ErrInvalidRequest))
}

func TestForecast_DoesNotMutateDataset(t *testing.T) {
	p := newTestPipeline(nil)
	ds, err := p.Load(context.Background(), ingest.UploadSource{Name: "c.csv", Data: weeklyCSV(16)})
	require.NoError(t, err)
	before := ds.Series.Clone()

	_, err = p.Forecast(context.Background(), ds, Request{HorizonWeeks: 4})
	require.NoError(t, err)
	assert.Equal(t, before, ds.Series)
}

func TestForecast_NilDataset(t *testing.T) {
	p := newTestPipeline(nil)
	_, err := p.Forecast(context.Background(), nil, Request{HorizonWeeks: 4})
	assert.True(t, errors.Is(err, model.ErrEmptySeries))
}
