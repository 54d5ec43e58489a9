package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/case-forecast/internal/fetcher"
	"github.com/sells-group/case-forecast/internal/model"
)

func testFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:     5 * time.Second,
		MaxAttempts: 2,
		HostRate:    100,
		BaseBackoff: time.Millisecond,
	})
}

func TestSheetSource_LoadAndRefresh(t *testing.T) {
	var downloads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		downloads.Add(1)
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(validCSV))
	}))
	defer srv.Close()

	src := NewSheetSource(testFetcher(), srv.URL+"/export?format=csv", "")

	table, info, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SourceSheet, info.Kind)
	assert.Equal(t, `"v1"`, info.ETag)
	assert.Equal(t, `"v1"`, src.ETag())
	assert.Len(t, table.Rows, 2)

	table, info, changed, err := src.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Nil(t, table)
	assert.Equal(t, `"v1"`, info.ETag)
	assert.Equal(t, int32(1), downloads.Load())
}

func TestSheetSource_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, _, err := NewSheetSource(testFetcher(), srv.URL, FormatCSV).Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrIngestion))
}

func TestSheetSource_MissingColumns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("date,count\n07/01/2024,3\n"))
	}))
	defer srv.Close()

	src := NewSheetSource(testFetcher(), srv.URL, FormatCSV)
	_, _, err := src.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrIngestion))
	assert.Empty(t, src.ETag())
}

func TestSheetSource_EmptyURL(t *testing.T) {
	_, _, err := NewSheetSource(testFetcher(), "", FormatCSV).Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrIngestion))
}
