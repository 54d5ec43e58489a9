package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/case-forecast/internal/resilience"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:   "test-agent",
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		HostRate:    100,
		BaseBackoff: time.Millisecond,
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte("end_date,cases,week_num\n"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.Download(context.Background(), srv.URL+"/export")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "end_date,cases,week_num\n", string(data))
}

func TestDownload_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestDownload_InvalidURL(t *testing.T) {
	_, err := newTestFetcher().Download(context.Background(), "://bad")
	assert.Error(t, err)
}

func TestDownloadIfChanged_NotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"etag1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte("should not reach"))
	}))
	defer srv.Close()

	body, etag, changed, err := newTestFetcher().DownloadIfChanged(context.Background(), srv.URL+"/res", `"etag1"`)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Nil(t, body)
	assert.Equal(t, `"etag1"`, etag)
}

func TestDownloadIfChanged_Changed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"etag2"`)
		w.Write([]byte("new content"))
	}))
	defer srv.Close()

	body, etag, changed, err := newTestFetcher().DownloadIfChanged(context.Background(), srv.URL+"/res", `"etag1"`)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, `"etag2"`, etag)

	data, err := io.ReadAll(body)
	body.Close()
	require.NoError(t, err)
	assert.Equal(t, "new content", string(data))
}

func TestDownloadIfChanged_NoETagSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("If-None-Match"))
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	body, etag, changed, err := newTestFetcher().DownloadIfChanged(context.Background(), srv.URL, "")
	require.NoError(t, err)
	defer body.Close()
	assert.True(t, changed)
	assert.Empty(t, etag)
}

func TestDownloadIfChanged_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, _, _, err := newTestFetcher().DownloadIfChanged(context.Background(), srv.URL, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 403")
}

func TestRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("success"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL+"/retry")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "success", string(data))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxAttempts: 2, HostRate: 100, BaseBackoff: time.Millisecond})
	_, err := f.Download(context.Background(), srv.URL+"/fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher: GET")
	assert.True(t, resilience.IsTransient(err))
}

func TestClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
	assert.False(t, resilience.IsTransient(err))
}

func TestRetryOn429_ReducesRate(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	body.Close()

	// Halved to 50, then raised 20% on success.
	assert.InDelta(t, 60, float64(f.hostFor(mustParse(t, srv.URL)).limit()), 0.001)
}

func TestDownload_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFetcher().Download(ctx, srv.URL)
	assert.Error(t, err)
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, 30*time.Second, f.opts.Timeout)
	assert.Equal(t, 3, f.opts.MaxAttempts)
	assert.Equal(t, int64(DefaultMaxBody), f.opts.MaxBody)
	assert.Equal(t, "case-forecast/1.0", f.opts.UserAgent)
	assert.Equal(t, rate.Limit(5), f.opts.HostRate)
	assert.Equal(t, time.Second, f.opts.BaseBackoff)
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestHostFor_SharedPerHost(t *testing.T) {
	f := newTestFetcher()
	a := f.hostFor(mustParse(t, "https://docs.google.com/spreadsheets/d/a/export"))
	b := f.hostFor(mustParse(t, "https://docs.google.com/spreadsheets/d/b/export"))
	c := f.hostFor(mustParse(t, "https://example.com/data.csv"))
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestHostLimiter_Bounds(t *testing.T) {
	h := newHostLimiter(10)
	for range 10 {
		h.adjust(1.2)
	}
	assert.InDelta(t, 20, float64(h.limit()), 0.001)

	for range 10 {
		h.adjust(0.5)
	}
	assert.InDelta(t, 2.5, float64(h.limit()), 0.001)
}

func TestHostLimiter_WaitContextCancelled(t *testing.T) {
	h := newHostLimiter(0.001)
	require.NoError(t, h.wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, h.wait(ctx))
}

func TestRetryAfterHonored(t *testing.T) {
	var attempts atomic.Int32
	var first time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			first = time.Now()
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.NoError(t, err)
	body.Close()
	assert.Equal(t, int32(2), attempts.Load())
	assert.GreaterOrEqual(t, time.Since(first), 900*time.Millisecond)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, 7*time.Second, parseRetryAfter("7", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter("Sat, 01 Mar 2025 12:01:30 GMT", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("Sat, 01 Mar 2025 11:00:00 GMT", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
}

func TestDownload_BodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789abcdef"))
	}))
	defer srv.Close()

	small := NewHTTPFetcher(HTTPOptions{MaxBody: 10, HostRate: 100})
	body, err := small.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()
	_, err = io.ReadAll(body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")

	exact := NewHTTPFetcher(HTTPOptions{MaxBody: 16, HostRate: 100})
	body2, err := exact.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body2.Close()
	data, err := io.ReadAll(body2)
	require.NoError(t, err)
	assert.Len(t, data, 16)
}
