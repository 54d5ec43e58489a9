package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/case-forecast/internal/resilience"
)

// DefaultMaxBody caps a downloaded sheet when HTTPOptions.MaxBody is zero.
const DefaultMaxBody = 32 << 20

// HTTPOptions configures the HTTP fetcher. Zero fields take defaults.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// MaxAttempts counts the first request. Default 3.
	MaxAttempts int
	// HostRate is the starting per-host request rate. Default 5 req/s.
	HostRate rate.Limit
	// BaseBackoff is the first retry delay ceiling. Default one second.
	BaseBackoff time.Duration
	// MaxBody fails downloads larger than this many bytes.
	MaxBody int64
}

// hostLimiter is a per-host token bucket that slows down on 429 and
// recovers on success, staying within [initial/4, initial*2].
type hostLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	floor   rate.Limit
	ceiling rate.Limit
	current rate.Limit
}

func newHostLimiter(initial rate.Limit) *hostLimiter {
	return &hostLimiter{
		limiter: rate.NewLimiter(initial, max(int(initial), 1)),
		floor:   initial / 4,
		ceiling: initial * 2,
		current: initial,
	}
}

func (h *hostLimiter) wait(ctx context.Context) error { return h.limiter.Wait(ctx) }

func (h *hostLimiter) adjust(factor float64) rate.Limit {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = min(max(h.current*rate.Limit(factor), h.floor), h.ceiling)
	h.limiter.SetLimit(h.current)
	return h.current
}

func (h *hostLimiter) limit() rate.Limit {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// HTTPFetcher implements Fetcher on net/http with retries and per-host
// rate limiting.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu    sync.Mutex
	hosts map[string]*hostLimiter
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "case-forecast/1.0"
	}
	if opts.HostRate <= 0 {
		opts.HostRate = 5
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = DefaultMaxBody
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				MaxConnsPerHost:     8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:  opts,
		hosts: make(map[string]*hostLimiter),
	}
}

func (f *HTTPFetcher) hostFor(u *url.URL) *hostLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hosts[u.Host]
	if !ok {
		h = newHostLimiter(f.opts.HostRate)
		f.hosts[u.Host] = h
	}
	return h
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	body, _, _, err := f.fetch(ctx, rawURL, "")
	return body, err
}

// DownloadIfChanged sends etag as If-None-Match. A 304 returns a nil body,
// the same etag and changed=false.
func (f *HTTPFetcher) DownloadIfChanged(ctx context.Context, rawURL string, etag string) (io.ReadCloser, string, bool, error) {
	return f.fetch(ctx, rawURL, etag)
}

func (f *HTTPFetcher) fetch(ctx context.Context, rawURL, etag string) (io.ReadCloser, string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", false, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	host := f.hostFor(req.URL)
	retry := resilience.RetryConfig{
		MaxAttempts:    f.opts.MaxAttempts,
		InitialBackoff: f.opts.BaseBackoff,
		MaxBackoff:     30 * time.Second,
		Label:          "GET " + req.URL.Host,
	}
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*http.Response, error) {
		return f.attempt(ctx, req, host)
	})
	if err != nil {
		return nil, "", false, eris.Wrapf(err, "fetcher: GET %s", rawURL)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return &cappedBody{rc: resp.Body, left: f.opts.MaxBody}, resp.Header.Get("ETag"), true, nil
	case http.StatusNotModified:
		_ = resp.Body.Close()
		return nil, etag, false, nil
	default:
		_ = resp.Body.Close()
		return nil, "", false, eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL)
	}
}

// attempt makes one request, marking retryable failures transient.
func (f *HTTPFetcher) attempt(ctx context.Context, req *http.Request, host *hostLimiter) (*http.Response, error) {
	if err := host.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	resp, err := f.client.Do(req.Clone(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, resilience.NewTransientError(err, 0)
	}

	if !resilience.IsTransientHTTPStatus(resp.StatusCode) {
		host.adjust(1.2)
		return resp, nil
	}

	_ = resp.Body.Close()
	te := resilience.NewTransientError(eris.Errorf("http %d from %s", resp.StatusCode, req.URL.Host), resp.StatusCode)
	te.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	if resp.StatusCode == http.StatusTooManyRequests {
		r := host.adjust(0.5)
		zap.L().Warn("fetcher: rate limited, slowing down",
			zap.String("host", req.URL.Host),
			zap.Float64("rate", float64(r)),
		)
	}
	return nil, te
}

// parseRetryAfter reads delay-seconds or an HTTP date. Unparseable or
// past values yield zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return max(time.Duration(secs)*time.Second, 0)
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(t.Sub(now), 0)
	}
	return 0
}

// cappedBody fails the read that would take the body past its limit.
type cappedBody struct {
	rc   io.ReadCloser
	left int64
}

func (c *cappedBody) Read(p []byte) (int, error) {
	if c.left <= 0 {
		var probe [1]byte
		n, err := c.rc.Read(probe[:])
		if n > 0 {
			return 0, eris.New("fetcher: response body too large")
		}
		return 0, err
	}
	if int64(len(p)) > c.left {
		p = p[:c.left]
	}
	n, err := c.rc.Read(p)
	c.left -= int64(n)
	return n, err
}

func (c *cappedBody) Close() error { return c.rc.Close() }
