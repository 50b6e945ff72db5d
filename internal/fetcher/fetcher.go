// Package fetcher opens dataset sources that may be local files or http(s)
// URLs. Remote downloads share one rate limiter and retry transient failures.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/ecm-cli/internal/resilience"
)

// Options configures a Fetcher.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// RateLimit caps requests per second across all hosts; zero means 5.
	RateLimit rate.Limit
	Burst     int
	// Backoff is the base delay between retries; zero means one second.
	Backoff time.Duration
}

// Fetcher opens local paths and downloads remote URLs.
type Fetcher struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// New creates a Fetcher with the given options.
func New(opts Options) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "ecm-cli/1.0"
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = 5
	}
	if opts.Burst == 0 {
		opts.Burst = 5
	}
	if opts.Backoff == 0 {
		opts.Backoff = time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: rate.NewLimiter(opts.RateLimit, opts.Burst),
	}
}

// IsURL reports whether location is an http or https URL.
func IsURL(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Open returns a reader for location, downloading it when it is a URL.
func (f *Fetcher) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if IsURL(location) {
		return f.Download(ctx, location)
	}
	file, err := os.Open(strings.TrimPrefix(location, "file://"))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: open")
	}
	return file, nil
}

// Download fetches rawURL and returns the response body. Network errors,
// 429 and 5xx responses are retried with backoff.
func (f *Fetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	retry := resilience.RetryConfig{
		MaxAttempts:    f.opts.MaxRetries,
		InitialBackoff: f.opts.Backoff,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.5,
		OnRetry: func(attempt int, err error) {
			zap.L().Warn("download failed, retrying",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		},
	}

	body, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (io.ReadCloser, error) {
		return f.get(ctx, rawURL)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: download %s", rawURL)
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		_ = resp.Body.Close()
		return nil, resilience.NewTransientError(eris.Errorf("http %d", resp.StatusCode))
	default:
		_ = resp.Body.Close()
		return nil, eris.Errorf("unexpected status %d", resp.StatusCode)
	}
}
