package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/grants-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// MaxRetries is the number of extra attempts after a 429, 5xx, or network error.
	MaxRetries int
	// RetryBase overrides the delay before the first retry.
	RetryBase time.Duration
	// RateLimiters overrides the per-host limiter. Hosts not listed share DefaultRate.
	RateLimiters map[string]*rate.Limiter
	// MaxBodyBytes caps how much of a response body is read. Zero means 512 MiB.
	MaxBodyBytes int64
}

// DefaultRate is the request rate applied to hosts without a dedicated limiter.
const DefaultRate rate.Limit = 5

// HTTPFetcher implements Fetcher using net/http with retry and rate limiting.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "grants-cli/1.0"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 512 << 20
	}
	limiters := make(map[string]*rate.Limiter)
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		// Extracts are already gzip; keep the body byte-for-byte.
		DisableCompression: true,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: limiters,
	}
}

func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(DefaultRate, int(DefaultRate))
		f.limiters[host] = lim
	}
	return lim
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	policy := resilience.DownloadPolicy(f.opts.MaxRetries)
	if f.opts.RetryBase > 0 {
		policy.Base = f.opts.RetryBase
	}

	lim := f.limiterFor(rawURL)

	resp, err := resilience.DoVal(ctx, policy, func(ctx context.Context) (*http.Response, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			statusErr := &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return nil, statusErr
		}
		return resp, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "download %s", rawURL)
	}

	zap.L().Debug("download started",
		zap.String("component", "fetcher"),
		zap.String("url", rawURL),
		zap.Int64("content_length", resp.ContentLength),
	)

	return &limitedBody{
		Reader: io.LimitReader(resp.Body, f.opts.MaxBodyBytes),
		Closer: resp.Body,
	}, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}
