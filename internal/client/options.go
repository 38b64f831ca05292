package client

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Defaults applied by New.
const (
	DefaultStaleTime   = 30 * time.Second
	DefaultGCTime      = 5 * time.Minute
	DefaultCacheSize   = 128
	DefaultMaxRetries  = 3
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultRateLimit   = 10
	DefaultBurst       = 10
	DefaultHTTPTimeout = 15 * time.Second
)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenSource attaches bearer credentials to every request.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetry configures the retry budget and backoff bounds. A negative
// maxRetries disables retries.
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		if maxRetries < 0 {
			maxRetries = 0
		}
		c.maxRetries = maxRetries
		if baseDelay > 0 {
			c.baseDelay = baseDelay
		}
		if maxDelay > 0 {
			c.maxDelay = maxDelay
		}
	}
}

// WithRateLimit paces outbound requests. A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithStaleTime sets how long a cached result is served without a refetch.
func WithStaleTime(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.staleTime = d
		}
	}
}

// WithGCTime sets how long an unused cached result is retained.
func WithGCTime(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.gcTime = d
		}
	}
}

// WithCacheSize bounds the number of cached queries.
func WithCacheSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

// WithClock overrides the time source used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}
