// Package client fetches product records from the TracceAqua records API.
//
// Fetches retry transient failures with exponential backoff, are paced by a
// token bucket, share one request per query key while in flight, and are
// cached with stale-while-revalidate semantics.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"tracceaqua/pkg/domain"
)

const (
	recordsPath     = "/api/v1/records"
	maxErrorBody    = 4 << 10
	refreshDeadline = 30 * time.Second
)

type cacheEntry struct {
	records   []domain.ProductRecord
	fetchedAt time.Time
}

// Client is a RecordFetcher backed by the records HTTP API. It is safe for
// concurrent use. Close stops background refreshes.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens TokenSource
	logger *zap.Logger

	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	jitter     func(time.Duration) time.Duration

	group     singleflight.Group
	cache     *expirable.LRU[string, cacheEntry]
	cacheSize int
	staleTime time.Duration
	gcTime    time.Duration
	gen       atomic.Uint64
	now       func() time.Time

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// New constructs a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:       base,
		http:       &http.Client{Timeout: DefaultHTTPTimeout},
		logger:     zap.NewNop(),
		limiter:    rate.NewLimiter(DefaultRateLimit, DefaultBurst),
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		maxDelay:   DefaultMaxDelay,
		jitter:     halfJitter,
		cacheSize:  DefaultCacheSize,
		staleTime:  DefaultStaleTime,
		gcTime:     DefaultGCTime,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cache = expirable.NewLRU[string, cacheEntry](c.cacheSize, nil, c.gcTime)
	c.bgCtx, c.bgCancel = context.WithCancel(context.Background())
	return c, nil
}

// FetchRecords returns every record matching query. Fresh cached results are
// returned without a request; stale ones are returned immediately while a
// background refetch updates the cache. The result is either the complete
// list or an error.
func (c *Client) FetchRecords(ctx context.Context, query domain.RecordQuery) ([]domain.ProductRecord, error) {
	key := query.Key()
	if entry, ok := c.cache.Get(key); ok {
		if c.now().Sub(entry.fetchedAt) >= c.staleTime {
			c.revalidate(key, query)
		}
		return cloneRecords(entry.records), nil
	}
	records, err := c.load(ctx, key, query)
	if err != nil {
		return nil, err
	}
	return cloneRecords(records), nil
}

// Invalidate drops every cached result. Fetches already in flight do not
// repopulate the cache.
func (c *Client) Invalidate() {
	c.gen.Add(1)
	c.cache.Purge()
}

// Close cancels background refreshes and waits for them to exit.
func (c *Client) Close() error {
	c.bgCancel()
	c.bg.Wait()
	return nil
}

func (c *Client) revalidate(key string, query domain.RecordQuery) {
	if c.bgCtx.Err() != nil {
		return
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(c.bgCtx, refreshDeadline)
		defer cancel()
		if _, err := c.load(ctx, key, query); err != nil {
			c.logger.Warn("background refresh failed", zap.String("query", key), zap.Error(err))
		}
	}()
}

// load fetches through the singleflight group so concurrent callers for the
// same key share one request. The shared request is detached from the caller
// that started it and ends only on Close or refreshDeadline; each caller may
// stop waiting on its own context.
func (c *Client) load(ctx context.Context, key string, query domain.RecordQuery) ([]domain.ProductRecord, error) {
	gen := c.gen.Load()
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshDeadline)
		defer cancel()
		stop := context.AfterFunc(c.bgCtx, cancel)
		defer stop()
		records, err := c.fetch(fetchCtx, query)
		if err != nil {
			return nil, err
		}
		if c.gen.Load() == gen {
			c.cache.Add(key, cacheEntry{records: records, fetchedAt: c.now()})
		}
		return records, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.ProductRecord), nil
	}
}

func (c *Client) fetch(ctx context.Context, query domain.RecordQuery) ([]domain.ProductRecord, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		records, err := c.do(ctx, query)
		if err == nil {
			return records, nil
		}
		if !c.retryable(ctx, err) {
			return nil, err
		}
		if attempt >= c.maxRetries {
			return nil, fmt.Errorf("fetch records after %d attempts: %w", attempt+1, err)
		}
		delay := c.backoff(attempt, err)
		c.logger.Debug("retrying record fetch",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (c *Client) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var netErr *transportError
	return errors.As(err, &netErr)
}

func (c *Client) backoff(attempt int, err error) time.Duration {
	delay := c.baseDelay << attempt
	if delay <= 0 || delay > c.maxDelay {
		delay = c.maxDelay
	}
	delay += c.jitter(delay)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > delay {
		delay = statusErr.RetryAfter
	}
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

func halfJitter(d time.Duration) time.Duration {
	if d <= 1 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d / 2)))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// transportError marks failures below HTTP: dial, TLS, reset, timeout.
type transportError struct{ err error }

func (e *transportError) Error() string { return "records api transport: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func (c *Client) do(ctx context.Context, query domain.RecordQuery) ([]domain.ProductRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.recordsURL(query), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transportError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("read body: %w", err)}
	}
	return decodeRecords(body)
}

func (c *Client) recordsURL(query domain.RecordQuery) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + recordsPath
	values := url.Values{}
	set := func(name, value string) {
		if value != "" {
			values.Set(name, value)
		}
	}
	set("status", string(query.Status))
	set("sourceType", string(query.SourceType))
	set("search", strings.TrimSpace(query.Search))
	set("sortBy", query.SortBy)
	set("sortOrder", string(query.SortOrder))
	u.RawQuery = values.Encode()
	return u.String()
}

func statusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	out := &StatusError{StatusCode: resp.StatusCode}
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &envelope) == nil && (envelope.Error != "" || envelope.Message != "") {
		out.Message = envelope.Error
		if out.Message == "" {
			out.Message = envelope.Message
		}
	} else {
		out.Message = strings.TrimSpace(string(body))
	}
	if raw := resp.Header.Get("Retry-After"); raw != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && secs > 0 {
			out.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return out
}

// decodeRecords accepts a bare JSON array or an object carrying the array
// under "data" or "records".
func decodeRecords(body []byte) ([]domain.ProductRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []domain.ProductRecord{}, nil
	}
	var records []domain.ProductRecord
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
	case '{':
		var envelope struct {
			Data    *[]domain.ProductRecord `json:"data"`
			Records *[]domain.ProductRecord `json:"records"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("decode records envelope: %w", err)
		}
		switch {
		case envelope.Data != nil:
			records = *envelope.Data
		case envelope.Records != nil:
			records = *envelope.Records
		default:
			return nil, errors.New("decode records: response object has no data or records array")
		}
	default:
		return nil, fmt.Errorf("decode records: unexpected response starting with %q", trimmed[0])
	}
	if records == nil {
		records = []domain.ProductRecord{}
	}
	return records, nil
}

func cloneRecords(in []domain.ProductRecord) []domain.ProductRecord {
	out := make([]domain.ProductRecord, len(in))
	copy(out, in)
	return out
}
