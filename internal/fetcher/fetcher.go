// Package fetcher acquires usage records for a dashboard URL. It tries the
// JSON endpoints first when the URL carries an apiId, falls back to scraping
// the page, retries with backoff, and never fails: exhausted retries yield
// the all-zero default record.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/sdpower/ccstatusbar-go/internal/apistats"
	"github.com/sdpower/ccstatusbar-go/internal/calculator"
	"github.com/sdpower/ccstatusbar-go/internal/logger"
	"github.com/sdpower/ccstatusbar-go/internal/parser"
	"github.com/sdpower/ccstatusbar-go/internal/types"
)

// Source names where a record came from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceStore   Source = "store"
	SourceJSON    Source = "json"
	SourceHTML    Source = "html"
	SourceDefault Source = "default"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 800 * time.Millisecond
	MaxBackoff           = 30 * time.Second

	maxJitter   = 150 * time.Millisecond
	maxPageSize = 8 << 20
)

// Result is a record plus how it was obtained. Degraded is set when every
// attempt failed and Record is the default; Err then holds the last failure.
type Result struct {
	Record   types.UsageRecord
	Source   Source
	Degraded bool
	Err      error
	Attempts int
}

type Options struct {
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	Headers       map[string]string
	// NoCache skips the memory and store lookups. Successful results are
	// still written back.
	NoCache bool
}

func DefaultOptions() Options {
	return Options{
		Timeout:       DefaultTimeout,
		RetryAttempts: DefaultRetryAttempts,
		RetryDelay:    DefaultRetryDelay,
	}
}

// Persister is a durable second cache tier shared across processes.
type Persister interface {
	Latest(ctx context.Context, source string) (types.UsageRecord, bool, error)
	Save(ctx context.Context, source string, rec types.UsageRecord) error
}

type Fetcher struct {
	cache      *Cache
	httpClient *http.Client
	store      Persister
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	jitter     func() time.Duration
	flights    singleflight.Group
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

func WithPersister(p Persister) Option {
	return func(f *Fetcher) { f.store = p }
}

func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

func WithJitter(jitter func() time.Duration) Option {
	return func(f *Fetcher) { f.jitter = jitter }
}

// New builds a fetcher around cache. A nil cache gets the defaults.
func New(cache *Cache, opts ...Option) *Fetcher {
	if cache == nil {
		cache = NewCache(DefaultCacheTTL, DefaultCacheMaxEntries)
	}
	f := &Fetcher{
		cache:      cache,
		httpClient: &http.Client{},
		now:        time.Now,
		sleep:      sleepContext,
		jitter:     randomJitter,
	}
	for _, opt := range opts {
		opt(f)
	}
	cache.now = f.now
	return f
}

func (f *Fetcher) Cache() *Cache {
	return f.cache
}

// Fetch returns the record for sourceURL. It never returns an error; see
// FetchResult for the outcome details.
func (f *Fetcher) Fetch(ctx context.Context, sourceURL string, opts Options) types.UsageRecord {
	return f.FetchResult(ctx, sourceURL, opts).Record
}

// FetchResult is Fetch with provenance. Concurrent calls for the same URL and
// options share one acquisition; every caller receives its own copy.
func (f *Fetcher) FetchResult(ctx context.Context, sourceURL string, opts Options) Result {
	if !opts.NoCache {
		if rec, ok := f.cache.Get(sourceURL); ok {
			return Result{Record: rec, Source: SourceCache}
		}
	}

	v, _, _ := f.flights.Do(flightKey(sourceURL, opts), func() (any, error) {
		return f.acquire(ctx, sourceURL, opts), nil
	})
	res := v.(Result)
	res.Record = res.Record.Clone()
	return res
}

// flightKey identifies an acquisition. Callers with different headers or
// cache policy must not receive each other's result.
func flightKey(sourceURL string, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\x00%t\x00%d\x00%d\x00%d", sourceURL, opts.NoCache, opts.Timeout, opts.RetryAttempts, opts.RetryDelay)
	keys := lo.Keys(opts.Headers)
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\x00%s=%s", k, opts.Headers[k])
	}
	return b.String()
}

func (f *Fetcher) acquire(ctx context.Context, sourceURL string, opts Options) Result {
	if !opts.NoCache {
		if rec, ok := f.cache.Get(sourceURL); ok {
			return Result{Record: rec, Source: SourceCache}
		}
		if rec, ok := f.loadStored(ctx, sourceURL); ok {
			return Result{Record: rec, Source: SourceStore}
		}
	}

	attempts := max(opts.RetryAttempts, 1)
	var lastErr error
	for attempt := range attempts {
		rec, src, err := f.attempt(ctx, sourceURL, opts)
		if err == nil {
			rec = calculator.Normalize(rec)
			rec.LastUpdate = f.now()
			f.cache.Put(sourceURL, rec, 0)
			f.persist(ctx, sourceURL, rec)
			return Result{Record: rec, Source: src, Attempts: attempt + 1}
		}
		lastErr = err
		logger.Debug("fetch attempt failed",
			"url", logger.SafeURL(sourceURL),
			"attempt", attempt+1,
			"error", err)

		if attempt == attempts-1 {
			break
		}
		if err := f.sleep(ctx, Backoff(opts.RetryDelay, attempt, f.jitter())); err != nil {
			lastErr = err
			attempts = attempt + 1
			break
		}
	}

	logger.Warn("fetch failed, using default record",
		"url", logger.SafeURL(sourceURL),
		"attempts", attempts,
		"error", lastErr)
	return Result{
		Record:   types.DefaultRecord(f.now()),
		Source:   SourceDefault,
		Degraded: true,
		Err:      lastErr,
		Attempts: attempts,
	}
}

// attempt runs one JSON-then-HTML pass.
func (f *Fetcher) attempt(ctx context.Context, sourceURL string, opts Options) (types.UsageRecord, Source, error) {
	if _, _, err := apistats.Identifier(sourceURL); err == nil {
		client := apistats.NewClient(f.httpClient, opts.Headers, opts.Timeout)
		rec, err := client.Fetch(ctx, sourceURL)
		if err == nil {
			return rec, SourceJSON, nil
		}
		logger.Debug("json endpoints failed, falling back to page",
			"url", logger.SafeURL(sourceURL),
			"error", err)
	}

	rec, err := f.fetchPage(ctx, sourceURL, opts)
	if err != nil {
		return types.UsageRecord{}, "", err
	}
	return rec, SourceHTML, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, sourceURL string, opts Options) (types.UsageRecord, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	resp, err := f.get(ctx, sourceURL, opts.Headers)
	if err != nil {
		return types.UsageRecord{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.UsageRecord{}, &types.HTTPError{URL: logger.SafeURL(sourceURL), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return types.UsageRecord{}, fmt.Errorf("failed to read %s: %w", logger.SafeURL(sourceURL), err)
	}

	x := parser.ExtractHTML(string(body))
	if x.PagePercentage > 0 {
		logger.Debug("page percentage ignored, derived from cost and limit",
			"page", x.PagePercentage)
	}
	return x.UsageRecord, nil
}

// get issues a browser-like GET. Errors never carry the query string.
func (f *Fetcher) get(ctx context.Context, sourceURL string, extra map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s", logger.SafeURL(sourceURL))
	}
	headers := lo.Assign(map[string]string{
		"User-Agent":      apistats.DefaultUserAgent,
		"Accept-Language": apistats.DefaultAcceptLanguage,
	}, extra)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		// url.Error embeds the full URL, query string included.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("GET %s: %w", logger.SafeURL(sourceURL), err)
	}
	return resp, nil
}

// loadStored promotes a persisted record that is still inside the TTL.
func (f *Fetcher) loadStored(ctx context.Context, sourceURL string) (types.UsageRecord, bool) {
	if f.store == nil {
		return types.UsageRecord{}, false
	}
	rec, ok, err := f.store.Latest(ctx, sourceURL)
	if err != nil {
		logger.Debug("history lookup failed", "error", err)
		return types.UsageRecord{}, false
	}
	if !ok {
		return types.UsageRecord{}, false
	}
	age := f.now().Sub(rec.LastUpdate)
	if age < 0 || age >= f.cache.TTL() {
		return types.UsageRecord{}, false
	}
	rec = calculator.Normalize(rec)
	f.cache.Put(sourceURL, rec, f.cache.TTL()-age)
	return rec.Clone(), true
}

func (f *Fetcher) persist(ctx context.Context, sourceURL string, rec types.UsageRecord) {
	if f.store == nil {
		return
	}
	if err := f.store.Save(ctx, sourceURL, rec); err != nil {
		logger.Debug("history save failed", "error", err)
	}
}

// Backoff is base*2^attempt, capped at MaxBackoff (or base when base is
// larger), plus jitter.
func Backoff(base time.Duration, attempt int, jitter time.Duration) time.Duration {
	if base <= 0 {
		return jitter
	}
	limit := max(base, MaxBackoff)
	d := base
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	return min(d, limit) + jitter
}

func randomJitter() time.Duration {
	return time.Duration(rand.Int64N(int64(maxJitter)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
