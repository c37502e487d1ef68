package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/webharvest/go-harvester/internal/domain"
)

// retryableStatus is the set of HTTP statuses worth retrying. Other
// 4xx/5xx statuses terminate the fetch immediately.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// maxRetryAfter caps how long a server-supplied Retry-After header can
// delay the next attempt.
const maxRetryAfter = 5 * time.Minute

// Config holds fetch behavior settings.
type Config struct {
	// Timeout bounds each individual request attempt.
	Timeout time.Duration
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// BackoffBase is the wait before the second attempt.
	BackoffBase time.Duration
	// BackoffMultiplier grows the wait exponentially per attempt.
	BackoffMultiplier float64
	UserAgent         string
	// MinRequestInterval is the politeness floor between requests to
	// the same host. Applies to new targets, not retries.
	MinRequestInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 300 * time.Millisecond
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 2
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; harvester/1.0)"
	}
	return c
}

// Delay returns the backoff wait before the given attempt (1-based).
// The first attempt has no wait; attempt k waits base * mult^(k-2).
func Delay(attempt int, cfg Config) time.Duration {
	if attempt < 2 {
		return 0
	}
	cfg = cfg.withDefaults()
	return time.Duration(float64(cfg.BackoffBase) * math.Pow(cfg.BackoffMultiplier, float64(attempt-2)))
}

// Fetcher issues HTTP GET requests with retry, exponential backoff and
// per-host pacing. Pacing state is owned by the instance; independent
// fetchers do not share throttles.
type Fetcher struct {
	client *http.Client
	cfg    Config
	log    zerolog.Logger

	mu       sync.Mutex
	lastDone map[string]time.Time

	// Injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher with the given config.
func New(cfg Config, logger zerolog.Logger) *Fetcher {
	cfg = cfg.withDefaults()
	return &Fetcher{
		client:   &http.Client{},
		cfg:      cfg,
		log:      logger,
		lastDone: make(map[string]time.Time),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Config returns the effective configuration.
func (f *Fetcher) Config() Config { return f.cfg }

// Fetch retrieves a URL, retrying transient failures with exponential
// backoff. Cancellation is honored between attempts and during waits.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*domain.FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("url %q: not an absolute http(s) url", rawURL)
	}

	if err := f.pace(ctx, u.Host); err != nil {
		return nil, err
	}
	defer f.markDone(u.Host)

	maxAttempts := f.cfg.MaxRetries + 1
	var attempts []domain.Attempt
	lastStatus := 0
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, body, elapsed, retryAfter, err := f.do(ctx, rawURL)

		rec := domain.Attempt{Time: f.now(), StatusCode: status, Elapsed: elapsed}
		if err != nil {
			rec.Err = err.Error()
		}
		attempts = append(attempts, rec)
		lastStatus = status
		lastErr = err

		switch {
		case err == nil && status >= 200 && status < 300:
			f.log.Debug().Str("url", rawURL).Int("status", status).
				Int("attempt", attempt).Dur("elapsed", elapsed).Msg("fetched")
			return &domain.FetchResult{
				URL:        rawURL,
				StatusCode: status,
				Body:       body,
				Elapsed:    elapsed,
				Attempts:   attempt,
				Log:        attempts,
			}, nil
		case err == nil && !retryableStatus[status]:
			return nil, &domain.FetchError{
				Kind:       domain.FetchHTTPError,
				URL:        rawURL,
				StatusCode: status,
				Attempts:   attempt,
				Log:        attempts,
				Err:        fmt.Errorf("http status %d", status),
			}
		case err != nil && ctx.Err() != nil:
			// Run-level cancellation, not a per-request timeout.
			return nil, fmt.Errorf("fetch %s: %w", rawURL, ctx.Err())
		}

		if attempt == maxAttempts {
			break
		}

		wait := Delay(attempt+1, f.cfg)
		if status == http.StatusTooManyRequests && retryAfter > 0 {
			wait = retryAfter
		}
		f.log.Warn().Str("url", rawURL).Int("status", status).Err(err).
			Int("attempt", attempt).Dur("wait", wait).Msg("retrying")
		if err := f.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
	}

	kind := domain.FetchRetriesExhausted
	if lastErr != nil && errors.Is(lastErr, context.DeadlineExceeded) {
		kind = domain.FetchTimeout
	}
	return nil, &domain.FetchError{
		Kind:       kind,
		URL:        rawURL,
		StatusCode: lastStatus,
		Attempts:   maxAttempts,
		Log:        attempts,
		Err:        lastErr,
	}
}

// do performs a single attempt and classifies nothing; the caller
// decides retry policy from (status, err).
func (f *Fetcher) do(ctx context.Context, rawURL string) (status int, body []byte, elapsed time.Duration, retryAfter time.Duration, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, time.Since(start), 0, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	elapsed = time.Since(start)
	if err != nil {
		return resp.StatusCode, nil, elapsed, 0, fmt.Errorf("read body: %w", err)
	}

	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, perr := strconv.Atoi(v); perr == nil && secs >= 0 {
			retryAfter = time.Duration(secs) * time.Second
			if retryAfter > maxRetryAfter {
				retryAfter = maxRetryAfter
			}
		}
	}

	return resp.StatusCode, body, elapsed, retryAfter, nil
}

// pace enforces the per-host politeness interval before a new target.
func (f *Fetcher) pace(ctx context.Context, host string) error {
	if f.cfg.MinRequestInterval <= 0 {
		return nil
	}
	f.mu.Lock()
	last, ok := f.lastDone[host]
	f.mu.Unlock()
	if !ok {
		return nil
	}
	wait := f.cfg.MinRequestInterval - f.now().Sub(last)
	if wait <= 0 {
		return nil
	}
	f.log.Debug().Str("host", host).Dur("wait", wait).Msg("pacing")
	return f.sleep(ctx, wait)
}

// markDone records the completion time of the last request to a host.
func (f *Fetcher) markDone(host string) {
	f.mu.Lock()
	f.lastDone[host] = f.now()
	f.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
