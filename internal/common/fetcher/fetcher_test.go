package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webharvest/go-harvester/internal/domain"
)

func newTestFetcher(cfg Config) (*Fetcher, *[]time.Duration) {
	f := New(cfg, zerolog.Nop())
	var sleeps []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return f, &sleeps
}

func TestDelay(t *testing.T) {
	cfg := Config{BackoffBase: 100 * time.Millisecond, BackoffMultiplier: 2}

	assert.Equal(t, time.Duration(0), Delay(1, cfg))
	assert.Equal(t, 100*time.Millisecond, Delay(2, cfg))
	assert.Equal(t, 200*time.Millisecond, Delay(3, cfg))
	assert.Equal(t, 400*time.Millisecond, Delay(4, cfg))
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	f, sleeps := newTestFetcher(Config{MaxRetries: 3})
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, 1, res.Attempts)
	assert.Contains(t, string(res.Body), "ok")
	assert.Len(t, res.Log, 1)
	assert.Empty(t, *sleeps)
}

func TestRetriesExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := Config{MaxRetries: 2, BackoffBase: 100 * time.Millisecond, BackoffMultiplier: 2}
	f, sleeps := newTestFetcher(cfg)

	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var ferr *domain.FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, domain.FetchRetriesExhausted, ferr.Kind)
	assert.Equal(t, 500, ferr.StatusCode)
	assert.Equal(t, 3, ferr.Attempts)
	assert.Equal(t, int32(3), hits.Load())

	// Wait before attempt k equals base * multiplier^(k-2).
	require.Len(t, *sleeps, 2)
	assert.Equal(t, 100*time.Millisecond, (*sleeps)[0])
	assert.Equal(t, 200*time.Millisecond, (*sleeps)[1])
}

func TestNonRetryableStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f, sleeps := newTestFetcher(Config{MaxRetries: 5})

	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var ferr *domain.FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, domain.FetchHTTPError, ferr.Kind)
	assert.Equal(t, 404, ferr.StatusCode)
	assert.Equal(t, 1, ferr.Attempts)
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, *sleeps, "no backoff waits for a non-retryable status")
}

func TestSuccessAfterRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(Config{MaxRetries: 3, BackoffBase: time.Millisecond})

	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, res.Log, 3)
	assert.Equal(t, "recovered", string(res.Body))
}

func TestRetryAfterHeader(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, sleeps := newTestFetcher(Config{MaxRetries: 1, BackoffBase: time.Millisecond})

	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	require.Len(t, *sleeps, 1)
	assert.Equal(t, 7*time.Second, (*sleeps)[0], "Retry-After overrides computed backoff")
}

func TestPacingSameHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, sleeps := newTestFetcher(Config{MinRequestInterval: 500 * time.Millisecond})
	fixed := time.Now()
	f.now = func() time.Time { return fixed }

	_, err := f.Fetch(context.Background(), srv.URL+"/one")
	require.NoError(t, err)
	assert.Empty(t, *sleeps, "first request to a host is not paced")

	_, err = f.Fetch(context.Background(), srv.URL+"/two")
	require.NoError(t, err)
	require.Len(t, *sleeps, 1)
	assert.Equal(t, 500*time.Millisecond, (*sleeps)[0])
}

func TestCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(Config{MaxRetries: 3, BackoffBase: time.Millisecond}, zerolog.Nop())
	f.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestInvalidURL(t *testing.T) {
	f, _ := newTestFetcher(Config{})

	_, err := f.Fetch(context.Background(), "ftp://example.com/file")
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), "not a url at all ://")
	assert.Error(t, err)
}
