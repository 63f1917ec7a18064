package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZackGrogan/SDEA/internal/cache"
	"github.com/ZackGrogan/SDEA/internal/config"
	"github.com/ZackGrogan/SDEA/internal/ratelimit"
	"github.com/ZackGrogan/SDEA/pkg/contracts/domain"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := config.MarketDataConfig{
		BaseURL:        baseURL,
		MaxRetries:     4,
		BaseBackoff:    time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}
	limiter := ratelimit.New(map[string]ratelimit.SourceConfig{
		SourceKey: {Requests: 1000, Window: time.Second},
	}, ratelimit.SourceConfig{Requests: 1000, Window: time.Second}, nil)
	store := cache.NewMemoryStore(128)
	t.Cleanup(store.Stop)
	c := NewClient(cfg, limiter, store, time.Hour, nil, nil)
	c.jitter = func(time.Duration) time.Duration { return 0 }
	return c
}

func seriesJSON(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(domain.PriceSeries{
		Ticker: "AAPL",
		Bars: []domain.DailyBar{
			{Date: day("2021-06-01"), Close: 100, AdjClose: 100},
		},
	})
	require.NoError(t, err)
	return body
}

func TestGetDailySeriesRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	body := seriesJSON(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(body)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	series, err := c.GetDailySeries(context.Background(), "AAPL", day("2021-05-31"), day("2021-06-02"))
	require.NoError(t, err)
	assert.Equal(t, "AAPL", series.Ticker)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetDailySeriesPermanentFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.GetDailySeries(context.Background(), "MISSING", day("2021-05-31"), day("2021-06-02"))

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.False(t, fe.Retryable)
	assert.Equal(t, int32(1), calls.Load(), "404 must not be retried")
}

func TestGetDailySeriesCachesByQuery(t *testing.T) {
	var calls atomic.Int32
	body := seriesJSON(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write(body)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	ctx := context.Background()

	_, err := c.GetDailySeries(ctx, "AAPL", day("2021-05-31"), day("2021-06-02"))
	require.NoError(t, err)
	_, err = c.GetDailySeries(ctx, "AAPL", day("2021-05-31"), day("2021-06-02"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second identical query served from cache")

	// A different window is a different cache key.
	_, err = c.GetDailySeries(ctx, "AAPL", day("2021-05-31"), day("2021-06-03"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
