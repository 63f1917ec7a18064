// Package marketdata retrieves daily price series and joins them onto
// ownership facts: price at filing, market capitalization and forward
// returns at fixed horizons.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/ZackGrogan/SDEA/internal/cache"
	"github.com/ZackGrogan/SDEA/internal/config"
	"github.com/ZackGrogan/SDEA/internal/infrastructure"
	"github.com/ZackGrogan/SDEA/internal/ratelimit"
	"github.com/ZackGrogan/SDEA/pkg/contracts/domain"
)

// SourceKey is the rate-limiter key for the market-data provider. It is
// distinct from the filing source so a slow provider cannot starve the
// other.
const SourceKey = "marketdata"

const dateLayout = "2006-01-02"

// FetchError describes a failed market-data request.
type FetchError struct {
	Ticker     string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("market data for %s: status %d", e.Ticker, e.StatusCode)
	}
	return fmt.Sprintf("market data for %s: %v", e.Ticker, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client fetches daily series through the cache store.
type Client struct {
	cfg      config.MarketDataConfig
	http     *http.Client
	limiter  *ratelimit.Limiter
	store    cache.Store
	cacheTTL time.Duration
	metrics  *infrastructure.Metrics
	logger   *slog.Logger

	jitter func(max time.Duration) time.Duration
}

// NewClient creates a market-data client.
func NewClient(cfg config.MarketDataConfig, limiter *ratelimit.Limiter, store cache.Store, cacheTTL time.Duration, metrics *infrastructure.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		limiter:  limiter,
		store:    store,
		cacheTTL: cacheTTL,
		metrics:  metrics,
		logger:   logger,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
}

// GetDailySeries returns the [start, end] daily series for ticker, cached
// by (ticker, start, end).
func (c *Client) GetDailySeries(ctx context.Context, ticker string, start, end time.Time) (*domain.PriceSeries, error) {
	params := map[string]string{
		"ticker": ticker,
		"start":  start.Format(dateLayout),
		"end":    end.Format(dateLayout),
	}

	key := cache.Key(SourceKey, params)
	if cached, ok := c.store.Get(ctx, key); ok {
		var series domain.PriceSeries
		if err := json.Unmarshal(cached, &series); err == nil {
			return &series, nil
		}
		c.store.Invalidate(ctx, key)
	}

	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, &FetchError{Ticker: ticker, Err: err}
	}
	v := u.Query()
	for name, val := range params {
		v.Set(name, val)
	}
	u.RawQuery = v.Encode()

	body, err := c.doWithRetry(ctx, ticker, u.String())
	if err != nil {
		return nil, err
	}

	var series domain.PriceSeries
	if err := json.Unmarshal(body, &series); err != nil {
		return nil, &FetchError{Ticker: ticker, Err: fmt.Errorf("decode series: %w", err)}
	}

	c.store.Set(ctx, key, body, c.cacheTTL)
	return &series, nil
}

func (c *Client) doWithRetry(ctx context.Context, ticker, rawURL string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Acquire(ctx, SourceKey); err != nil {
			return nil, err
		}

		body, err := c.doOnce(ctx, ticker, rawURL)
		if err == nil {
			if c.metrics != nil {
				c.metrics.FetchRequests.WithLabelValues(SourceKey, "success").Inc()
			}
			return body, nil
		}
		lastErr = err

		var fe *FetchError
		retryable := true
		if errors.As(err, &fe) {
			retryable = fe.Retryable
		}
		if !retryable {
			if c.metrics != nil {
				c.metrics.FetchRequests.WithLabelValues(SourceKey, "permanent_error").Inc()
			}
			return nil, err
		}
		if c.metrics != nil {
			c.metrics.FetchRequests.WithLabelValues(SourceKey, "transient_error").Inc()
		}

		if attempt == c.cfg.MaxRetries {
			break
		}
		if c.metrics != nil {
			c.metrics.FetchRetries.WithLabelValues(SourceKey).Inc()
		}

		delay := c.backoff(attempt)
		c.logger.WarnContext(ctx, "market_data_retry",
			slog.String("ticker", ticker),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, ticker, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Ticker: ticker, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Ticker: ticker, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{
			Ticker:     ticker,
			StatusCode: resp.StatusCode,
			Retryable:  resp.StatusCode == 429 || resp.StatusCode >= 500,
		}
	}

	return io.ReadAll(resp.Body)
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.BaseBackoff << uint(attempt-1)
	if delay > c.cfg.MaxBackoff || delay <= 0 {
		delay = c.cfg.MaxBackoff
	}
	return delay + c.jitter(delay/10)
}
