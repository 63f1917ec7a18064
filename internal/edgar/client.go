// Package edgar implements the resilient fetch client for the SEC EDGAR
// full-text search source: rate-limited, cache-fronted, paginated retrieval
// with retry and exponential backoff.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ZackGrogan/SDEA/internal/cache"
	"github.com/ZackGrogan/SDEA/internal/config"
	"github.com/ZackGrogan/SDEA/internal/infrastructure"
	"github.com/ZackGrogan/SDEA/internal/ratelimit"
	"github.com/ZackGrogan/SDEA/pkg/contracts/domain"
)

// SourceKey is the rate-limiter key for all EDGAR endpoints. The SEC rate
// budget applies across search and document hosts alike.
const SourceKey = "edgar"

const dateLayout = "2006-01-02"

// Client retrieves filing references and raw documents from EDGAR.
type Client struct {
	cfg      config.EDGARConfig
	http     *http.Client
	limiter  *ratelimit.Limiter
	store    cache.Store
	cacheTTL time.Duration
	metrics  *infrastructure.Metrics
	logger   *slog.Logger

	// now and jitter are swappable for deterministic tests.
	now    func() time.Time
	jitter func(max time.Duration) time.Duration
}

// NewClient creates an EDGAR client. store may be a degraded or in-memory
// cache; cacheTTL bounds both search pages and document bodies; metrics may
// be nil.
func NewClient(cfg config.EDGARConfig, limiter *ratelimit.Limiter, store cache.Store, cacheTTL time.Duration, metrics *infrastructure.Metrics, logger *slog.Logger) *Client {
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
		now:      time.Now,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
}

// SearchFilings pages through the full-text search results for one query
// until the source reports completion or the page cap is hit. References
// are returned in source order.
func (c *Client) SearchFilings(ctx context.Context, q SearchQuery) ([]domain.FilingReference, error) {
	var refs []domain.FilingReference
	from := 0

	for page := 0; ; page++ {
		if page >= c.cfg.MaxPages {
			return nil, fmt.Errorf("search for cik %s: %w (cap %d)", q.CIK, ErrPageCapExceeded, c.cfg.MaxPages)
		}

		pg, err := c.fetchSearchPage(ctx, q, from)
		if err != nil {
			return nil, err
		}
		if c.metrics != nil {
			c.metrics.PagesFetched.WithLabelValues(SourceKey).Inc()
		}

		for _, hit := range pg.Hits {
			ref, err := hit.toReference()
			if err != nil {
				c.logger.WarnContext(ctx, "search_hit_skipped",
					slog.String("cik", q.CIK),
					slog.String("accession", hit.AccessionNumber),
					slog.String("error", err.Error()))
				continue
			}
			refs = append(refs, ref)
		}

		from += len(pg.Hits)
		if len(pg.Hits) == 0 || from >= pg.Total {
			break
		}
	}

	c.logger.InfoContext(ctx, "search_complete",
		slog.String("cik", q.CIK),
		slog.Int("filings", len(refs)))
	return refs, nil
}

// FetchDocument retrieves the raw bytes of one filing, consulting the cache
// first and populating it on success.
func (c *Client) FetchDocument(ctx context.Context, ref domain.FilingReference) (domain.RawDocument, error) {
	key := cache.Key("edgar-doc", map[string]string{"accession": ref.AccessionNumber})
	if body, ok := c.store.Get(ctx, key); ok {
		return domain.RawDocument{
			Reference:   ref,
			Content:     body,
			ContentHash: cache.ContentHash(body),
			RetrievedAt: c.now(),
		}, nil
	}

	docURL := ref.DocumentURL
	if docURL == "" {
		docURL = c.documentURL(ref)
	}

	body, err := c.doWithRetry(ctx, "fetch_document", docURL)
	if err != nil {
		return domain.RawDocument{}, err
	}
	c.store.Set(ctx, key, body, c.cacheTTL)

	return domain.RawDocument{
		Reference:   ref,
		Content:     body,
		ContentHash: cache.ContentHash(body),
		RetrievedAt: c.now(),
	}, nil
}

// documentURL derives the archive location of a filing from its CIK and
// accession number, for search hits that carry no document link. The
// directory component is the accession number with its dashes removed.
func (c *Client) documentURL(ref domain.FilingReference) string {
	dir := strings.ReplaceAll(ref.AccessionNumber, "-", "")
	return fmt.Sprintf("%s/%s/%s/%s.txt",
		strings.TrimRight(c.cfg.DocumentBaseURL, "/"), ref.CIK, dir, ref.AccessionNumber)
}

func (hit searchHit) toReference() (domain.FilingReference, error) {
	date, err := time.Parse(dateLayout, hit.FilingDate)
	if err != nil {
		return domain.FilingReference{}, fmt.Errorf("bad filing date %q: %w", hit.FilingDate, err)
	}
	form := domain.FormType(hit.FormType)
	if !form.Valid() {
		return domain.FilingReference{}, fmt.Errorf("unsupported form type %q", hit.FormType)
	}
	return domain.FilingReference{
		CIK:             hit.CIK,
		AccessionNumber: hit.AccessionNumber,
		FormType:        form,
		FilingDate:      date,
		DocumentURL:     hit.DocumentURL,
	}, nil
}

// fetchSearchPage fetches one result page, consulting the cache first.
func (c *Client) fetchSearchPage(ctx context.Context, q SearchQuery, from int) (*searchPage, error) {
	forms := make([]string, len(q.FormTypes))
	for i, ft := range q.FormTypes {
		forms[i] = string(ft)
	}
	params := map[string]string{
		"cik":     q.CIK,
		"forms":   strings.Join(forms, ","),
		"startdt": q.StartDate.Format(dateLayout),
		"enddt":   q.EndDate.Format(dateLayout),
		"from":    strconv.Itoa(from),
	}

	key := cache.Key(SourceKey, params)
	if cached, ok := c.store.Get(ctx, key); ok {
		var pg searchPage
		if err := json.Unmarshal(cached, &pg); err == nil {
			return &pg, nil
		}
		// Corrupt entry: drop it and fetch fresh.
		c.store.Invalidate(ctx, key)
	}

	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, &FetchError{Op: "search", URL: c.cfg.BaseURL, Err: err}
	}
	v := u.Query()
	for name, val := range params {
		v.Set(name, val)
	}
	v.Set("size", strconv.Itoa(c.cfg.PageSize))
	u.RawQuery = v.Encode()

	body, err := c.doWithRetry(ctx, "search", u.String())
	if err != nil {
		return nil, err
	}

	var pg searchPage
	if err := json.Unmarshal(body, &pg); err != nil {
		return nil, &FetchError{Op: "search", URL: u.String(), Err: fmt.Errorf("decode response: %w", err)}
	}

	c.store.Set(ctx, key, body, c.cacheTTL)
	return &pg, nil
}

// doWithRetry performs one GET with the retry/backoff policy. The limiter
// is acquired before every attempt, including retries.
func (c *Client) doWithRetry(ctx context.Context, op, rawURL string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Acquire(ctx, SourceKey); err != nil {
			return nil, err
		}

		body, err := c.doOnce(ctx, op, rawURL)
		if err == nil {
			if c.metrics != nil {
				c.metrics.FetchRequests.WithLabelValues(SourceKey, "success").Inc()
			}
			return body, nil
		}
		lastErr = err

		if !IsRetryable(err) {
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
		c.logger.WarnContext(ctx, "fetch_retry",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.cfg.MaxRetries),
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

func (c *Client) doOnce(ctx context.Context, op, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Op: op, URL: rawURL, Err: err}
	}
	// Identification headers per the SEC fair-use policy.
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Op: op, URL: rawURL, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{
			Op:         op,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Retryable:  retryableStatus(resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Op: op, URL: rawURL, Retryable: true, Err: err}
	}
	return body, nil
}

// backoff doubles the base delay each attempt, caps it, and adds up to 10%
// jitter to avoid synchronized retries.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.BaseBackoff << uint(attempt-1)
	if delay > c.cfg.MaxBackoff || delay <= 0 {
		delay = c.cfg.MaxBackoff
	}
	return delay + c.jitter(delay/10)
}
