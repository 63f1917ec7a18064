package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ZackGrogan/SDEA/internal/tickers"
	"github.com/ZackGrogan/SDEA/pkg/contracts/domain"
)

// windowAfterFiling bounds the series fetch: the longest forward-return
// horizon plus a day of slack before the filing date for price lookup.
const windowAfterFiling = 730

// UnresolvedIdentifierError reports a CIK with no ticker in the identifier
// map. The fact survives unenriched.
type UnresolvedIdentifierError struct {
	CIK string
}

func (e *UnresolvedIdentifierError) Error() string {
	return fmt.Sprintf("no ticker mapped for CIK %s", e.CIK)
}

// DataGapError reports a series that does not cover the filing date. The
// fact survives with absent market fields.
type DataGapError struct {
	Ticker     string
	FilingDate time.Time
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("no trading data for %s at or before %s", e.Ticker, e.FilingDate.Format(dateLayout))
}

// SeriesProvider is the slice of Client the enricher needs.
type SeriesProvider interface {
	GetDailySeries(ctx context.Context, ticker string, start, end time.Time) (*domain.PriceSeries, error)
}

// Enricher joins ownership facts with daily price data.
type Enricher struct {
	provider SeriesProvider
	idmap    *tickers.Map
	logger   *slog.Logger
	now      func() time.Time
}

// NewEnricher creates an enricher over the given series provider and
// identifier map.
func NewEnricher(provider SeriesProvider, idmap *tickers.Map, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{provider: provider, idmap: idmap, logger: logger, now: time.Now}
}

// Enrich resolves the fact's issuer to a ticker, fetches the surrounding
// daily series and computes price at filing, market capitalization, the
// adjustment factor and forward returns. Horizons past the latest
// available trading day stay nil. UnresolvedIdentifierError and
// DataGapError come back alongside the partial fact; the fact itself
// always survives.
func (e *Enricher) Enrich(ctx context.Context, fact domain.OwnershipFact) (domain.EnrichedFact, error) {
	enriched := domain.EnrichedFact{
		OwnershipFact:  fact,
		ForwardReturns: make(map[int]*float64, len(domain.ReturnHorizons)),
		EnrichedAt:     e.now().UTC(),
	}

	entry, ok := e.idmap.ByCIK(fact.CIK)
	if !ok {
		return enriched, &UnresolvedIdentifierError{CIK: fact.CIK}
	}
	enriched.Ticker = entry.Ticker
	enriched.IssuerName = entry.Name

	start := fact.FilingDate.AddDate(0, 0, -1)
	end := fact.FilingDate.AddDate(0, 0, windowAfterFiling)
	series, err := e.provider.GetDailySeries(ctx, entry.Ticker, start, end)
	if err != nil {
		return enriched, err
	}

	base := lastBarAtOrBefore(series.Bars, fact.FilingDate)
	if base == nil {
		e.logger.WarnContext(ctx, "enrichment_data_gap",
			slog.String("cik", fact.CIK),
			slog.String("ticker", entry.Ticker),
			slog.String("filing_date", fact.FilingDate.Format(dateLayout)))
		return enriched, &DataGapError{Ticker: entry.Ticker, FilingDate: fact.FilingDate}
	}

	price := round4(base.AdjClose)
	enriched.PriceAtFiling = &price

	if base.Close != 0 {
		factor := round4(base.AdjClose / base.Close)
		enriched.AdjustmentFactor = &factor
	}

	if base.SharesOutstanding > 0 {
		shares := base.SharesOutstanding
		enriched.SharesOut = &shares
		mcap := math.Round(base.AdjClose * float64(shares))
		enriched.MarketCap = &mcap
	}

	last := series.Bars[len(series.Bars)-1].Date
	for _, horizon := range domain.ReturnHorizons {
		target := fact.FilingDate.AddDate(0, 0, horizon)
		if target.After(last) {
			continue
		}
		bar := lastBarAtOrBefore(series.Bars, target)
		if bar == nil || base.AdjClose == 0 {
			continue
		}
		ret := round4(bar.AdjClose/base.AdjClose - 1)
		enriched.ForwardReturns[horizon] = &ret
	}

	return enriched, nil
}

// lastBarAtOrBefore returns the latest bar whose date does not exceed the
// target, or nil when the series starts after it. Bars are date ascending.
func lastBarAtOrBefore(bars []domain.DailyBar, target time.Time) *domain.DailyBar {
	var found *domain.DailyBar
	for i := range bars {
		if bars[i].Date.After(target) {
			break
		}
		found = &bars[i]
	}
	return found
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
