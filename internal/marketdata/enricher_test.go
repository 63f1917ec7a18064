package marketdata

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZackGrogan/SDEA/internal/tickers"
	"github.com/ZackGrogan/SDEA/pkg/contracts/domain"
)

type stubProvider struct {
	series *domain.PriceSeries
	err    error
	calls  int
}

func (s *stubProvider) GetDailySeries(_ context.Context, _ string, _, _ time.Time) (*domain.PriceSeries, error) {
	s.calls++
	return s.series, s.err
}

func testMap(t *testing.T) *tickers.Map {
	t.Helper()
	m, err := tickers.Load(strings.NewReader(`{"0":{"cik_str":320193,"ticker":"AAPL","title":"Apple Inc."}}`))
	require.NoError(t, err)
	return m
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func bars(from string, days int, startPrice, step float64) []domain.DailyBar {
	out := make([]domain.DailyBar, 0, days)
	d := day(from)
	for i := 0; i < days; i++ {
		price := startPrice + float64(i)*step
		out = append(out, domain.DailyBar{
			Date:              d.AddDate(0, 0, i),
			Close:             price,
			AdjClose:          price,
			SharesOutstanding: 1_000_000,
		})
	}
	return out
}

func fact(filingDate string) domain.OwnershipFact {
	return domain.OwnershipFact{
		CIK:        "320193",
		HolderID:   "BERKSHIRE-HATHAWAY-INC",
		HolderName: "Berkshire Hathaway Inc",
		FilingDate: day(filingDate),
		FormType:   domain.Form13G,
		Accession:  "0000320193-21-000001",
	}
}

func TestEnrichComputesForwardReturns(t *testing.T) {
	provider := &stubProvider{series: &domain.PriceSeries{
		Ticker: "AAPL",
		Bars:   bars("2021-05-31", 800, 100, 0.5),
	}}
	e := NewEnricher(provider, testMap(t), nil)

	enriched, err := e.Enrich(context.Background(), fact("2021-06-01"))
	require.NoError(t, err)

	assert.Equal(t, "AAPL", enriched.Ticker)
	assert.Equal(t, "Apple Inc.", enriched.IssuerName)
	require.NotNil(t, enriched.PriceAtFiling)
	assert.InDelta(t, 100.5, *enriched.PriceAtFiling, 1e-9)

	for _, horizon := range domain.ReturnHorizons {
		ret, ok := enriched.ForwardReturns[horizon]
		require.True(t, ok, "horizon %d", horizon)
		require.NotNil(t, ret)
		want := (100.5 + float64(horizon)*0.5) / 100.5
		assert.InDelta(t, want-1, *ret, 1e-4, "horizon %d", horizon)
	}
}

func TestEnrichHorizonPastSeriesEndIsAbsent(t *testing.T) {
	// Series stops 40 days past the filing date: the 7 and 30 day returns
	// exist, everything longer must be absent rather than zero.
	provider := &stubProvider{series: &domain.PriceSeries{
		Ticker: "AAPL",
		Bars:   bars("2021-05-31", 42, 100, 1),
	}}
	e := NewEnricher(provider, testMap(t), nil)

	enriched, err := e.Enrich(context.Background(), fact("2021-06-01"))
	require.NoError(t, err)

	require.Contains(t, enriched.ForwardReturns, 7)
	require.Contains(t, enriched.ForwardReturns, 30)
	for _, horizon := range []int{182, 365, 730} {
		_, ok := enriched.ForwardReturns[horizon]
		assert.False(t, ok, "horizon %d must be absent", horizon)
	}
}

func TestEnrichNonTradingFilingDateUsesPriorBar(t *testing.T) {
	// No bar on the filing date itself: price comes from the most recent
	// earlier trading day.
	provider := &stubProvider{series: &domain.PriceSeries{
		Ticker: "AAPL",
		Bars: []domain.DailyBar{
			{Date: day("2021-06-04"), Close: 110, AdjClose: 110},
			{Date: day("2021-06-07"), Close: 120, AdjClose: 120},
		},
	}}
	e := NewEnricher(provider, testMap(t), nil)

	enriched, err := e.Enrich(context.Background(), fact("2021-06-05"))
	require.NoError(t, err)
	require.NotNil(t, enriched.PriceAtFiling)
	assert.InDelta(t, 110, *enriched.PriceAtFiling, 1e-9)
}

func TestEnrichUnresolvedCIK(t *testing.T) {
	provider := &stubProvider{}
	e := NewEnricher(provider, testMap(t), nil)

	f := fact("2021-06-01")
	f.CIK = "999999"
	enriched, err := e.Enrich(context.Background(), f)

	var unresolved *UnresolvedIdentifierError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "999999", unresolved.CIK)
	assert.Empty(t, enriched.Ticker)
	assert.Zero(t, provider.calls, "no series fetch without a ticker")
	assert.Equal(t, f.CIK, enriched.CIK, "fact carried through unenriched")
}

func TestEnrichSeriesMissingFilingDateDegrades(t *testing.T) {
	// Series starts after the filing date: the fact survives with absent
	// market fields and the gap is reported.
	provider := &stubProvider{series: &domain.PriceSeries{
		Ticker: "AAPL",
		Bars:   bars("2021-07-01", 10, 100, 1),
	}}
	e := NewEnricher(provider, testMap(t), nil)

	enriched, err := e.Enrich(context.Background(), fact("2021-06-01"))
	var gap *DataGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, "AAPL", gap.Ticker)
	assert.Nil(t, enriched.PriceAtFiling)
	assert.Nil(t, enriched.MarketCap)
	assert.Empty(t, enriched.ForwardReturns)
	assert.Equal(t, "AAPL", enriched.Ticker)
}

func TestEnrichMarketCapAndAdjustment(t *testing.T) {
	provider := &stubProvider{series: &domain.PriceSeries{
		Ticker: "AAPL",
		Bars: []domain.DailyBar{
			{Date: day("2021-06-01"), Close: 125, AdjClose: 100, SharesOutstanding: 2_000_000},
		},
	}}
	e := NewEnricher(provider, testMap(t), nil)

	enriched, err := e.Enrich(context.Background(), fact("2021-06-01"))
	require.NoError(t, err)

	require.NotNil(t, enriched.MarketCap)
	assert.InDelta(t, 200_000_000, *enriched.MarketCap, 1e-6)
	require.NotNil(t, enriched.AdjustmentFactor)
	assert.InDelta(t, 0.8, *enriched.AdjustmentFactor, 1e-9)
	require.NotNil(t, enriched.SharesOut)
	assert.Equal(t, int64(2_000_000), *enriched.SharesOut)
}
