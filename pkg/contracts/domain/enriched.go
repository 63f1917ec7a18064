package domain

import (
	"sort"
	"time"
)

// ReturnHorizons are the fixed forward-return horizons, in calendar days
// after the filing date.
var ReturnHorizons = []int{7, 30, 182, 365, 730}

// DailyBar is one trading day of a price series. AdjClose is the dividend-
// and split-adjusted close.
type DailyBar struct {
	Date              time.Time `json:"date"`
	Open              float64   `json:"open"`
	High              float64   `json:"high"`
	Low               float64   `json:"low"`
	Close             float64   `json:"close"`
	AdjClose          float64   `json:"adj_close"`
	SharesOutstanding int64     `json:"shares_outstanding,omitempty"`
}

// PriceSeries is a date-ascending daily series for one ticker.
type PriceSeries struct {
	Ticker string     `json:"ticker"`
	Bars   []DailyBar `json:"bars"`
}

// EnrichedFact is an OwnershipFact joined with time-aligned market data.
// Nil pointers mean the value is absent, never zero: a forward return whose
// horizon falls past the latest available trading day stays nil.
type EnrichedFact struct {
	OwnershipFact

	Ticker           string           `json:"ticker"`
	IssuerName       string           `json:"issuer_name,omitempty"`
	PriceAtFiling    *float64         `json:"price_at_filing,omitempty"`
	SharesOut        *int64           `json:"shares_outstanding,omitempty"`
	MarketCap        *float64         `json:"market_cap,omitempty"`
	AdjustmentFactor *float64         `json:"adjustment_factor,omitempty"`
	ForwardReturns   map[int]*float64 `json:"forward_returns,omitempty"`
	EnrichedAt       time.Time        `json:"enriched_at"`
}

// HolderTimeline is the ordered filing history of one (issuer, holder) pair.
// Facts are ascending by filing date; an amendment replaces the fact for the
// same filing date rather than duplicating it.
type HolderTimeline struct {
	CIK      string         `json:"cik"`
	HolderID string         `json:"holder_id"`
	Facts    []EnrichedFact `json:"facts"`
}

// Append inserts a fact preserving date order and amendment-replace
// semantics. The winner among same-date facts does not depend on arrival
// order: an amendment beats an original, and between facts of the same
// status the higher accession number wins. Callers must still Sort before
// inference if facts arrive out of order.
func (t *HolderTimeline) Append(f EnrichedFact) {
	for i := range t.Facts {
		if !t.Facts[i].FilingDate.Equal(f.FilingDate) {
			continue
		}
		if supersedes(f, t.Facts[i]) {
			t.Facts[i] = f
		}
		return
	}
	t.Facts = append(t.Facts, f)
}

// supersedes reports whether candidate replaces incumbent for the same
// filing date.
func supersedes(candidate, incumbent EnrichedFact) bool {
	if candidate.Amendment != incumbent.Amendment {
		return candidate.Amendment
	}
	return candidate.Accession > incumbent.Accession
}

// Sort orders facts by filing date ascending, breaking ties by accession
// number so repeated runs see an identical order.
func (t *HolderTimeline) Sort() {
	sort.SliceStable(t.Facts, func(i, j int) bool {
		if !t.Facts[i].FilingDate.Equal(t.Facts[j].FilingDate) {
			return t.Facts[i].FilingDate.Before(t.Facts[j].FilingDate)
		}
		return t.Facts[i].Accession < t.Facts[j].Accession
	})
}
