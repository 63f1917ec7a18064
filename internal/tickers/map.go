// Package tickers loads the SEC company_tickers.json dataset into an
// in-memory identifier map. The map is read-only for the duration of a
// pipeline run; staleness is acceptable, absence of an entry is a
// reportable enrichment failure.
package tickers

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Entry maps one security identifier to its ticker and issuer name.
type Entry struct {
	CIK    string `json:"cik"`
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// Map is the CIK ↔ ticker ↔ issuer-name lookup table.
type Map struct {
	byCIK    map[string]Entry
	byTicker map[string]Entry
}

// tickerRecord is one record of the SEC dataset, which is keyed by
// arbitrary index strings: {"0": {"cik_str": 320193, "ticker": "AAPL",
// "title": "Apple Inc."}, ...}.
type tickerRecord struct {
	CIKStr json.Number `json:"cik_str"`
	Ticker string      `json:"ticker"`
	Title  string      `json:"title"`
}

// Load reads the SEC company_tickers.json shape from r.
func Load(r io.Reader) (*Map, error) {
	var records map[string]tickerRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode company tickers: %w", err)
	}

	// The dataset orders share classes by its index keys, primary listing
	// at the lowest index. Iterate in that order so multi-class issuers
	// resolve to the same ticker on every load.
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aerr := strconv.Atoi(keys[i])
		b, berr := strconv.Atoi(keys[j])
		if aerr != nil || berr != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})

	m := &Map{
		byCIK:    make(map[string]Entry, len(records)),
		byTicker: make(map[string]Entry, len(records)),
	}
	for _, k := range keys {
		rec := records[k]
		if rec.Ticker == "" {
			continue
		}
		entry := Entry{
			CIK:    NormalizeCIK(rec.CIKStr.String()),
			Ticker: strings.ToUpper(rec.Ticker),
			Name:   rec.Title,
		}
		if _, exists := m.byCIK[entry.CIK]; !exists {
			m.byCIK[entry.CIK] = entry
		}
		m.byTicker[entry.Ticker] = entry
	}
	return m, nil
}

// LoadFile reads the dataset from a file path.
func LoadFile(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tickers file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// ByCIK resolves an issuer identifier to its entry.
func (m *Map) ByCIK(cik string) (Entry, bool) {
	e, ok := m.byCIK[NormalizeCIK(cik)]
	return e, ok
}

// ByTicker resolves a ticker symbol to its entry.
func (m *Map) ByTicker(ticker string) (Entry, bool) {
	e, ok := m.byTicker[strings.ToUpper(ticker)]
	return e, ok
}

// Len returns the number of distinct issuers in the map.
func (m *Map) Len() int {
	return len(m.byCIK)
}

// NormalizeCIK strips leading zeros so padded and unpadded identifiers
// compare equal; EDGAR uses both forms.
func NormalizeCIK(cik string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(cik), "0")
	if trimmed == "" {
		return "0"
	}
	if _, err := strconv.ParseUint(trimmed, 10, 64); err != nil {
		// Not numeric; return as given so lookups still have a chance.
		return strings.TrimSpace(cik)
	}
	return trimmed
}
