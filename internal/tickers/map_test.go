package tickers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDataset = `{
  "0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
  "1": {"cik_str": 789019, "ticker": "MSFT", "title": "MICROSOFT CORP"},
  "2": {"cik_str": 1067983, "ticker": "BRK-B", "title": "BERKSHIRE HATHAWAY INC"},
  "3": {"cik_str": 1067983, "ticker": "BRK-A", "title": "BERKSHIRE HATHAWAY INC"}
}`

func TestLoad(t *testing.T) {
	m, err := Load(strings.NewReader(sampleDataset))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())

	e, ok := m.ByCIK("320193")
	require.True(t, ok)
	assert.Equal(t, "AAPL", e.Ticker)
	assert.Equal(t, "Apple Inc.", e.Name)
}

func TestByCIK_PaddedAndUnpaddedAgree(t *testing.T) {
	m, err := Load(strings.NewReader(sampleDataset))
	require.NoError(t, err)

	padded, ok := m.ByCIK("0000320193")
	require.True(t, ok)
	unpadded, ok := m.ByCIK("320193")
	require.True(t, ok)
	assert.Equal(t, padded, unpadded)
}

func TestByCIK_MissingEntry(t *testing.T) {
	m, err := Load(strings.NewReader(sampleDataset))
	require.NoError(t, err)

	_, ok := m.ByCIK("999999999")
	assert.False(t, ok)
}

func TestByTicker_CaseInsensitive(t *testing.T) {
	m, err := Load(strings.NewReader(sampleDataset))
	require.NoError(t, err)

	e, ok := m.ByTicker("msft")
	require.True(t, ok)
	assert.Equal(t, "789019", e.CIK)
}

func TestLoad_MultipleShareClassesKeepFirst(t *testing.T) {
	m, err := Load(strings.NewReader(sampleDataset))
	require.NoError(t, err)

	e, ok := m.ByCIK("1067983")
	require.True(t, ok)
	assert.Equal(t, "BRK-B", e.Ticker)
}

func TestLoad_MultiClassResolutionIsStable(t *testing.T) {
	const alphabet = `{
	  "10": {"cik_str": 1652044, "ticker": "GOOG", "title": "Alphabet Inc."},
	  "2": {"cik_str": 1652044, "ticker": "GOOGL", "title": "Alphabet Inc."}
	}`

	for i := 0; i < 200; i++ {
		m, err := Load(strings.NewReader(alphabet))
		require.NoError(t, err)

		e, ok := m.ByCIK("1652044")
		require.True(t, ok)
		assert.Equal(t, "GOOGL", e.Ticker, "load %d", i)
	}
}

func TestLoad_Malformed(t *testing.T) {
	_, err := Load(strings.NewReader("not json"))
	assert.Error(t, err)
}

func TestNormalizeCIK(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0000320193", "320193"},
		{"320193", "320193"},
		{" 0000320193 ", "320193"},
		{"0", "0"},
		{"000", "0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeCIK(tt.in), tt.in)
	}
}
