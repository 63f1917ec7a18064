package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tlFact(accession string, amendment bool) EnrichedFact {
	return EnrichedFact{OwnershipFact: OwnershipFact{
		CIK:        "320193",
		HolderID:   "BERKSHIRE-HATHAWAY-INC",
		FilingDate: time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC),
		Amendment:  amendment,
		Accession:  accession,
	}}
}

func TestAppend_AmendmentReplacesOriginal(t *testing.T) {
	original := tlFact("0000000001-21-000001", false)
	amendment := tlFact("0000000001-21-000002", true)

	tl := &HolderTimeline{CIK: original.CIK, HolderID: original.HolderID}
	tl.Append(original)
	tl.Append(amendment)

	require.Len(t, tl.Facts, 1)
	assert.Equal(t, amendment.Accession, tl.Facts[0].Accession)
}

func TestAppend_SameDateWinnerIgnoresArrivalOrder(t *testing.T) {
	original := tlFact("0000000001-21-000001", false)
	amendment := tlFact("0000000001-21-000002", true)
	later := tlFact("0000000001-21-000003", false)

	tests := []struct {
		name  string
		facts []EnrichedFact
		want  string
	}{
		{"original then amendment", []EnrichedFact{original, amendment}, amendment.Accession},
		{"amendment then original", []EnrichedFact{amendment, original}, amendment.Accession},
		{"two originals ascending", []EnrichedFact{original, later}, later.Accession},
		{"two originals descending", []EnrichedFact{later, original}, later.Accession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := &HolderTimeline{CIK: "320193", HolderID: "BERKSHIRE-HATHAWAY-INC"}
			for _, f := range tt.facts {
				tl.Append(f)
			}
			require.Len(t, tl.Facts, 1)
			assert.Equal(t, tt.want, tl.Facts[0].Accession)
		})
	}
}

func TestAppend_DistinctDatesAccumulate(t *testing.T) {
	a := tlFact("0000000001-21-000001", false)
	b := tlFact("0000000001-21-000002", false)
	b.FilingDate = b.FilingDate.AddDate(0, 1, 0)

	tl := &HolderTimeline{}
	tl.Append(b)
	tl.Append(a)
	require.Len(t, tl.Facts, 2)

	tl.Sort()
	assert.Equal(t, a.Accession, tl.Facts[0].Accession)
	assert.Equal(t, b.Accession, tl.Facts[1].Accession)
}
