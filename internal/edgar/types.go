package edgar

import (
	"time"

	"github.com/ZackGrogan/SDEA/pkg/contracts/domain"
)

// SearchQuery describes one full-text-search request for a single issuer.
type SearchQuery struct {
	CIK       string
	FormTypes []domain.FormType
	StartDate time.Time
	EndDate   time.Time
}

// searchHit is one filing reference in a search response page.
type searchHit struct {
	CIK             string `json:"cik"`
	AccessionNumber string `json:"accession_number"`
	FormType        string `json:"form_type"`
	FilingDate      string `json:"filing_date"`
	DocumentURL     string `json:"document_url"`
}

// searchPage is one page of the paginated search response. From/Size/Total
// drive offset pagination: the next request starts at From+len(Hits), and
// the source signals completion when that offset reaches Total.
type searchPage struct {
	Hits  []searchHit `json:"hits"`
	From  int         `json:"from"`
	Size  int         `json:"size"`
	Total int         `json:"total"`
}
