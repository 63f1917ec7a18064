package domain

import (
	"strings"
	"time"
)

// FormType identifies an ownership-disclosure form variant.
type FormType string

const (
	Form13D          FormType = "SC 13D"
	Form13G          FormType = "SC 13G"
	Form13DAmendment FormType = "SC 13D/A"
	Form13GAmendment FormType = "SC 13G/A"
)

// DefaultFormTypes is the form set retrieved when a request does not
// narrow the filter.
var DefaultFormTypes = []FormType{Form13D, Form13G, Form13DAmendment, Form13GAmendment}

// IsAmendment reports whether the form carries the "/A" amendment suffix.
func (f FormType) IsAmendment() bool {
	return strings.HasSuffix(string(f), "/A")
}

// Base returns the form type with any amendment suffix stripped.
func (f FormType) Base() FormType {
	return FormType(strings.TrimSuffix(string(f), "/A"))
}

// Valid reports whether the form type is one of the supported variants.
func (f FormType) Valid() bool {
	switch f {
	case Form13D, Form13G, Form13DAmendment, Form13GAmendment:
		return true
	}
	return false
}

// FilingReference identifies one filing in the EDGAR index. It is immutable
// once fetched and uniquely identified by AccessionNumber.
type FilingReference struct {
	CIK             string    `json:"cik" validate:"required"`
	AccessionNumber string    `json:"accession_number" validate:"required"`
	FormType        FormType  `json:"form_type"`
	FilingDate      time.Time `json:"filing_date"`
	DocumentURL     string    `json:"document_url"`
}

// RawDocument is the fetched byte content of a filing plus its provenance.
// ContentHash is the cache key for the document body.
type RawDocument struct {
	Reference   FilingReference `json:"reference"`
	Content     []byte          `json:"content"`
	ContentHash string          `json:"content_hash"`
	RetrievedAt time.Time       `json:"retrieved_at"`
}

// OwnershipFact is one holder's disclosed position extracted from a filing.
// A single document can yield several facts, one per reporting person block.
type OwnershipFact struct {
	CIK            string    `json:"cik"`
	HolderID       string    `json:"holder_id"`
	HolderName     string    `json:"holder_name"`
	CUSIP          string    `json:"cusip,omitempty"`
	SharesOwned    *int64    `json:"shares_owned,omitempty"`
	PercentOfClass *float64  `json:"percent_of_class,omitempty"`
	FilingDate     time.Time `json:"filing_date"`
	FormType       FormType  `json:"form_type"`
	Amendment      bool      `json:"amendment"`
	Accession      string    `json:"accession_number"`
}

// TimelineKey identifies the (issuer, holder) pair a fact belongs to.
func (f OwnershipFact) TimelineKey() string {
	return f.CIK + "|" + f.HolderID
}
