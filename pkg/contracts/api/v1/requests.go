// Package api contains API contract definitions for the SEC ownership
// data service. Version v1 represents the current stable API version.
package api

import (
	"github.com/ZackGrogan/SDEA/pkg/contracts/domain"
)

// RetrieveRequest asks for filings, enrichment and threshold events for a
// set of issuers over a year range.
type RetrieveRequest struct {
	IssuerIDs []string `json:"issuer_ids" validate:"required,min=1,max=100,dive,required"`
	StartYear int      `json:"start_year" validate:"required,min=1994,max=2100"`
	EndYear   int      `json:"end_year" validate:"required,min=1994,max=2100,gtefield=StartYear"`
}

// RetrieveResponse is the batch result: enriched facts, threshold events,
// and the failures that did not abort the batch.
type RetrieveResponse struct {
	Filings         []domain.EnrichedFact   `json:"filings"`
	ThresholdEvents []domain.ThresholdEvent `json:"threshold_events"`
	PartialFailures []domain.PartialFailure `json:"partial_failures"`
	ExitAnalysis    *domain.ExitAnalysis    `json:"exit_analysis,omitempty"`
}

// JobSubmitResponse is returned when a retrieval is run asynchronously.
type JobSubmitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobStatusResponse reports the state of an asynchronous retrieval.
type JobStatusResponse struct {
	JobID     string            `json:"job_id"`
	Status    string            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Result    *RetrieveResponse `json:"result,omitempty"`
	StartedAt string            `json:"started_at,omitempty"`
	EndedAt   string            `json:"ended_at,omitempty"`
}
