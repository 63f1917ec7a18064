package domain

import "time"

// ThresholdEventType classifies how a holder left the 5% disclosure band.
type ThresholdEventType string

const (
	// EventCrossedBelow is an observed drop below 5% in a filing.
	EventCrossedBelow ThresholdEventType = "CROSSED_BELOW_5_PERCENT"
	// EventInferredExit is a heuristic exit inferred from filing silence.
	EventInferredExit ThresholdEventType = "INFERRED_EXIT_VIA_SILENCE"
)

// Confidence tags whether an event was observed in a filing or inferred.
type Confidence string

const (
	ConfidenceObserved Confidence = "OBSERVED"
	ConfidenceInferred Confidence = "INFERRED"
)

// ThresholdEvent records one qualifying transition in a holder timeline.
// Recomputing over an unchanged timeline yields an identical event set.
type ThresholdEvent struct {
	CIK             string             `json:"cik"`
	HolderID        string             `json:"holder_id"`
	HolderName      string             `json:"holder_name,omitempty"`
	EventDate       time.Time          `json:"event_date"`
	Type            ThresholdEventType `json:"type"`
	Confidence      Confidence         `json:"confidence"`
	PriorPercent    *float64           `json:"prior_percent,omitempty"`
	ObservedPercent *float64           `json:"observed_percent,omitempty"`
}

// PartialFailure records a single-issuer or single-fact failure that did not
// abort the batch.
type PartialFailure struct {
	Scope     string `json:"scope"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// ExitAnalysis summarises a run's threshold events.
type ExitAnalysis struct {
	TotalExits       int         `json:"total_exits"`
	UniqueHolders    int         `json:"unique_holders"`
	ObservedExits    int         `json:"observed_exits"`
	InferredExits    int         `json:"inferred_exits"`
	MeanPriorPercent *float64    `json:"mean_prior_percent,omitempty"`
	ExitsByYear      map[int]int `json:"exits_by_year,omitempty"`
}
