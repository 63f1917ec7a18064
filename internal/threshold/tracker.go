// Package threshold walks holder timelines and emits exit events: observed
// crossings below the disclosure threshold and exits inferred from filing
// silence.
package threshold

import (
	"log/slog"
	"sort"
	"time"

	"github.com/ZackGrogan/SDEA/pkg/contracts/domain"
)

// Policy tunes the inference. Zero values fall back to the statutory 5%
// band and a two year silence window. The window is calendar years so a
// holder last active on 2020-01-01 is presumed out after 2022-01-01
// regardless of intervening leap days.
type Policy struct {
	ThresholdPct float64
	SilenceYears int
}

// DefaultPolicy matches Schedule 13D/G reporting obligations.
func DefaultPolicy() Policy {
	return Policy{ThresholdPct: 5.0, SilenceYears: 2}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.ThresholdPct <= 0 {
		p.ThresholdPct = d.ThresholdPct
	}
	if p.SilenceYears <= 0 {
		p.SilenceYears = d.SilenceYears
	}
	return p
}

// silenceDeadline is the last day a holder can stay quiet before an exit
// is inferred.
func (p Policy) silenceDeadline(lastActivity time.Time) time.Time {
	return lastActivity.AddDate(p.SilenceYears, 0, 0)
}

// holder position relative to the threshold.
type state int

const (
	stateNone state = iota // no qualifying filing seen yet
	stateAbove
	stateBelow
	stateUnknown // exited via silence; next filings start a fresh episode
)

// Tracker computes threshold events over sorted timelines.
type Tracker struct {
	policy Policy
	logger *slog.Logger
}

// New creates a tracker with the given policy.
func New(policy Policy, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{policy: policy.normalized(), logger: logger}
}

// Events walks one timeline and returns its threshold events in date order.
// The timeline must be sorted ascending by filing date. asOf bounds the
// trailing silence evaluation so a rerun with the same asOf reproduces the
// same events byte for byte. Facts without an ownership percentage leave
// the state untouched but still count as holder activity.
func (t *Tracker) Events(timeline *domain.HolderTimeline, asOf time.Time) []domain.ThresholdEvent {
	p := t.policy
	events := make([]domain.ThresholdEvent, 0)

	st := stateNone
	var prior *domain.EnrichedFact // last fact that carried a percentage
	var aboveSince time.Time       // date of the last fact while above

	for i := range timeline.Facts {
		fact := &timeline.Facts[i]

		// Silence between consecutive filings: an above-threshold holder
		// that stays quiet past the window is presumed out before the next
		// filing arrives.
		if st == stateAbove && fact.FilingDate.After(p.silenceDeadline(aboveSince)) {
			events = append(events, t.inferredExit(timeline, prior, aboveSince))
			st = stateUnknown
		}

		if fact.PercentOfClass == nil {
			if st == stateAbove {
				aboveSince = fact.FilingDate
			}
			continue
		}

		pct := *fact.PercentOfClass
		switch {
		case pct >= p.ThresholdPct:
			st = stateAbove
			aboveSince = fact.FilingDate
		default:
			// Only a transition from a known above position is an exit.
			if st == stateAbove {
				events = append(events, t.observedExit(timeline, prior, fact))
			}
			st = stateBelow
		}
		prior = fact
	}

	// Trailing silence up to asOf.
	if st == stateAbove && asOf.After(p.silenceDeadline(aboveSince)) {
		events = append(events, t.inferredExit(timeline, prior, aboveSince))
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].EventDate.Before(events[j].EventDate)
	})
	return events
}

func (t *Tracker) observedExit(timeline *domain.HolderTimeline, prior, fact *domain.EnrichedFact) domain.ThresholdEvent {
	ev := domain.ThresholdEvent{
		CIK:        timeline.CIK,
		HolderID:   timeline.HolderID,
		HolderName: fact.HolderName,
		EventDate:  fact.FilingDate,
		Type:       domain.EventCrossedBelow,
		Confidence: domain.ConfidenceObserved,
	}
	if prior != nil && prior.PercentOfClass != nil {
		v := *prior.PercentOfClass
		ev.PriorPercent = &v
	}
	if fact.PercentOfClass != nil {
		v := *fact.PercentOfClass
		ev.ObservedPercent = &v
	}
	return ev
}

// inferredExit dates the event at the end of the silence window, not at the
// filing that revealed the gap.
func (t *Tracker) inferredExit(timeline *domain.HolderTimeline, prior *domain.EnrichedFact, aboveSince time.Time) domain.ThresholdEvent {
	ev := domain.ThresholdEvent{
		CIK:        timeline.CIK,
		HolderID:   timeline.HolderID,
		EventDate:  t.policy.silenceDeadline(aboveSince),
		Type:       domain.EventInferredExit,
		Confidence: domain.ConfidenceInferred,
	}
	if prior != nil {
		ev.HolderName = prior.HolderName
		if prior.PercentOfClass != nil {
			v := *prior.PercentOfClass
			ev.PriorPercent = &v
		}
	}
	t.logger.Debug("inferred_exit",
		slog.String("cik", ev.CIK),
		slog.String("holder_id", ev.HolderID),
		slog.Time("event_date", ev.EventDate))
	return ev
}

// Analyze summarises a run's events. The mean prior percentage covers only
// events whose prior holding is known.
func Analyze(events []domain.ThresholdEvent) domain.ExitAnalysis {
	analysis := domain.ExitAnalysis{
		TotalExits:  len(events),
		ExitsByYear: make(map[int]int),
	}

	holders := make(map[string]struct{})
	var priorSum float64
	var priorN int
	for _, ev := range events {
		holders[ev.CIK+"|"+ev.HolderID] = struct{}{}
		analysis.ExitsByYear[ev.EventDate.Year()]++
		switch ev.Confidence {
		case domain.ConfidenceObserved:
			analysis.ObservedExits++
		case domain.ConfidenceInferred:
			analysis.InferredExits++
		}
		if ev.PriorPercent != nil {
			priorSum += *ev.PriorPercent
			priorN++
		}
	}
	analysis.UniqueHolders = len(holders)
	if priorN > 0 {
		mean := priorSum / float64(priorN)
		analysis.MeanPriorPercent = &mean
	}
	if len(analysis.ExitsByYear) == 0 {
		analysis.ExitsByYear = nil
	}
	return analysis
}
