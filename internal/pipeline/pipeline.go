// Package pipeline orchestrates a retrieval run: search filings per issuer,
// fetch and parse the documents, enrich the facts with market data, then
// infer threshold events over the assembled holder timelines.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ZackGrogan/SDEA/internal/config"
	"github.com/ZackGrogan/SDEA/internal/edgar"
	"github.com/ZackGrogan/SDEA/internal/infrastructure"
	"github.com/ZackGrogan/SDEA/internal/marketdata"
	"github.com/ZackGrogan/SDEA/internal/threshold"
	"github.com/ZackGrogan/SDEA/internal/tickers"
	"github.com/ZackGrogan/SDEA/pkg/contracts/domain"
)

// ErrInvalidRequest marks configuration errors that abort the whole run,
// as opposed to per-issuer failures that degrade it.
var ErrInvalidRequest = errors.New("invalid run request")

// tracer reads the global provider, which is a no-op unless tracing is
// enabled at startup.
var tracer = otel.Tracer("github.com/ZackGrogan/SDEA/internal/pipeline")

// FilingSource searches and retrieves disclosure filings.
type FilingSource interface {
	SearchFilings(ctx context.Context, q edgar.SearchQuery) ([]domain.FilingReference, error)
	FetchDocument(ctx context.Context, ref domain.FilingReference) (domain.RawDocument, error)
}

// FactParser extracts ownership facts from a raw filing document.
type FactParser interface {
	Parse(doc domain.RawDocument) ([]domain.OwnershipFact, error)
}

// FactEnricher joins a fact with market data.
type FactEnricher interface {
	Enrich(ctx context.Context, fact domain.OwnershipFact) (domain.EnrichedFact, error)
}

// RunRequest describes one batch retrieval. Issuer IDs may be tickers or
// CIK numbers. AsOf bounds the silence inference; zero means now.
type RunRequest struct {
	IssuerIDs []string
	StartYear int
	EndYear   int
	FormTypes []domain.FormType
	AsOf      time.Time
}

// Result is the outcome of one run. Partial failures are per-issuer or
// per-filing problems that did not abort the batch.
type Result struct {
	Filings         []domain.EnrichedFact
	ThresholdEvents []domain.ThresholdEvent
	PartialFailures []domain.PartialFailure
	ExitAnalysis    domain.ExitAnalysis
}

// Pipeline wires the stages together.
type Pipeline struct {
	source   FilingSource
	parser   FactParser
	enricher FactEnricher
	tracker  *threshold.Tracker
	idmap    *tickers.Map
	cfg      config.PipelineConfig
	metrics  *infrastructure.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New assembles a pipeline. The identifier map is used to accept tickers
// as issuer IDs; nil disables that and IDs are treated as CIKs.
func New(source FilingSource, parser FactParser, enricher FactEnricher, tracker *threshold.Tracker, idmap *tickers.Map, cfg config.PipelineConfig, metrics *infrastructure.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = 4
	}
	if cfg.EnrichWorkers <= 0 {
		cfg.EnrichWorkers = 4
	}
	return &Pipeline{
		source:   source,
		parser:   parser,
		enricher: enricher,
		tracker:  tracker,
		idmap:    idmap,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes the full batch. Only request validation errors are fatal;
// everything else is collected as partial failures. Cancellation stops new
// work but the result built from whatever completed is still returned,
// alongside the context error, so a long batch is never a total loss.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.Int("issuers", len(req.IssuerIDs)),
		attribute.Int("start_year", req.StartYear),
		attribute.Int("end_year", req.EndYear)))
	defer span.End()

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = p.now().UTC().Truncate(24 * time.Hour)
	}
	forms := req.FormTypes
	if len(forms) == 0 {
		forms = domain.DefaultFormTypes
	}

	started := p.now()
	p.logger.InfoContext(ctx, "pipeline_start",
		slog.Int("issuers", len(req.IssuerIDs)),
		slog.Int("start_year", req.StartYear),
		slog.Int("end_year", req.EndYear))

	collector := newFailureCollector(p.metrics)

	facts, runErr := p.fetchStage(ctx, req, forms, collector)

	var enriched []domain.EnrichedFact
	if runErr == nil {
		enriched, runErr = p.enrichStage(ctx, facts, collector)
	} else {
		enriched = bareFacts(facts)
	}

	// Order the facts before grouping so the survivor of any same-date
	// amendment replacement does not depend on worker completion order.
	sortFacts(enriched)

	_, inferSpan := tracer.Start(ctx, "pipeline.infer")
	timelines := buildTimelines(enriched)

	events := make([]domain.ThresholdEvent, 0)
	for _, tl := range timelines {
		events = append(events, p.tracker.Events(tl, asOf)...)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].EventDate.Equal(events[j].EventDate) {
			return events[i].EventDate.Before(events[j].EventDate)
		}
		if events[i].CIK != events[j].CIK {
			return events[i].CIK < events[j].CIK
		}
		return events[i].HolderID < events[j].HolderID
	})
	inferSpan.End()

	if p.metrics != nil {
		p.metrics.PipelineRuns.Inc()
	}
	if runErr != nil {
		span.RecordError(runErr)
		p.logger.WarnContext(ctx, "pipeline_interrupted",
			slog.Int("facts", len(enriched)),
			slog.String("error", runErr.Error()))
	} else {
		p.logger.InfoContext(ctx, "pipeline_complete",
			slog.Int("facts", len(enriched)),
			slog.Int("events", len(events)),
			slog.Int("partial_failures", len(collector.failures)),
			slog.Duration("elapsed", p.now().Sub(started)))
	}

	return &Result{
		Filings:         enriched,
		ThresholdEvents: events,
		PartialFailures: collector.sorted(),
		ExitAnalysis:    threshold.Analyze(events),
	}, runErr
}

// bareFacts wraps facts that never reached enrichment, so a cancelled run
// still reports what it fetched.
func bareFacts(facts []domain.OwnershipFact) []domain.EnrichedFact {
	out := make([]domain.EnrichedFact, len(facts))
	for i := range facts {
		out[i] = domain.EnrichedFact{OwnershipFact: facts[i]}
	}
	return out
}

func validate(req RunRequest) error {
	if len(req.IssuerIDs) == 0 {
		return fmt.Errorf("%w: no issuer ids", ErrInvalidRequest)
	}
	if req.StartYear > req.EndYear {
		return fmt.Errorf("%w: start year %d after end year %d", ErrInvalidRequest, req.StartYear, req.EndYear)
	}
	return nil
}

// resolveIssuer maps a ticker to its CIK when the identifier map knows it,
// otherwise treats the ID as a CIK.
func (p *Pipeline) resolveIssuer(id string) string {
	if p.idmap != nil {
		if entry, ok := p.idmap.ByTicker(id); ok {
			return entry.CIK
		}
	}
	return tickers.NormalizeCIK(id)
}

func (p *Pipeline) fetchStage(ctx context.Context, req RunRequest, forms []domain.FormType, collector *failureCollector) ([]domain.OwnershipFact, error) {
	ctx, span := tracer.Start(ctx, "pipeline.fetch")
	defer span.End()

	start := time.Date(req.StartYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(req.EndYear, time.December, 31, 0, 0, 0, 0, time.UTC)

	var mu sync.Mutex
	var facts []domain.OwnershipFact

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.FetchWorkers)

	for _, issuerID := range req.IssuerIDs {
		issuerID := issuerID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cik := p.resolveIssuer(issuerID)

			refs, err := p.source.SearchFilings(gctx, edgar.SearchQuery{
				CIK:       cik,
				FormTypes: forms,
				StartDate: start,
				EndDate:   end,
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				collector.add(issuerID, "search", err, edgar.IsRetryable(err))
				return nil
			}

			for _, ref := range refs {
				doc, err := p.source.FetchDocument(gctx, ref)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					collector.add(ref.AccessionNumber, "fetch", err, edgar.IsRetryable(err))
					continue
				}
				parsed, err := p.parser.Parse(doc)
				if err != nil {
					collector.add(ref.AccessionNumber, "parse", err, false)
					continue
				}
				mu.Lock()
				facts = append(facts, parsed...)
				mu.Unlock()
			}
			return nil
		})
	}

	// Facts gathered before cancellation are still good data.
	err := g.Wait()
	return facts, err
}

func (p *Pipeline) enrichStage(ctx context.Context, facts []domain.OwnershipFact, collector *failureCollector) ([]domain.EnrichedFact, error) {
	ctx, span := tracer.Start(ctx, "pipeline.enrich", trace.WithAttributes(
		attribute.Int("facts", len(facts))))
	defer span.End()

	// Pre-fill with the bare facts so slots skipped on cancellation still
	// carry their ownership data.
	enriched := bareFacts(facts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.EnrichWorkers)

	for i := range facts {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ef, err := p.enricher.Enrich(gctx, facts[i])
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				var unresolved *marketdata.UnresolvedIdentifierError
				var gap *marketdata.DataGapError
				retryable := !errors.As(err, &unresolved) && !errors.As(err, &gap)
				collector.add(facts[i].Accession, "enrich", err, retryable)
			}
			// The fact survives even when enrichment degraded.
			enriched[i] = ef
			return nil
		})
	}

	err := g.Wait()
	return enriched, err
}

// buildTimelines groups facts per (issuer, holder), applies the amendment
// replace rule and sorts each timeline. Keys are iterated in a fixed order
// so reruns produce identical output.
func buildTimelines(facts []domain.EnrichedFact) []*domain.HolderTimeline {
	byKey := make(map[string]*domain.HolderTimeline)
	for _, f := range facts {
		key := f.TimelineKey()
		tl, ok := byKey[key]
		if !ok {
			tl = &domain.HolderTimeline{CIK: f.CIK, HolderID: f.HolderID}
			byKey[key] = tl
		}
		tl.Append(f)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*domain.HolderTimeline, 0, len(keys))
	for _, k := range keys {
		byKey[k].Sort()
		out = append(out, byKey[k])
	}
	return out
}

func sortFacts(facts []domain.EnrichedFact) {
	sort.SliceStable(facts, func(i, j int) bool {
		if !facts[i].FilingDate.Equal(facts[j].FilingDate) {
			return facts[i].FilingDate.Before(facts[j].FilingDate)
		}
		if facts[i].Accession != facts[j].Accession {
			return facts[i].Accession < facts[j].Accession
		}
		return facts[i].HolderID < facts[j].HolderID
	})
}

// failureCollector accumulates partial failures from concurrent workers.
type failureCollector struct {
	mu       sync.Mutex
	failures []domain.PartialFailure
	metrics  *infrastructure.Metrics
}

func newFailureCollector(metrics *infrastructure.Metrics) *failureCollector {
	return &failureCollector{failures: make([]domain.PartialFailure, 0), metrics: metrics}
}

func (c *failureCollector) add(scope, stage string, err error, retryable bool) {
	c.mu.Lock()
	c.failures = append(c.failures, domain.PartialFailure{
		Scope:     scope,
		Stage:     stage,
		Error:     err.Error(),
		Retryable: retryable,
	})
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.PartialFailures.WithLabelValues(stage).Inc()
	}
}

// sorted returns failures in a stable order regardless of worker timing.
func (c *failureCollector) sorted() []domain.PartialFailure {
	c.mu.Lock()
	defer c.mu.Unlock()
	sort.SliceStable(c.failures, func(i, j int) bool {
		if c.failures[i].Stage != c.failures[j].Stage {
			return c.failures[i].Stage < c.failures[j].Stage
		}
		return c.failures[i].Scope < c.failures[j].Scope
	})
	return c.failures
}
