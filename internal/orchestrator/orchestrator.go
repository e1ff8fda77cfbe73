// Package orchestrator coordinates one scraping run: parallel source search,
// deduplication, throttled fetching, extraction, verification and the final
// hand-off to persistence. Per-candidate failures are recovered and reported
// in the run summary; only a config validation failure or every source
// failing at once fails the run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/karstyne/leadscout/api/schemas"
	"github.com/karstyne/leadscout/internal/config"
	"github.com/karstyne/leadscout/internal/dedup"
)

const (
	defaultFetchConcurrency  = 5
	defaultSourceConcurrency = 6
)

// ContentFetcher retrieves one candidate's page content.
type ContentFetcher interface {
	Fetch(ctx context.Context, candidate schemas.SearchCandidate) (schemas.FetchedContent, error)
}

// Extractor derives structured fields from fetched content.
type Extractor interface {
	Extract(ctx context.Context, content schemas.FetchedContent, scrape schemas.ScrapingConfig) schemas.ExtractedFields
}

// LeadVerifier scores an extracted record.
type LeadVerifier interface {
	Verify(extracted schemas.ExtractedFields, candidate schemas.SearchCandidate) schemas.VerifiedLead
}

// Orchestrator drives the run state machine. One instance serves one run.
type Orchestrator struct {
	cfg        config.PipelineConfig
	maxRetries int

	connectors []schemas.SourceConnector
	fetcher    ContentFetcher
	extractor  Extractor
	verifier   LeadVerifier
	store      schemas.LeadStore // optional persistence guard + sink
	dedup      *dedup.Deduplicator
	logger     *zap.Logger

	state atomic.Value // schemas.RunState
}

// Option adjusts an Orchestrator.
type Option func(*Orchestrator)

// WithStore attaches a persistence boundary. Leads are saved after the final
// dedup pass, and previously persisted URLs are skipped before fetching.
func WithStore(s schemas.LeadStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithMaxRetries bounds how often a retryable fetch failure is retried.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) { o.maxRetries = n }
}

func New(cfg config.PipelineConfig, connectors []schemas.SourceConnector, f ContentFetcher, e Extractor, v LeadVerifier, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		connectors: connectors,
		fetcher:    f,
		extractor:  e,
		verifier:   v,
		dedup:      dedup.New(logger),
		logger:     logger.Named("orchestrator"),
	}
	o.state.Store(schemas.RunIdle)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the run's current stage.
func (o *Orchestrator) State() schemas.RunState {
	return o.state.Load().(schemas.RunState)
}

func (o *Orchestrator) setState(s schemas.RunState) {
	o.state.Store(s)
	o.logger.Info("Run state changed.", zap.String("state", string(s)))
}

// enriched pairs a candidate with everything derived from it. Slices of
// enriched keep candidate order stable across the parallel stages.
type enriched struct {
	candidate schemas.SearchCandidate
	content   schemas.FetchedContent
	extracted schemas.ExtractedFields
}

// Run executes one scraping run. It always returns a summary; the error is
// non-nil only for run-level failures (invalid config, every source failed,
// or cancellation).
func (o *Orchestrator) Run(ctx context.Context, scrape schemas.ScrapingConfig, configID, userID uuid.UUID) ([]schemas.VerifiedLead, schemas.RunSummary, error) {
	summary := schemas.RunSummary{RunID: uuid.New(), StartedAt: time.Now().UTC()}

	if err := scrape.Validate(); err != nil {
		o.setState(schemas.RunFailed)
		summary.CompletedAt = time.Now().UTC()
		return nil, summary, fmt.Errorf("run aborted: %w", err)
	}
	if len(o.connectors) == 0 {
		o.setState(schemas.RunFailed)
		summary.CompletedAt = time.Now().UTC()
		return nil, summary, errors.New("run aborted: no source connectors available")
	}
	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	o.setState(schemas.RunSearching)
	candidates, searchErrs := o.search(ctx, scrape)
	summary.Errors = append(summary.Errors, searchErrs...)
	if len(candidates) == 0 && len(searchErrs) == len(o.connectors) {
		o.setState(schemas.RunFailed)
		summary.CompletedAt = time.Now().UTC()
		return nil, summary, errors.New("run failed: every source connector failed")
	}
	summary.TotalCandidates = len(candidates)

	candidates = o.prepareCandidates(ctx, candidates, scrape.MaxResultsPerRun, userID)

	o.setState(schemas.RunEnriching)
	batch, fetchErrs := o.enrich(ctx, candidates)
	summary.Errors = append(summary.Errors, fetchErrs...)
	for _, e := range batch {
		if e.content.FetchSucceeded {
			summary.Fetched++
		}
	}

	if err := ctx.Err(); err != nil {
		o.setState(schemas.RunFailed)
		summary.CompletedAt = time.Now().UTC()
		return nil, summary, fmt.Errorf("run cancelled: %w", err)
	}

	o.setState(schemas.RunExtracting)
	o.extractAll(ctx, batch, scrape)
	summary.Extracted = len(batch)

	o.setState(schemas.RunVerifying)
	leads := make([]schemas.VerifiedLead, len(batch))
	for i, e := range batch {
		leads[i] = o.verifier.Verify(e.extracted, e.candidate)
	}

	o.setState(schemas.RunDeduplicating)
	leads = o.dedup.FilterLeads(leads)
	for _, l := range leads {
		if l.Verified {
			summary.Verified++
		}
	}

	if o.store != nil {
		summary.Errors = append(summary.Errors, o.persist(ctx, leads, configID, userID)...)
	}

	o.setState(schemas.RunCompleted)
	summary.CompletedAt = time.Now().UTC()
	o.logger.Info("Run complete.",
		zap.Int("candidates", summary.TotalCandidates),
		zap.Int("fetched", summary.Fetched),
		zap.Int("leads", len(leads)),
		zap.Int("verified", summary.Verified),
		zap.Int("errors", len(summary.Errors)))
	return leads, summary, nil
}

// searchOvershoot widens each source's search limit past the run cap so the
// central earliest-first truncation still has a full quota to pick from after
// dedup and the persisted-URL guard thin the pool.
const searchOvershoot = 3

// search queries every connector concurrently. A failing source becomes a
// RunError, never a run failure by itself.
func (o *Orchestrator) search(ctx context.Context, scrape schemas.ScrapingConfig) ([]schemas.SearchCandidate, []schemas.RunError) {
	limit := o.cfg.SourceConcurrency
	if limit <= 0 {
		limit = defaultSourceConcurrency
	}
	perSource := scrape.MaxResultsPerRun * searchOvershoot

	var (
		mu         sync.Mutex
		candidates []schemas.SearchCandidate
		runErrs    []schemas.RunError
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, connector := range o.connectors {
		connector := connector
		g.Go(func() error {
			found, err := connector.Search(gctx, scrape.Keywords, perSource)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.logger.Warn("Source search failed, skipping source.",
					zap.String("source", connector.Name()), zap.Error(err))
				runErrs = append(runErrs, schemas.RunError{Source: connector.Name(), Message: err.Error()})
				return nil
			}
			candidates = append(candidates, found...)
			return nil
		})
	}
	g.Wait() // goroutines never return errors; Wait just joins them

	// earliest-discovered-first, stable so same-timestamp candidates keep
	// their source order
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DiscoveredAt.Before(candidates[j].DiscoveredAt)
	})
	return candidates, runErrs
}

// prepareCandidates runs the pre-fetch dedup pass, the optional
// already-persisted guard, and the MaxResultsPerRun truncation.
func (o *Orchestrator) prepareCandidates(ctx context.Context, candidates []schemas.SearchCandidate, max int, userID uuid.UUID) []schemas.SearchCandidate {
	candidates = o.dedup.FilterCandidates(candidates)

	if o.store != nil {
		kept := candidates[:0]
		for _, c := range candidates {
			exists, err := o.store.ExistsByURL(ctx, dedup.NormalizeURL(c.URL), userID)
			if err != nil {
				// the guard is best effort; keep the candidate on error
				o.logger.Warn("Persisted-URL check failed, keeping candidate.",
					zap.String("url", c.URL), zap.Error(err))
				kept = append(kept, c)
				continue
			}
			if !exists {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	if max > 0 && len(candidates) > max {
		o.logger.Info("Truncating candidate list.",
			zap.Int("found", len(candidates)), zap.Int("max", max))
		candidates = candidates[:max]
	}
	return candidates
}

// enrich fetches content for every candidate through a bounded worker pool.
// A candidate whose fetch fails is kept with empty content.
func (o *Orchestrator) enrich(ctx context.Context, candidates []schemas.SearchCandidate) ([]enriched, []schemas.RunError) {
	limit := o.cfg.FetchConcurrency
	if limit <= 0 {
		limit = defaultFetchConcurrency
	}

	batch := make([]enriched, len(candidates))
	runErrs := make([]schemas.RunError, 0)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, candidate := range candidates {
		i, candidate := i, candidate
		g.Go(func() error {
			content, err := o.fetchWithRetry(gctx, candidate)
			if err != nil {
				mu.Lock()
				runErrs = append(runErrs, schemas.RunError{
					Source:  candidate.SourceID,
					Message: fmt.Sprintf("fetch %s: %v", candidate.URL, err),
				})
				mu.Unlock()
			}
			batch[i] = enriched{candidate: candidate, content: content}
			return nil
		})
	}
	g.Wait()
	return batch, runErrs
}

// fetchWithRetry retries retryable failures up to the configured bound.
// Terminal failures and context cancellation end the attempts immediately.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, candidate schemas.SearchCandidate) (schemas.FetchedContent, error) {
	attempts := o.maxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	var (
		content schemas.FetchedContent
		err     error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		content, err = o.fetcher.Fetch(ctx, candidate)
		if err == nil {
			return content, nil
		}
		if !errors.Is(err, schemas.ErrFetchRetryable) || ctx.Err() != nil {
			break
		}
		o.logger.Debug("Retrying fetch.",
			zap.String("url", candidate.URL), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	// ensure downstream always has the candidate, even with empty content
	if content.Candidate.URL == "" {
		content.Candidate = candidate
	}
	content.FetchSucceeded = false
	return content, err
}

// extractAll runs the pure extraction stage in parallel per candidate.
func (o *Orchestrator) extractAll(ctx context.Context, batch []enriched, scrape schemas.ScrapingConfig) {
	limit := o.cfg.FetchConcurrency
	if limit <= 0 {
		limit = defaultFetchConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range batch {
		i := i
		g.Go(func() error {
			batch[i].extracted = o.extractor.Extract(gctx, batch[i].content, scrape)
			return nil
		})
	}
	g.Wait()
}

func (o *Orchestrator) persist(ctx context.Context, leads []schemas.VerifiedLead, configID, userID uuid.UUID) []schemas.RunError {
	var runErrs []schemas.RunError
	for i := range leads {
		if _, err := o.store.SaveLead(ctx, &leads[i], configID, userID); err != nil {
			o.logger.Warn("Failed to persist lead.",
				zap.String("url", leads[i].SourceURL), zap.Error(err))
			runErrs = append(runErrs, schemas.RunError{
				Source:  "store",
				Message: fmt.Sprintf("save %s: %v", leads[i].SourceURL, err),
			})
		}
	}
	return runErrs
}
