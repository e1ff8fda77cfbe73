package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/karstyne/leadscout/api/schemas"
	"github.com/karstyne/leadscout/internal/config"
	"github.com/karstyne/leadscout/internal/dedup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- fakes --

type fakeConnector struct {
	name       string
	candidates []schemas.SearchCandidate
	err        error
}

func (f *fakeConnector) Search(_ context.Context, _ []string, limit int) ([]schemas.SearchCandidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.candidates) > limit {
		return f.candidates[:limit], nil
	}
	return f.candidates, nil
}

func (f *fakeConnector) Name() string { return f.name }

type fakeFetcher struct {
	failURLs map[string]error // url -> error to return
	calls    atomic.Int32
}

func (f *fakeFetcher) Fetch(_ context.Context, c schemas.SearchCandidate) (schemas.FetchedContent, error) {
	f.calls.Add(1)
	if err, ok := f.failURLs[c.URL]; ok {
		return schemas.FetchedContent{Candidate: c, FetchSucceeded: false}, err
	}
	return schemas.FetchedContent{
		Candidate:      c,
		RawText:        "content for " + c.URL,
		FetchSucceeded: true,
		HTTPStatus:     200,
	}, nil
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, content schemas.FetchedContent, _ schemas.ScrapingConfig) schemas.ExtractedFields {
	fields := schemas.ExtractedFields{BudgetRange: schemas.BudgetUnknown}
	if content.FetchSucceeded {
		fields.Company = schemas.SomeString("Fake Builders Inc")
		fields.PatternConfidence = 75
	}
	return fields
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(extracted schemas.ExtractedFields, candidate schemas.SearchCandidate) schemas.VerifiedLead {
	return schemas.VerifiedLead{
		ID:              uuid.New(),
		Extracted:       extracted,
		SourceURL:       candidate.URL,
		FinalConfidence: extracted.PatternConfidence,
		Verified:        extracted.PatternConfidence >= 70,
	}
}

type fakeStore struct {
	existing map[string]bool
	saved    []string
	saveErr  error
}

// fakeStore mirrors the real store's contract: leads are keyed by their
// normalized URL, so any variant of a saved URL is found on later lookups.
func (s *fakeStore) SaveLead(_ context.Context, lead *schemas.VerifiedLead, _, _ uuid.UUID) (uuid.UUID, error) {
	if s.saveErr != nil {
		return uuid.Nil, s.saveErr
	}
	s.saved = append(s.saved, lead.SourceURL)
	if s.existing == nil {
		s.existing = map[string]bool{}
	}
	s.existing[dedup.NormalizeURL(lead.SourceURL)] = true
	return lead.ID, nil
}

func (s *fakeStore) ExistsByURL(_ context.Context, url string, _ uuid.UUID) (bool, error) {
	return s.existing[dedup.NormalizeURL(url)], nil
}

// -- helpers --

func candidateAt(url string, minute int) schemas.SearchCandidate {
	return schemas.SearchCandidate{
		Title:        url,
		URL:          url,
		SourceID:     "fake",
		DiscoveredAt: time.Date(2026, 8, 1, 10, minute, 0, 0, time.UTC),
	}
}

func validScrape() schemas.ScrapingConfig {
	return schemas.ScrapingConfig{
		Keywords:         []string{"construction"},
		EnabledSources:   []string{"fake"},
		MaxResultsPerRun: 100,
	}
}

func newTestOrchestrator(connectors []schemas.SourceConnector, f ContentFetcher, opts ...Option) *Orchestrator {
	return New(config.PipelineConfig{FetchConcurrency: 3, SourceConcurrency: 3},
		connectors, f, fakeExtractor{}, fakeVerifier{}, zap.NewNop(), opts...)
}

// -- tests --

func TestRunHappyPath(t *testing.T) {
	connectors := []schemas.SourceConnector{
		&fakeConnector{name: "a", candidates: []schemas.SearchCandidate{
			candidateAt("https://x.com/1", 1),
			candidateAt("https://x.com/2", 2),
		}},
		&fakeConnector{name: "b", candidates: []schemas.SearchCandidate{
			candidateAt("https://x.com/3", 0),
		}},
	}
	o := newTestOrchestrator(connectors, &fakeFetcher{})

	leads, summary, err := o.Run(context.Background(), validScrape(), uuid.New(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, schemas.RunCompleted, o.State())
	assert.Equal(t, 3, summary.TotalCandidates)
	assert.Equal(t, 3, summary.Fetched)
	assert.Equal(t, 3, summary.Verified)
	assert.Empty(t, summary.Errors)
	require.Len(t, leads, 3)
	// earliest discovered first
	assert.Equal(t, "https://x.com/3", leads[0].SourceURL)
}

func TestRunRejectsEmptyKeywordsBeforeSearching(t *testing.T) {
	searched := &fakeConnector{name: "a", err: errors.New("must not be called")}
	o := newTestOrchestrator([]schemas.SourceConnector{searched}, &fakeFetcher{})

	scrape := validScrape()
	scrape.Keywords = nil
	_, _, err := o.Run(context.Background(), scrape, uuid.New(), uuid.New())

	require.Error(t, err)
	assert.Equal(t, schemas.RunFailed, o.State())
}

func TestRunSingleSourceFailureIsNotRunFailure(t *testing.T) {
	connectors := []schemas.SourceConnector{
		&fakeConnector{name: "broken", err: fmt.Errorf("quota: %w", schemas.ErrRateLimited)},
		&fakeConnector{name: "ok", candidates: []schemas.SearchCandidate{candidateAt("https://x.com/1", 0)}},
	}
	o := newTestOrchestrator(connectors, &fakeFetcher{})

	leads, summary, err := o.Run(context.Background(), validScrape(), uuid.New(), uuid.New())

	require.NoError(t, err)
	assert.Len(t, leads, 1)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "broken", summary.Errors[0].Source)
}

func TestRunFailsWhenEverySourceFails(t *testing.T) {
	connectors := []schemas.SourceConnector{
		&fakeConnector{name: "a", err: errors.New("down")},
		&fakeConnector{name: "b", err: errors.New("down")},
	}
	o := newTestOrchestrator(connectors, &fakeFetcher{})

	_, summary, err := o.Run(context.Background(), validScrape(), uuid.New(), uuid.New())

	require.Error(t, err)
	assert.Equal(t, schemas.RunFailed, o.State())
	assert.Len(t, summary.Errors, 2)
}

func TestRunTruncatesToMaxResults(t *testing.T) {
	var candidates []schemas.SearchCandidate
	for i := 0; i < 10; i++ {
		candidates = append(candidates, candidateAt(fmt.Sprintf("https://x.com/%d", i), i))
	}
	o := newTestOrchestrator([]schemas.SourceConnector{&fakeConnector{name: "a", candidates: candidates}}, &fakeFetcher{})

	scrape := validScrape()
	scrape.MaxResultsPerRun = 4
	leads, summary, err := o.Run(context.Background(), scrape, uuid.New(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, 10, summary.TotalCandidates)
	require.Len(t, leads, 4)
	// earliest-discovered candidates survive the cut
	assert.Equal(t, "https://x.com/0", leads[0].SourceURL)
	assert.Equal(t, "https://x.com/3", leads[3].SourceURL)
}

func TestRunKeepsCandidateOnTerminalFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{failURLs: map[string]error{
		"https://x.com/dead": fmt.Errorf("status 404: %w", schemas.ErrFetchTerminal),
	}}
	connectors := []schemas.SourceConnector{&fakeConnector{name: "a", candidates: []schemas.SearchCandidate{
		candidateAt("https://x.com/dead", 0),
		candidateAt("https://x.com/live", 1),
	}}}
	o := newTestOrchestrator(connectors, fetcher)

	leads, summary, err := o.Run(context.Background(), validScrape(), uuid.New(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fetched)
	require.Len(t, summary.Errors, 1)
	// the failed candidate still flows through extraction and verification
	require.Len(t, leads, 2)
	assert.Equal(t, 1, summary.Verified)
}

func TestRunRetriesRetryableFetches(t *testing.T) {
	fetcher := &fakeFetcher{failURLs: map[string]error{
		"https://x.com/flaky": fmt.Errorf("status 502: %w", schemas.ErrFetchRetryable),
	}}
	connectors := []schemas.SourceConnector{&fakeConnector{name: "a", candidates: []schemas.SearchCandidate{
		candidateAt("https://x.com/flaky", 0),
	}}}
	o := newTestOrchestrator(connectors, fetcher, WithMaxRetries(2))

	_, summary, err := o.Run(context.Background(), validScrape(), uuid.New(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, int32(3), fetcher.calls.Load(), "one attempt plus two retries")
	assert.Len(t, summary.Errors, 1)
}

func TestRunDedupAcrossSources(t *testing.T) {
	connectors := []schemas.SourceConnector{
		&fakeConnector{name: "a", candidates: []schemas.SearchCandidate{
			candidateAt("http://x.com/a?utm_source=y", 0),
		}},
		&fakeConnector{name: "b", candidates: []schemas.SearchCandidate{
			candidateAt("https://x.com/a/", 1),
		}},
	}
	fetcher := &fakeFetcher{}
	o := newTestOrchestrator(connectors, fetcher)

	leads, _, err := o.Run(context.Background(), validScrape(), uuid.New(), uuid.New())

	require.NoError(t, err)
	assert.Len(t, leads, 1, "equivalent URLs collapse to one lead")
	assert.Equal(t, int32(1), fetcher.calls.Load(), "duplicate is dropped before fetching")
}

func TestRunSkipsAlreadyPersistedURLs(t *testing.T) {
	store := &fakeStore{existing: map[string]bool{"https://x.com/old": true}}
	connectors := []schemas.SourceConnector{&fakeConnector{name: "a", candidates: []schemas.SearchCandidate{
		candidateAt("https://x.com/old", 0),
		candidateAt("https://x.com/new", 1),
	}}}
	o := newTestOrchestrator(connectors, &fakeFetcher{}, WithStore(store))

	leads, _, err := o.Run(context.Background(), validScrape(), uuid.New(), uuid.New())

	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "https://x.com/new", leads[0].SourceURL)
	assert.Equal(t, []string{"https://x.com/new"}, store.saved)
}

// A URL saved in one run must be skipped by the next run even when the raw
// form carries tracking params or a different scheme.
func TestRunSecondRunSkipsSavedURLVariant(t *testing.T) {
	store := &fakeStore{}
	connectors := []schemas.SourceConnector{&fakeConnector{name: "a", candidates: []schemas.SearchCandidate{
		candidateAt("http://x.com/a?utm_source=y", 0),
	}}}

	first := newTestOrchestrator(connectors, &fakeFetcher{}, WithStore(store))
	leads, _, err := first.Run(context.Background(), validScrape(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.Len(t, leads, 1)
	require.Len(t, store.saved, 1)

	fetcher := &fakeFetcher{}
	second := newTestOrchestrator(connectors, fetcher, WithStore(store))
	leads, _, err = second.Run(context.Background(), validScrape(), uuid.New(), uuid.New())

	require.NoError(t, err)
	assert.Empty(t, leads)
	assert.Equal(t, int32(0), fetcher.calls.Load(), "persisted candidate must not be fetched again")
	assert.Len(t, store.saved, 1)
}

func TestRunStoreSaveFailureIsRunError(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("disk full")}
	connectors := []schemas.SourceConnector{&fakeConnector{name: "a", candidates: []schemas.SearchCandidate{
		candidateAt("https://x.com/1", 0),
	}}}
	o := newTestOrchestrator(connectors, &fakeFetcher{}, WithStore(store))

	leads, summary, err := o.Run(context.Background(), validScrape(), uuid.New(), uuid.New())

	require.NoError(t, err, "persistence problems never fail the run")
	assert.Len(t, leads, 1)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "store", summary.Errors[0].Source)
}

func TestRunCancelledContext(t *testing.T) {
	connectors := []schemas.SourceConnector{&fakeConnector{name: "a", candidates: []schemas.SearchCandidate{
		candidateAt("https://x.com/1", 0),
	}}}
	o := newTestOrchestrator(connectors, &fakeFetcher{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := o.Run(ctx, validScrape(), uuid.New(), uuid.New())

	require.Error(t, err)
	assert.Equal(t, schemas.RunFailed, o.State())
}

func TestStateStartsIdle(t *testing.T) {
	o := newTestOrchestrator(nil, &fakeFetcher{})
	assert.Equal(t, schemas.RunIdle, o.State())
}
