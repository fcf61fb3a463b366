package enrichment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/headline-radar/internal/enrichment"
	"github.com/DeafMist/headline-radar/internal/memstore"
	"github.com/DeafMist/headline-radar/internal/models"
)

var errUnreadable = errors.New("unreadable text")

// stubAnalyzer returns canned analyses keyed by text and fails on unknown text.
type stubAnalyzer struct {
	mu    sync.Mutex
	out   map[string]models.Analysis
	calls int
}

func (s *stubAnalyzer) Analyze(_ context.Context, text string) (models.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	a, ok := s.out[text]
	if !ok {
		return models.Analysis{}, errUnreadable
	}
	return a, nil
}

// flakyStore fails UpdateEnrichment for the configured ids.
type flakyStore struct {
	*memstore.Store
	mu       sync.Mutex
	failFor  map[string]int // remaining failures per id, -1 means always
	attempts map[string]int
}

func newFlakyStore(inner *memstore.Store) *flakyStore {
	return &flakyStore{Store: inner, failFor: map[string]int{}, attempts: map[string]int{}}
}

func (f *flakyStore) UpdateEnrichment(ctx context.Context, id string, e models.Enrichment) error {
	f.mu.Lock()
	f.attempts[id]++
	remaining := f.failFor[id]
	if remaining != 0 {
		if remaining > 0 {
			f.failFor[id] = remaining - 1
		}
		f.mu.Unlock()
		return errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.Store.UpdateEnrichment(ctx, id, e)
}

type recordingSink struct {
	failures []enrichment.Failure
}

func (r *recordingSink) ReportFailure(_ context.Context, f enrichment.Failure) error {
	r.failures = append(r.failures, f)
	return nil
}

func seedStore(t *testing.T, texts map[string]string, ids ...string) *memstore.Store {
	t.Helper()
	store := memstore.New()
	for _, id := range ids {
		_, err := store.InsertHeadlines(context.Background(), models.HeadlineDocument{ID: id, Text: texts[id]})
		require.NoError(t, err)
	}
	return store
}

func newsAnalyzer() *stubAnalyzer {
	return &stubAnalyzer{out: map[string]models.Analysis{
		"acme wins big contract": {
			Entities: []models.RawEntity{{Text: "Acme", Type: "ORG"}},
			Polarity: 0.6,
		},
		"jane doe injured in sydney crash": {
			Entities: []models.RawEntity{{Text: "Jane Doe", Type: "PERSON"}, {Text: "Sydney", Type: "LOC"}},
			Polarity: -0.3,
		},
		"council meets on tuesday": {
			Entities: []models.RawEntity{{Text: "Tuesday", Type: "DATE"}},
			Polarity: 0,
		},
	}}
}

func TestPipelineEnrichesEveryDocument(t *testing.T) {
	texts := map[string]string{
		"a": "acme wins big contract",
		"b": "jane doe injured in sydney crash",
		"c": "council meets on tuesday",
	}
	store := seedStore(t, texts, "a", "b", "c")

	p, err := enrichment.NewPipeline(store, newsAnalyzer())
	require.NoError(t, err)

	res, err := p.Enrich(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	require.Equal(t, 3, res.Processed)
	require.Equal(t, 3, res.Enriched)
	require.Zero(t, res.AnalysisFailures)
	require.Zero(t, res.StoreFailures)

	a, _ := store.Get("a")
	require.Equal(t, models.SentimentPositive, a.Sentiment)
	require.Equal(t, []models.EntityAnnotation{{Type: "ORG", Value: "Acme"}}, a.Entities)
	require.Equal(t, "acme wins big contract", a.Text)

	b, _ := store.Get("b")
	require.Equal(t, models.SentimentNegative, b.Sentiment)
	require.Equal(t, []models.EntityAnnotation{
		{Type: "PERSON", Value: "Jane"},
		{Type: "PERSON", Value: "Doe"},
		{Type: "LOC", Value: "Sydney"},
	}, b.Entities)

	c, _ := store.Get("c")
	require.Equal(t, models.SentimentNeutral, c.Sentiment)
	require.NotNil(t, c.Entities)
	require.Empty(t, c.Entities)
}

func TestPipelineIsIdempotent(t *testing.T) {
	texts := map[string]string{
		"a": "acme wins big contract",
		"b": "jane doe injured in sydney crash",
	}
	store := seedStore(t, texts, "a", "b")

	p, err := enrichment.NewPipeline(store, newsAnalyzer())
	require.NoError(t, err)

	_, err = p.Enrich(context.Background())
	require.NoError(t, err)
	firstA, _ := store.Get("a")
	firstB, _ := store.Get("b")

	_, err = p.Enrich(context.Background())
	require.NoError(t, err)
	secondA, _ := store.Get("a")
	secondB, _ := store.Get("b")

	require.Equal(t, firstA, secondA)
	require.Equal(t, firstB, secondB)
	require.Len(t, secondB.Entities, 3)
}

func TestPipelineReplacesPreviousEnrichment(t *testing.T) {
	store := seedStore(t, map[string]string{"a": "acme wins big contract"}, "a")
	require.NoError(t, store.UpdateEnrichment(context.Background(), "a", models.Enrichment{
		Entities:  []models.EntityAnnotation{{Type: "PERSON", Value: "Stale"}, {Type: "ORG", Value: "Old"}},
		Sentiment: models.SentimentNegative,
	}))

	p, err := enrichment.NewPipeline(store, newsAnalyzer())
	require.NoError(t, err)
	_, err = p.Enrich(context.Background())
	require.NoError(t, err)

	a, _ := store.Get("a")
	require.Equal(t, models.SentimentPositive, a.Sentiment)
	require.Equal(t, []models.EntityAnnotation{{Type: "ORG", Value: "Acme"}}, a.Entities)
}

func TestPipelineSkipsAnalysisFailures(t *testing.T) {
	texts := map[string]string{
		"good": "acme wins big contract",
		"bad":  "\x00\x00",
		"also": "jane doe injured in sydney crash",
	}
	store := seedStore(t, texts, "good", "bad", "also")
	sink := &recordingSink{}

	p, err := enrichment.NewPipeline(store, newsAnalyzer(), enrichment.WithFailureSink(sink))
	require.NoError(t, err)

	res, err := p.Enrich(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, res.Processed)
	require.Equal(t, 2, res.Enriched)
	require.Equal(t, 1, res.AnalysisFailures)

	bad, _ := store.Get("bad")
	require.False(t, bad.Enriched())
	require.Nil(t, bad.Entities)

	good, _ := store.Get("good")
	require.True(t, good.Enriched())
	also, _ := store.Get("also")
	require.True(t, also.Enriched())

	require.Len(t, sink.failures, 1)
	require.Equal(t, "bad", sink.failures[0].DocumentID)
	require.Equal(t, enrichment.FailureAnalysis, sink.failures[0].Kind)
	require.Equal(t, res.RunID, sink.failures[0].RunID)
	require.ErrorIs(t, sink.failures[0].Err, enrichment.ErrAnalysisFailed)
	require.ErrorIs(t, sink.failures[0].Err, errUnreadable)
}

func TestPipelineContinuesAfterIsolatedStoreFailure(t *testing.T) {
	texts := map[string]string{
		"a": "acme wins big contract",
		"b": "jane doe injured in sydney crash",
		"c": "council meets on tuesday",
	}
	store := newFlakyStore(seedStore(t, texts, "a", "b", "c"))
	store.failFor["b"] = -1

	p, err := enrichment.NewPipeline(store, newsAnalyzer())
	require.NoError(t, err)

	res, err := p.Enrich(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.Enriched)
	require.Equal(t, 1, res.StoreFailures)
	require.Equal(t, []string{"b"}, res.FailedIDs)

	b, _ := store.Get("b")
	require.False(t, b.Enriched())
	c, _ := store.Get("c")
	require.True(t, c.Enriched())
}

func TestPipelineAbortsOnConsecutiveStoreFailures(t *testing.T) {
	texts := map[string]string{
		"a": "acme wins big contract",
		"b": "jane doe injured in sydney crash",
		"c": "council meets on tuesday",
	}
	store := newFlakyStore(seedStore(t, texts, "a", "b", "c"))
	store.failFor["a"] = -1
	store.failFor["b"] = -1

	p, err := enrichment.NewPipeline(store, newsAnalyzer(), enrichment.WithMaxStoreFailures(2))
	require.NoError(t, err)

	res, err := p.Enrich(context.Background())
	require.ErrorIs(t, err, enrichment.ErrStoreUnavailable)
	require.Equal(t, 2, res.Processed)
	require.Equal(t, 0, res.Enriched)
	require.Equal(t, 2, res.StoreFailures)

	c, _ := store.Get("c")
	require.False(t, c.Enriched())
}

func TestPipelineRetriesUpdates(t *testing.T) {
	store := newFlakyStore(seedStore(t, map[string]string{"a": "acme wins big contract"}, "a"))
	store.failFor["a"] = 2

	p, err := enrichment.NewPipeline(store, newsAnalyzer(), enrichment.WithUpdateRetry(3, time.Millisecond))
	require.NoError(t, err)

	res, err := p.Enrich(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Enriched)
	require.Equal(t, 3, store.attempts["a"])
}

func TestPipelineDoesNotRetryMissingDocument(t *testing.T) {
	store := &missingStore{Store: seedStore(t, map[string]string{"a": "acme wins big contract"}, "a")}

	p, err := enrichment.NewPipeline(store, newsAnalyzer(), enrichment.WithUpdateRetry(4, time.Millisecond))
	require.NoError(t, err)

	res, err := p.Enrich(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.StoreFailures)
	require.Equal(t, 1, store.calls)
}

type missingStore struct {
	*memstore.Store
	calls int
}

func (m *missingStore) UpdateEnrichment(context.Context, string, models.Enrichment) error {
	m.calls++
	return models.ErrNotFound
}

func TestPipelineStopsOnCancelledContext(t *testing.T) {
	store := seedStore(t, map[string]string{"a": "acme wins big contract"}, "a")
	analyzer := newsAnalyzer()

	p, err := enrichment.NewPipeline(store, analyzer)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Enrich(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, analyzer.calls)
}

func TestNewPipelineRequiresDependencies(t *testing.T) {
	_, err := enrichment.NewPipeline(nil, newsAnalyzer())
	require.ErrorIs(t, err, enrichment.ErrStoreRequired)

	_, err = enrichment.NewPipeline(memstore.New(), nil)
	require.ErrorIs(t, err, enrichment.ErrAnalyzerRequired)
}
