package enrichment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/headline-radar/internal/metrics"
	"github.com/DeafMist/headline-radar/internal/models"
)

// Store is the part of the document store the pipeline reads and writes.
type Store interface {
	ForEachHeadline(ctx context.Context, fn func(models.HeadlineDocument) error) error
	// UpdateEnrichment sets sentiment_entities and sentiment of one document
	// in a single write and leaves every other field alone.
	UpdateEnrichment(ctx context.Context, id string, e models.Enrichment) error
}

// TextAnalyzer extracts raw entities and a sentiment score from text.
type TextAnalyzer interface {
	Analyze(ctx context.Context, text string) (models.Analysis, error)
}

// Failure kinds reported to a FailureSink.
const (
	FailureAnalysis = "analysis"
	FailureStore    = "store"
)

// Failure describes one document the pipeline could not enrich.
type Failure struct {
	RunID      string
	DocumentID string
	Text       string
	Kind       string
	Err        error
}

// FailureSink receives per-document failures, e.g. to park them for a later retry.
type FailureSink interface {
	ReportFailure(ctx context.Context, f Failure) error
}

// Result summarizes one enrichment run.
type Result struct {
	RunID            string
	Processed        int
	Enriched         int
	AnalysisFailures int
	StoreFailures    int
	FailedIDs        []string
	Elapsed          time.Duration
}

// Pipeline enriches every headline in a store with entities and sentiment.
type Pipeline struct {
	store            Store
	analyzer         TextAnalyzer
	log              *slog.Logger
	sink             FailureSink
	metrics          *metrics.Enrichment
	analyzeTimeout   time.Duration
	maxStoreFailures int
	updateAttempts   int
	updateBackoff    time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		if log == nil {
			log = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		p.log = log
	}
}

// WithFailureSink forwards per-document failures to sink.
func WithFailureSink(sink FailureSink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// WithMetrics records document outcomes and run durations.
func WithMetrics(m *metrics.Enrichment) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithAnalyzeTimeout bounds each analyzer call. Zero disables the bound.
func WithAnalyzeTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.analyzeTimeout = d }
}

// WithMaxStoreFailures aborts a run after n consecutive failed updates.
// Zero or less never aborts on update failures.
func WithMaxStoreFailures(n int) Option {
	return func(p *Pipeline) { p.maxStoreFailures = n }
}

// WithUpdateRetry retries a failed update up to attempts times, doubling
// baseDelay between attempts.
func WithUpdateRetry(attempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) {
		if attempts < 1 {
			attempts = 1
		}
		p.updateAttempts = attempts
		p.updateBackoff = baseDelay
	}
}

// NewPipeline wires a pipeline over store and analyzer.
func NewPipeline(store Store, analyzer TextAnalyzer, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if analyzer == nil {
		return nil, ErrAnalyzerRequired
	}

	p := &Pipeline{
		store:            store,
		analyzer:         analyzer,
		log:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxStoreFailures: 5,
		updateAttempts:   1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Enrich analyzes every headline and writes its derived fields.
//
// Analyzer failures and isolated update failures are counted and skipped.
// Iteration errors, cancellation and runs of consecutive update failures
// abort the run; the partial Result is returned together with the error.
func (p *Pipeline) Enrich(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.NewString()}
	log := p.log.With(slog.String("run_id", res.RunID))
	consecutive := 0

	log.Info("enrichment started")

	err := p.store.ForEachHeadline(ctx, func(doc models.HeadlineDocument) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Processed++

		analysis, err := p.analyze(ctx, doc.Text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			res.AnalysisFailures++
			p.metrics.ObserveDocument(metrics.OutcomeAnalysisFailed)
			log.Warn("skip headline, analysis failed",
				slog.String("id", doc.ID),
				slog.Any("err", err),
			)
			p.reportFailure(ctx, log, Failure{RunID: res.RunID, DocumentID: doc.ID, Text: doc.Text, Kind: FailureAnalysis, Err: err})
			return nil
		}

		enrichment := Derive(analysis)
		if err := p.update(ctx, doc.ID, enrichment); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			consecutive++
			res.StoreFailures++
			res.FailedIDs = append(res.FailedIDs, doc.ID)
			p.metrics.ObserveDocument(metrics.OutcomeStoreFailed)
			log.Warn("update headline failed",
				slog.String("id", doc.ID),
				slog.Int("consecutive", consecutive),
				slog.Any("err", err),
			)
			p.reportFailure(ctx, log, Failure{RunID: res.RunID, DocumentID: doc.ID, Text: doc.Text, Kind: FailureStore, Err: err})
			if p.maxStoreFailures > 0 && consecutive >= p.maxStoreFailures {
				return fmt.Errorf("%d consecutive update failures: %w", consecutive, err)
			}
			return nil
		}

		consecutive = 0
		res.Enriched++
		p.metrics.ObserveDocument(metrics.OutcomeEnriched)
		log.Debug("enriched headline",
			slog.String("id", doc.ID),
			slog.String("sentiment", string(enrichment.Sentiment)),
			slog.Int("entities", len(enrichment.Entities)),
			slog.Float64("polarity", analysis.Polarity),
			slog.Float64("subjectivity", analysis.Subjectivity),
		)
		return nil
	})
	res.Elapsed = time.Since(start)

	if err != nil {
		p.metrics.ObserveRun("aborted", res.Elapsed)
		log.Error("enrichment aborted",
			slog.Int("processed", res.Processed),
			slog.Int("enriched", res.Enriched),
			slog.Int("analysis_failures", res.AnalysisFailures),
			slog.Int("store_failures", res.StoreFailures),
			slog.Duration("elapsed", res.Elapsed),
			slog.Any("err", err),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("enrichment interrupted after %d of %d headlines: %w", res.Enriched, res.Processed, ctxErr)
		}
		return res, fmt.Errorf("%w: enriched %d of %d headlines: %w", ErrStoreUnavailable, res.Enriched, res.Processed, err)
	}

	p.metrics.ObserveRun("ok", res.Elapsed)
	log.Info("enrichment finished",
		slog.Int("processed", res.Processed),
		slog.Int("enriched", res.Enriched),
		slog.Int("analysis_failures", res.AnalysisFailures),
		slog.Int("store_failures", res.StoreFailures),
		slog.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func (p *Pipeline) analyze(ctx context.Context, text string) (models.Analysis, error) {
	if p.analyzeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.analyzeTimeout)
		defer cancel()
	}

	analysis, err := p.analyzer.Analyze(ctx, text)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	return analysis, nil
}

func (p *Pipeline) update(ctx context.Context, id string, e models.Enrichment) error {
	return retryWithBackoff(ctx, p.updateAttempts, p.updateBackoff, func() error {
		err := p.store.UpdateEnrichment(ctx, id, e)
		if errors.Is(err, models.ErrNotFound) {
			return permanent{err}
		}
		return err
	})
}

func (p *Pipeline) reportFailure(ctx context.Context, log *slog.Logger, f Failure) {
	if p.sink == nil {
		return
	}
	if err := p.sink.ReportFailure(ctx, f); err != nil {
		log.Warn("report failure", slog.String("id", f.DocumentID), slog.Any("err", err))
	}
}
