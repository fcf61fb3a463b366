package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Document outcomes recorded by the enrichment pipeline.
const (
	OutcomeEnriched       = "enriched"
	OutcomeAnalysisFailed = "analysis_failed"
	OutcomeStoreFailed    = "store_failed"
)

// Enrichment tracks per-document outcomes and run durations.
// A nil *Enrichment is valid and records nothing.
type Enrichment struct {
	documents   *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
}

// NewEnrichment creates the enrichment collectors and registers them on reg.
func NewEnrichment(reg prometheus.Registerer) *Enrichment {
	m := &Enrichment{
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "headline_enrichment_documents_total",
			Help: "Headlines processed by the enrichment pipeline, by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "headline_enrichment_runs_total",
			Help: "Enrichment runs, by final status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "headline_enrichment_run_duration_seconds",
			Help:    "Wall time of a full enrichment run.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
	reg.MustRegister(m.documents, m.runs, m.runDuration)
	return m
}

// ObserveDocument counts one processed headline.
func (m *Enrichment) ObserveDocument(outcome string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(outcome).Inc()
}

// ObserveRun records the end of a run.
func (m *Enrichment) ObserveRun(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

// Queries times read-side analytics queries served by the API.
type Queries struct {
	latency *prometheus.HistogramVec
}

// NewQueries creates the query latency histogram and registers it on reg.
func NewQueries(reg prometheus.Registerer) *Queries {
	q := &Queries{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "headline_query_duration_seconds",
			Help:    "Latency of analytics queries, by query and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"query", "outcome"}),
	}
	reg.MustRegister(q.latency)
	return q
}

// Observe records one query execution started at start.
func (q *Queries) Observe(query string, start time.Time, err error) {
	if q == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	q.latency.WithLabelValues(query, outcome).Observe(time.Since(start).Seconds())
}
