package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeafMist/headline-radar/internal/analyzer"
	"github.com/DeafMist/headline-radar/internal/config"
	"github.com/DeafMist/headline-radar/internal/enrichment"
	"github.com/DeafMist/headline-radar/internal/failures"
	"github.com/DeafMist/headline-radar/internal/logger"
	"github.com/DeafMist/headline-radar/internal/metrics"
	"github.com/DeafMist/headline-radar/internal/store"
)

type enricher interface {
	Enrich(ctx context.Context) (enrichment.Result, error)
}

func main() {
	log := logger.New("enricher")
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Error("load .env", slog.Any("err", err))
		os.Exit(1)
	}
	cfg, err := config.LoadEnricher()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	headlines, err := store.Connect(ctx, cfg.Common, log, store.DefaultConnectOptions)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("connect store", slog.Any("err", err))
		os.Exit(1)
	}
	defer headlines.Close(context.Background())

	textAnalyzer, err := analyzer.NewDefault()
	if err != nil {
		log.Error("init analyzer", slog.Any("err", err))
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []enrichment.Option{
		enrichment.WithLogger(log),
		enrichment.WithMetrics(metrics.NewEnrichment(reg)),
		enrichment.WithAnalyzeTimeout(cfg.AnalyzeTimeout),
		enrichment.WithMaxStoreFailures(cfg.MaxStoreFailures),
		enrichment.WithUpdateRetry(cfg.UpdateAttempts, cfg.UpdateBackoff),
	}
	if cfg.FailureTopic != "" {
		sink := failures.NewKafkaSink(cfg.KafkaBrokers, cfg.FailureTopic)
		defer sink.Close()
		opts = append(opts, enrichment.WithFailureSink(sink))
		log.Info("publishing failures", slog.String("topic", cfg.FailureTopic))
	}

	pipeline, err := enrichment.NewPipeline(headlines, textAnalyzer, opts...)
	if err != nil {
		log.Error("init pipeline", slog.Any("err", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsRouter(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics server starting", slog.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", slog.Any("err", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("enricher running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("run_timeout", cfg.RunTimeout),
		slog.String("backend", cfg.StoreBackend),
	)

	// Run immediately on start; a failed run is retried on the next tick.
	runOnce(ctx, log, pipeline, cfg.RunTimeout)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, pipeline, cfg.RunTimeout)
		}
	}
}

func metricsRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// runOnce performs one bounded enrichment pass and reports whether it completed.
func runOnce(ctx context.Context, log *slog.Logger, p enricher, timeout time.Duration) bool {
	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := p.Enrich(subCtx)
	if err != nil {
		log.Warn("enrichment run failed (will retry on next interval)",
			slog.String("run_id", res.RunID),
			slog.Int("enriched", res.Enriched),
			slog.Any("err", err),
		)
		return false
	}

	if res.AnalysisFailures > 0 || res.StoreFailures > 0 {
		log.Info("enrichment run completed with skipped headlines",
			slog.String("run_id", res.RunID),
			slog.Int("analysis_failures", res.AnalysisFailures),
			slog.Any("failed_ids", res.FailedIDs),
		)
	} else {
		log.Debug("enrichment run completed", slog.String("run_id", res.RunID))
	}
	return true
}
