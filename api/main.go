package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeafMist/headline-radar/internal/config"
	"github.com/DeafMist/headline-radar/internal/enrichment"
	"github.com/DeafMist/headline-radar/internal/logger"
	"github.com/DeafMist/headline-radar/internal/metrics"
	"github.com/DeafMist/headline-radar/internal/models"
	"github.com/DeafMist/headline-radar/internal/store"
)

func main() {
	log := logger.New("api")
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Error("load .env", slog.Any("err", err))
		os.Exit(1)
	}
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	headlines, err := store.Connect(ctx, cfg.Common, log, store.DefaultConnectOptions)
	if err != nil {
		log.Error("connect store", slog.Any("err", err))
		os.Exit(1)
	}
	defer headlines.Close(context.Background())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, err := newServer(log, cfg, headlines, metrics.NewQueries(reg))
	if err != nil {
		log.Error("init server", slog.Any("err", err))
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(reg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type headlineStore interface {
	ForEachHeadline(ctx context.Context, fn func(models.HeadlineDocument) error) error
	FindByEntityType(ctx context.Context, entityType string, limit int) ([]models.HeadlineDocument, error)
	Ping(ctx context.Context) error
}

// healthChecker is implemented by stores with a richer health probe than Ping.
type healthChecker interface {
	Health(ctx context.Context) error
}

type server struct {
	log     *slog.Logger
	cfg     *config.API
	store   headlineStore
	report  *enrichment.Report
	queries *metrics.Queries
}

type errorResponse struct {
	Error string `json:"error"`
}

type topEntitiesResponse struct {
	Limit    int                         `json:"limit"`
	Entities []models.EntityFrequencyRow `json:"entities"`
}

type headlinesResponse struct {
	EntityType string                    `json:"entity_type"`
	Count      int                       `json:"count"`
	Headlines  []models.HeadlineDocument `json:"headlines"`
}

func newServer(log *slog.Logger, cfg *config.API, s headlineStore, queries *metrics.Queries) (*server, error) {
	report, err := enrichment.NewReport(s)
	if err != nil {
		return nil, err
	}
	return &server{log: log, cfg: cfg, store: s, report: report, queries: queries}, nil
}

func (s *server) routes(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/entities/top", s.handleTopEntities)
	r.Get("/headlines", s.handleHeadlines)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var err error
	if hc, ok := s.store.(healthChecker); ok {
		err = hc.Health(ctx)
	} else {
		err = s.store.Ping(ctx)
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleTopEntities(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	limit, err := parseLimit(r.URL.Query().Get("limit"), s.cfg.DefaultLimit, s.cfg.MaxLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	start := time.Now()
	rows, err := s.report.TopEntities(ctx, limit)
	s.queries.Observe("top_entities", start, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.EntityFrequencyRow{}
	}

	writeJSON(w, http.StatusOK, topEntitiesResponse{Limit: limit, Entities: rows})
}

func (s *server) handleHeadlines(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	entityType := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("entity_type")))
	if entityType == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "entity_type is required"})
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), s.cfg.DefaultLimit, s.cfg.MaxLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	start := time.Now()
	docs, err := s.store.FindByEntityType(ctx, entityType, limit)
	s.queries.Observe("headlines_by_entity_type", start, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, headlinesResponse{EntityType: entityType, Count: len(docs), Headlines: docs})
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, enrichment.ErrInvalidLimit):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.log.Warn("query failed",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Any("err", err),
	)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// parseLimit reads a positive limit, falling back when raw is empty and
// clamping to max.
func parseLimit(raw string, fallback, max int) (int, error) {
	value := fallback
	if raw = strings.TrimSpace(raw); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return 0, fmt.Errorf("%w: %q", enrichment.ErrInvalidLimit, raw)
		}
		value = parsed
	}
	if value > max {
		return max, nil
	}
	return value, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
