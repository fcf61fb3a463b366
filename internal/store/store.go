// Package store opens the configured headline store backend.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeafMist/headline-radar/internal/config"
	"github.com/DeafMist/headline-radar/internal/elasticsearch"
	"github.com/DeafMist/headline-radar/internal/memstore"
	"github.com/DeafMist/headline-radar/internal/models"
	"github.com/DeafMist/headline-radar/internal/mongodb"
)

// Store is the full headline store surface used by the binaries.
type Store interface {
	InsertHeadlines(ctx context.Context, docs ...models.HeadlineDocument) (int, error)
	ForEachHeadline(ctx context.Context, fn func(models.HeadlineDocument) error) error
	UpdateEnrichment(ctx context.Context, id string, e models.Enrichment) error
	FindByEntityType(ctx context.Context, entityType string, limit int) ([]models.HeadlineDocument, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// indexer is implemented by backends that prepare their schema on startup.
type indexer interface {
	EnsureIndex(ctx context.Context) error
}

var (
	_ Store = (*elasticsearch.Client)(nil)
	_ Store = (*mongodb.Client)(nil)
	_ Store = (*memstore.Store)(nil)
)

// Open builds the backend selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg config.Common, log *slog.Logger) (Store, error) {
	switch cfg.StoreBackend {
	case config.BackendElasticsearch:
		c, err := elasticsearch.New(elasticsearch.Config{
			Addr:     cfg.ElasticsearchAddr,
			Index:    cfg.ElasticsearchIndex,
			PageSize: cfg.PageSize,
		}, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendMongo:
		c, err := mongodb.New(ctx, mongodb.Config{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
			PageSize:   cfg.PageSize,
		}, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Prepare pings s and creates its index when the backend has one.
func Prepare(ctx context.Context, s Store) error {
	if err := s.Ping(ctx); err != nil {
		return err
	}
	if ix, ok := s.(indexer); ok {
		return ix.EnsureIndex(ctx)
	}
	return nil
}

// ConnectOptions bounds the startup retry loop of Connect.
type ConnectOptions struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	PingTimeout  time.Duration
}

// DefaultConnectOptions retries for roughly two minutes.
var DefaultConnectOptions = ConnectOptions{
	Attempts:     10,
	InitialDelay: 2 * time.Second,
	MaxDelay:     30 * time.Second,
	PingTimeout:  5 * time.Second,
}

// Connect opens and prepares the configured backend, retrying with
// exponential backoff while the store is still starting up.
func Connect(ctx context.Context, cfg config.Common, log *slog.Logger, opts ConnectOptions) (Store, error) {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	delay := opts.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		s, err := Open(ctx, cfg, log)
		if err == nil {
			prepCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
			err = Prepare(prepCtx, s)
			cancel()
			if err == nil {
				log.Info("connected to store", slog.String("backend", cfg.StoreBackend), slog.Int("attempt", attempt))
				return s, nil
			}
			_ = s.Close(context.WithoutCancel(ctx))
		}
		lastErr = err
		if attempt == opts.Attempts {
			break
		}

		log.Warn("store not ready, retrying",
			slog.String("backend", cfg.StoreBackend),
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", opts.Attempts),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
		if opts.MaxDelay > 0 && delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
	return nil, fmt.Errorf("connect to %s store after %d attempts: %w", cfg.StoreBackend, opts.Attempts, lastErr)
}
