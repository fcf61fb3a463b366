package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/headline-radar/internal/config"
	"github.com/DeafMist/headline-radar/internal/elasticsearch"
	"github.com/DeafMist/headline-radar/internal/logger"
	"github.com/DeafMist/headline-radar/internal/memstore"
	"github.com/DeafMist/headline-radar/internal/store"
)

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := store.Open(ctx, config.Common{StoreBackend: config.BackendMemory}, nil)
	require.NoError(t, err)
	require.IsType(t, &memstore.Store{}, s)
	require.NoError(t, store.Prepare(ctx, s))

	s, err = store.Open(ctx, config.Common{
		StoreBackend:       config.BackendElasticsearch,
		ElasticsearchAddr:  "http://localhost:9200",
		ElasticsearchIndex: "headlines",
	}, nil)
	require.NoError(t, err)
	require.IsType(t, &elasticsearch.Client{}, s)

	_, err = store.Open(ctx, config.Common{StoreBackend: "cassandra"}, nil)
	require.ErrorContains(t, err, "unknown store backend")
}

func TestConnectMemoryBackend(t *testing.T) {
	s, err := store.Connect(context.Background(), config.Common{StoreBackend: config.BackendMemory}, logger.Discard(), store.DefaultConnectOptions)
	require.NoError(t, err)
	require.IsType(t, &memstore.Store{}, s)
}

func TestConnectGivesUpAfterAttempts(t *testing.T) {
	opts := store.ConnectOptions{Attempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, PingTimeout: time.Second}

	_, err := store.Connect(context.Background(), config.Common{StoreBackend: "cassandra"}, logger.Discard(), opts)
	require.ErrorContains(t, err, "after 3 attempts")
	require.ErrorContains(t, err, "unknown store backend")
}

func TestConnectStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := store.ConnectOptions{Attempts: 5, InitialDelay: time.Hour, PingTimeout: time.Second}

	_, err := store.Connect(ctx, config.Common{StoreBackend: "cassandra"}, logger.Discard(), opts)
	require.ErrorIs(t, err, context.Canceled)
}
