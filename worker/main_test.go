package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/headline-radar/internal/dedupe"
	"github.com/DeafMist/headline-radar/internal/logger"
	"github.com/DeafMist/headline-radar/internal/memstore"
	"github.com/DeafMist/headline-radar/internal/models"
	"github.com/DeafMist/headline-radar/internal/processing"
)

type countingInserter struct {
	*memstore.Store
	calls int
	err   error
}

func (c *countingInserter) InsertHeadlines(ctx context.Context, docs ...models.HeadlineDocument) (int, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	return c.Store.InsertHeadlines(ctx, docs...)
}

func message(t *testing.T, payload rawHeadline) kafka.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return kafka.Message{Value: data}
}

func TestProcessMessageStoresHeadline(t *testing.T) {
	ins := &countingInserter{Store: memstore.New()}
	cache := dedupe.NewCache(100, time.Hour)
	msg := message(t, rawHeadline{HeadlineText: "  council   approves budget ", PublishDate: "20030219"})

	require.NoError(t, processMessage(context.Background(), logger.Discard(), ins, cache, msg))
	require.Equal(t, 1, ins.Len())

	published := time.Date(2003, 2, 19, 0, 0, 0, 0, time.UTC)
	id := processing.BuildHeadlineID("council approves budget", &published)
	doc, ok := ins.Get(id)
	require.True(t, ok)
	require.Equal(t, "council approves budget", doc.Text)
	require.True(t, doc.PublishDate.Equal(published))
	require.False(t, doc.Enriched())

	require.NoError(t, processMessage(context.Background(), logger.Discard(), ins, cache, msg))
	require.Equal(t, 1, ins.calls)
	require.Equal(t, 1, ins.Len())
}

func TestProcessMessageSkipsStoredHeadlineAfterCacheMiss(t *testing.T) {
	ins := &countingInserter{Store: memstore.New()}
	msg := message(t, rawHeadline{HeadlineText: "storm hits coast"})

	require.NoError(t, processMessage(context.Background(), logger.Discard(), ins, dedupe.NewCache(10, time.Hour), msg))
	require.NoError(t, processMessage(context.Background(), logger.Discard(), ins, dedupe.NewCache(10, time.Hour), msg))
	require.Equal(t, 2, ins.calls)
	require.Equal(t, 1, ins.Len())
}

func TestProcessMessageRejectsBadPayloads(t *testing.T) {
	ins := &countingInserter{Store: memstore.New()}
	cache := dedupe.NewCache(10, time.Hour)

	err := processMessage(context.Background(), logger.Discard(), ins, cache, kafka.Message{Value: []byte("{")})
	require.ErrorContains(t, err, "decode payload")

	err = processMessage(context.Background(), logger.Discard(), ins, cache, message(t, rawHeadline{HeadlineText: "   "}))
	require.ErrorContains(t, err, "empty headline_text")

	err = processMessage(context.Background(), logger.Discard(), ins, cache, message(t, rawHeadline{HeadlineText: "x", PublishDate: "someday"}))
	require.ErrorContains(t, err, "publish date")

	require.Zero(t, ins.calls)
}

func TestProcessMessageDoesNotCacheFailedInsert(t *testing.T) {
	ins := &countingInserter{Store: memstore.New(), err: errors.New("store down")}
	cache := dedupe.NewCache(10, time.Hour)
	msg := message(t, rawHeadline{HeadlineText: "markets rally"})

	require.Error(t, processMessage(context.Background(), logger.Discard(), ins, cache, msg))
	require.Equal(t, 0, cache.Len())
}

type flakyWriter struct {
	failures int
	msgs     []kafka.Message
}

func (f *flakyWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("leader not available")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestSendToDLQRetriesAndAddsHeaders(t *testing.T) {
	w := &flakyWriter{failures: 2}
	msg := kafka.Message{Partition: 3, Offset: 42, Value: []byte("payload")}

	ok := sendToDLQ(context.Background(), logger.Discard(), w, msg, errors.New("empty headline_text"), time.Millisecond)
	require.True(t, ok)
	require.Len(t, w.msgs, 1)

	headers := map[string]string{}
	for _, h := range w.msgs[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, "3", headers["original_partition"])
	require.Equal(t, "42", headers["original_offset"])
	require.Equal(t, "empty headline_text", headers["error"])
	require.NotEmpty(t, headers["timestamp"])
	require.Equal(t, "payload", string(w.msgs[0].Value))
}

func TestSendToDLQGivesUp(t *testing.T) {
	w := &flakyWriter{failures: dlqAttempts}

	ok := sendToDLQ(context.Background(), logger.Discard(), w, kafka.Message{}, errors.New("boom"), time.Millisecond)
	require.False(t, ok)
	require.Empty(t, w.msgs)
}
