package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/headline-radar/internal/config"
	"github.com/DeafMist/headline-radar/internal/dedupe"
	"github.com/DeafMist/headline-radar/internal/logger"
	"github.com/DeafMist/headline-radar/internal/models"
	"github.com/DeafMist/headline-radar/internal/processing"
	"github.com/DeafMist/headline-radar/internal/store"
)

type rawHeadline struct {
	HeadlineText string `json:"headline_text"`
	PublishDate  string `json:"publish_date"`
}

type headlineInserter interface {
	InsertHeadlines(ctx context.Context, docs ...models.HeadlineDocument) (int, error)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

const dlqAttempts = 5

func main() {
	log := logger.New("worker")
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Error("load .env", slog.Any("err", err))
		os.Exit(1)
	}
	cfg, err := config.LoadWorker()
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

	cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqTopic := cfg.KafkaTopic + "_dlq"
	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
		slog.String("backend", cfg.StoreBackend),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, headlines, cache, msg); err != nil {
			if ctx.Err() != nil {
				log.Info("context canceled, stopping")
				return
			}
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			// Commit only once the message is parked; otherwise it is redelivered on restart.
			if !sendToDLQ(ctx, log, dlqWriter, msg, err, time.Second) {
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// processMessage turns one Kafka payload into a stored, unenriched headline.
// Redelivered headlines hash to the same id and are skipped.
func processMessage(ctx context.Context, log *slog.Logger, inserter headlineInserter, cache *dedupe.Cache, msg kafka.Message) error {
	var payload rawHeadline
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	text := processing.NormalizeHeadline(payload.HeadlineText)
	if text == "" {
		return errors.New("empty headline_text")
	}

	published, err := processing.ParsePublishDate(payload.PublishDate)
	if err != nil {
		return err
	}

	doc := models.HeadlineDocument{
		ID:          processing.BuildHeadlineID(text, published),
		Text:        text,
		PublishDate: published,
	}

	if cache.IsSeen(doc.ID) {
		log.Debug("duplicate headline", slog.String("id", doc.ID))
		return nil
	}

	inserted, err := inserter.InsertHeadlines(ctx, doc)
	if err != nil {
		return fmt.Errorf("insert headline: %w", err)
	}

	cache.MarkSeen(doc.ID)
	if inserted == 0 {
		log.Debug("headline already stored", slog.String("id", doc.ID))
		return nil
	}
	log.Info("stored headline", slog.String("id", doc.ID), slog.String("text", doc.Text))
	return nil
}

// sendToDLQ parks msg with its failure context, retrying with exponential
// backoff starting at baseDelay. It reports whether the write succeeded.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error, baseDelay time.Duration) bool {
	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	)
	dlqMsg := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}

	for attempt := 0; attempt < dlqAttempts; attempt++ {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}
		if attempt == dlqAttempts-1 {
			break
		}

		backoff := baseDelay << uint(attempt)
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}
	return false
}
