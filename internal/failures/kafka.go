// Package failures publishes headlines the enrichment pipeline could not
// process to a Kafka topic, so they can be inspected or replayed later.
package failures

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/headline-radar/internal/enrichment"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Record is the JSON body of a failure message.
type Record struct {
	RunID      string    `json:"run_id"`
	DocumentID string    `json:"id"`
	Text       string    `json:"headline_text"`
	Kind       string    `json:"kind"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failed_at"`
}

// KafkaSink implements enrichment.FailureSink on top of a Kafka writer.
type KafkaSink struct {
	writer messageWriter
	now    func() time.Time
}

var _ enrichment.FailureSink = (*KafkaSink)(nil)

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return NewKafkaSinkWithWriter(kafka.NewWriter(kafka.WriterConfig{
		Brokers:     brokers,
		Topic:       topic,
		MaxAttempts: 3,
	}))
}

// NewKafkaSinkWithWriter wraps an existing writer.
func NewKafkaSinkWithWriter(w messageWriter) *KafkaSink {
	return &KafkaSink{writer: w, now: func() time.Time { return time.Now().UTC() }}
}

// ReportFailure publishes f keyed by document id.
func (s *KafkaSink) ReportFailure(ctx context.Context, f enrichment.Failure) error {
	errText := ""
	if f.Err != nil {
		errText = f.Err.Error()
	}
	failedAt := s.now()

	body, err := json.Marshal(Record{
		RunID:      f.RunID,
		DocumentID: f.DocumentID,
		Text:       f.Text,
		Kind:       f.Kind,
		Error:      errText,
		FailedAt:   failedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal failure record: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(f.DocumentID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "run_id", Value: []byte(f.RunID)},
			{Key: "kind", Value: []byte(f.Kind)},
			{Key: "error", Value: []byte(errText)},
			{Key: "timestamp", Value: []byte(failedAt.Format(time.RFC3339))},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish failure for %s: %w", f.DocumentID, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
