// Package kafka publishes sync-result summaries to the results topic for
// downstream dashboards and alerting.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/the-data-sherpa/vanguard-sub000/internal/syncer"
)

// Writer produces sync events to a Kafka topic. It implements
// syncer.EventPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the results topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishSyncEvent serializes and publishes one sync summary. The message
// key is the tenant id so per-tenant ordering holds within a partition.
func (w *Writer) PublishSyncEvent(ctx context.Context, ev syncer.SyncEvent) error {
	msg, err := serializeToMessage(ev)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(ev syncer.SyncEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize sync event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ev.TenantID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
			{Key: "synced_at", Value: []byte(ev.At.Format(time.RFC3339))},
		},
	}, nil
}
