package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/reliefmap/disaster-resource-service/internal/config"
	"github.com/reliefmap/disaster-resource-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes resource events to the event topic.
// It implements domain.Notifier.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured event topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaEventTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Notify serializes and publishes a single resource event. The disaster id is
// the message key so all events for one disaster stay ordered on one
// partition.
func (w *Writer) Notify(ctx context.Context, event domain.ResourceEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ResourceEvent into a Kafka message.
func serializeToMessage(event domain.ResourceEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize resource event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.DisasterID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event", Value: []byte(event.Event)},
			{Key: "emitted_at", Value: []byte(event.EmittedAt.Format(time.RFC3339))},
		},
	}, nil
}
