package kafka

import (
	"context"
	"log/slog"

	"github.com/reliefmap/disaster-resource-service/internal/config"
	"github.com/reliefmap/disaster-resource-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes approval messages from the gateway's topic as part of a
// consumer group. It implements pipeline.ApprovalSource.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a consumer-group reader for the approval topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaApprovalTopic,
		GroupID: cfg.KafkaGroupID,
	})
	return &Reader{reader: r, logger: logger}
}

// Fetch blocks until the next approval message is available. Offsets are
// committed through the returned Commit hook, not on fetch, so a crash
// mid-handling redelivers the message.
func (r *Reader) Fetch(ctx context.Context) (domain.RawApproval, error) {
	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return domain.RawApproval{}, err
	}
	raw := mapMessageToRawApproval(msg)
	raw.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return raw, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToRawApproval copies message payload and position metadata into
// the domain type. The Commit hook is attached by Fetch.
func mapMessageToRawApproval(msg kafkago.Message) domain.RawApproval {
	return domain.RawApproval{
		Key:       msg.Key,
		Value:     msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
