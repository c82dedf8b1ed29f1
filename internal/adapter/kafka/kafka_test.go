package kafka

import (
	"testing"
	"time"

	"github.com/reliefmap/disaster-resource-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapMessageToRawApproval(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("d-42"),
		Value:     []byte(`{"disaster_id":"d-42","action":"approve"}`),
		Topic:     "disaster-approvals",
		Partition: 3,
		Offset:    17,
		Time:      now,
	}

	raw := mapMessageToRawApproval(msg)

	assert.Equal(t, []byte("d-42"), raw.Key)
	assert.JSONEq(t, `{"disaster_id":"d-42","action":"approve"}`, string(raw.Value))
	assert.Equal(t, "disaster-approvals", raw.Topic)
	assert.Equal(t, 3, raw.Partition)
	assert.Equal(t, int64(17), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Nil(t, raw.Commit)
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2025, 6, 12, 9, 30, 0, 0, time.UTC)
	event := domain.ResourceEvent{
		Event:      domain.EventResourcesUpdated,
		DisasterID: "d-42",
		Count:      7,
		EmittedAt:  now,
	}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("d-42"), msg.Key)
	assert.Contains(t, string(msg.Value), `"event":"resources_updated"`)
	assert.Contains(t, string(msg.Value), `"count":7`)
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "event", msg.Headers[0].Key)
	assert.Equal(t, []byte("resources_updated"), msg.Headers[0].Value)
	assert.Equal(t, "emitted_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}
