package domain

import (
	"context"
	"time"
)

// Approval actions that trigger resource population. Creation by an admin
// skips moderation and counts as approved.
const (
	ActionApprove = "approve"
	ActionCreate  = "create"
)

// ApprovalEvent is the message the gateway publishes when a disaster enters
// the approved state.
type ApprovalEvent struct {
	DisasterID string    `json:"disaster_id"`
	Action     string    `json:"action"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

// TriggersPopulation reports whether the event should start a population run.
func (e ApprovalEvent) TriggersPopulation() bool {
	return e.Action == ActionApprove || e.Action == ActionCreate
}

// RawApproval is an unprocessed message from the approval topic, with enough
// position metadata for logging and an optional offset commit hook.
type RawApproval struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// EventResourcesUpdated names the notification published whenever a
// disaster's resource set changes.
const EventResourcesUpdated = "resources_updated"

// ResourceEvent is the notification fanned out to subscribed clients after
// persistence or a cache-refreshing lookup.
type ResourceEvent struct {
	Event      string    `json:"event"`
	DisasterID string    `json:"disaster_id"`
	Count      int       `json:"count"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// Notifier publishes resource events to subscribed listeners, at most once.
type Notifier interface {
	Notify(ctx context.Context, event ResourceEvent) error
}
