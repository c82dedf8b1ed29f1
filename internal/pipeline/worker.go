package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/reliefmap/disaster-resource-service/internal/domain"
)

// ApprovalSource delivers raw approval messages, blocking until one arrives
// or the context ends.
type ApprovalSource interface {
	Fetch(ctx context.Context) (domain.RawApproval, error)
}

// Worker consumes disaster approvals and runs population for each. A failed
// run is logged and its offset committed anyway; approval handling never
// blocks on a broken upstream or store.
type Worker struct {
	source   ApprovalSource
	pipeline *Pipeline
	ready    atomic.Bool
}

// NewWorker creates a Worker draining the given source into the pipeline.
func NewWorker(source ApprovalSource, pipeline *Pipeline) *Worker {
	return &Worker{source: source, pipeline: pipeline}
}

// CheckReadiness returns nil once the worker has handled at least one
// message, or an error describing why the service is not yet ready.
func (w *Worker) CheckReadiness(_ context.Context) error {
	if !w.ready.Load() {
		return errors.New("worker has not processed any approvals yet")
	}
	return nil
}

// Run consumes approvals until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.pipeline.logger.Info("approval worker started")
	w.pipeline.metrics.WorkerRunning.Set(1)
	defer w.pipeline.metrics.WorkerRunning.Set(0)

	// Exponential backoff on broker errors: start at 200ms, double each
	// retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			w.pipeline.logger.Info("approval worker stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !w.processNext(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processNext fetches and handles one approval. Returns false if the worker
// should stop.
func (w *Worker) processNext(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	raw, err := w.source.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		w.pipeline.logger.Error("fetch approval failed", "error", err)
		return w.backoffOrStop(ctx, backoff, maxBackoff)
	}
	*backoff = 200 * time.Millisecond

	w.handle(ctx, raw)
	w.commitOffset(ctx, raw)
	w.ready.Store(true)
	return true
}

// handle decodes one approval and runs population when the action calls for
// it. All failures end here; the message is consumed either way.
func (w *Worker) handle(ctx context.Context, raw domain.RawApproval) {
	var event domain.ApprovalEvent
	if err := json.Unmarshal(raw.Value, &event); err != nil {
		w.pipeline.logger.Warn("malformed approval, skipping",
			"error", err,
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
		return
	}

	if event.DisasterID == "" || !event.TriggersPopulation() {
		w.pipeline.logger.Debug("approval skipped",
			"disaster_id", event.DisasterID,
			"action", event.Action,
		)
		return
	}

	result, err := w.pipeline.AutoPopulate(ctx, event.DisasterID)
	if err != nil {
		w.pipeline.logger.Error("population failed",
			"error", err,
			"disaster_id", event.DisasterID,
			"action", event.Action,
		)
		return
	}
	if result.Message != "" {
		return
	}
	w.pipeline.logger.Info("approval handled",
		"disaster_id", event.DisasterID,
		"inserted", result.Inserted,
	)
}

// backoffOrStop waits out the current backoff on the pipeline's clock and
// advances it. Returns false if the worker should stop.
func (w *Worker) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	timer := w.pipeline.clock.NewTimer(*backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit hook is attached.
func (w *Worker) commitOffset(ctx context.Context, raw domain.RawApproval) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		w.pipeline.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
