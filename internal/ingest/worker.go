package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nadavhl/secondbrain/internal/storage"
)

// Queue abstracts the pending-item queue operations.
type Queue interface {
	ClaimNextPending() (*storage.PendingItem, error)
	FailPending(id, errMsg string) error
	DeletePending(id string) error
}

// Processor runs the pipeline for one claimed item.
type Processor interface {
	Process(ctx context.Context, p storage.PendingItem) error
}

// Worker drains the pending queue in the background. Successful items
// are deleted; failed ones are retained with their error for manual
// inspection, no automatic retry.
type Worker struct {
	queue  Queue
	proc   Processor
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to
// 500ms.
func NewWorker(queue Queue, proc Processor, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: queue, proc: proc, poll: pollInterval, logger: logger}
}

// Run polls for pending items until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single pending item. Returns true if
// an item was claimed, regardless of the processing outcome.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	p, err := w.queue.ClaimNextPending()
	if err != nil {
		return false, fmt.Errorf("claiming pending item: %w", err)
	}
	if p == nil {
		return false, nil
	}

	if err := w.proc.Process(ctx, *p); err != nil {
		w.logger.Warn("pending item failed", "pending_id", p.ID, "error", err)
		if failErr := w.queue.FailPending(p.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark pending item as failed", "pending_id", p.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.queue.DeletePending(p.ID); err != nil {
		return true, fmt.Errorf("deleting finished item %s: %w", p.ID, err)
	}
	return true, nil
}
