package queueitems

import (
	"context"
	"time"

	"github.com/dmitrijs2005/streamvault/internal/server/models"
)

// BacklogStats summarizes the non-terminal part of the queue.
type BacklogStats struct {
	PendingCount int64
	PendingSize  int64
	FailedCount  int64
}

// Repository is the persistence contract for the archival backlog. All
// state transitions of a queue item go through these methods; nothing else
// writes to the queue_items table.
type Repository interface {
	// Enqueue inserts a new pending item, or resets an existing failed one.
	// Returns false without error when a non-failed item with the same ID
	// already exists (idempotent re-submission).
	Enqueue(ctx context.Context, item *models.QueueItem) (bool, error)

	// NextPending returns the oldest pending item whose retry delay has
	// elapsed, or common.ErrNotFound when the backlog is drained.
	NextPending(ctx context.Context, now time.Time) (*models.QueueItem, error)

	MarkInFlight(ctx context.Context, id string) error
	MarkArchived(ctx context.Context, id string, transactionID string, attempts int) error
	ScheduleRetry(ctx context.Context, id string, attempts int, nextAttemptAt time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int) error

	// ResetInFlight returns in-flight items to pending. Called once on
	// startup to recover work interrupted by a crash.
	ResetInFlight(ctx context.Context) (int64, error)

	Stats(ctx context.Context) (*BacklogStats, error)
}
