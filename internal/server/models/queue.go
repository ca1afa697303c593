// Package models defines server-side data models for the archival pipeline.
package models

import (
	"fmt"
	"time"
)

// QueueState is the lifecycle state of a queued archival job.
//
// Transitions: pending → in_flight → {archived | pending (retry) | failed}.
// archived and failed are terminal.
type QueueState string

const (
	QueueStatePending  QueueState = "pending"
	QueueStateInFlight QueueState = "in_flight"
	QueueStateArchived QueueState = "archived"
	QueueStateFailed   QueueState = "failed"
)

// QueueItemID builds the deterministic job key for one chunk of one stream.
// Re-enqueueing the same (stream, chunk) pair maps to the same key, which is
// what makes enqueue idempotent.
func QueueItemID(streamID string, chunkIndex int64) string {
	return fmt.Sprintf("%s_%d", streamID, chunkIndex)
}

// ChunkMetadata describes the chunk carried by a queue item. It is set at
// enqueue time and never mutated afterwards.
type ChunkMetadata struct {
	StreamID       string
	ChunkIndex     int64
	TimestampMs    int64
	UserID         string
	ContentAddress string
	PayloadSize    int64
}

// QueueItem is one unit of archival work, persisted in the backlog.
type QueueItem struct {
	ID       string
	Payload  []byte
	Metadata ChunkMetadata

	// Attempts counts submissions made so far; it only increases.
	Attempts int
	State    QueueState
	QueuedAt time.Time

	// NextAttemptAt delays retries; the drain loop skips items not yet due.
	NextAttemptAt time.Time

	// TransactionID is set exactly once, on the transition to archived.
	TransactionID string
}

// ArchivedRecord is the durable result of a successful submission, keyed by
// the queue item's ID and queryable by stream.
type ArchivedRecord struct {
	ItemID         string
	StreamID       string
	ChunkIndex     int64
	UserID         string
	ContentAddress string
	PayloadSize    int64
	TransactionID  string
	ArchivedAt     time.Time
}
