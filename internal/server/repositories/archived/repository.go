package archived

import (
	"context"

	"github.com/dmitrijs2005/streamvault/internal/server/models"
)

// ArchiveStats summarizes completed archival work.
type ArchiveStats struct {
	ArchivedCount int64
	ArchivedSize  int64
}

// Repository is the persistence contract for the completed-items index.
type Repository interface {
	// Create records a successful submission. Keyed by the queue item ID;
	// writing the same key twice is an upsert, so a crash between the
	// network success and the state update cannot produce duplicates.
	Create(ctx context.Context, rec *models.ArchivedRecord) error

	// ListByStream returns a stream's archived chunks ordered by chunk
	// index, regardless of the order they were archived in.
	ListByStream(ctx context.Context, streamID string) ([]*models.ArchivedRecord, error)

	Stats(ctx context.Context) (*ArchiveStats, error)
}
