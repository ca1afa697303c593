// Package queueitems provides the PostgreSQL-backed repository for the
// durable archival backlog.
package queueitems

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/streamvault/internal/common"
	"github.com/dmitrijs2005/streamvault/internal/dbx"
	"github.com/dmitrijs2005/streamvault/internal/server/models"
)

// PostgresRepository implements backlog storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Enqueue inserts the item in pending state. The ON CONFLICT clause makes
// the call a single atomic statement: an existing non-failed row is left
// untouched (0 rows affected), a failed row is reset for another round of
// attempts. Concurrent enqueues of the same ID therefore cannot both insert.
func (r *PostgresRepository) Enqueue(ctx context.Context, item *models.QueueItem) (bool, error) {
	query := `
		INSERT INTO queue_items
			(id, stream_id, chunk_index, user_id, content_address, payload, payload_size, timestamp_ms, state, queued_at, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9, $9)
		ON CONFLICT (id)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			attempts = 0,
			state = 'pending',
			queued_at = EXCLUDED.queued_at,
			next_attempt_at = EXCLUDED.next_attempt_at,
			transaction_id = ''
			WHERE queue_items.state = 'failed';
	`
	m := item.Metadata
	res, err := r.db.ExecContext(ctx, query,
		item.ID, m.StreamID, m.ChunkIndex, m.UserID, m.ContentAddress, item.Payload, m.PayloadSize, m.TimestampMs, item.QueuedAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// NextPending pops nothing; it only reads. The caller marks the item
// in-flight before attempting submission.
func (r *PostgresRepository) NextPending(ctx context.Context, now time.Time) (*models.QueueItem, error) {
	query := `
		SELECT id, stream_id, chunk_index, user_id, content_address, payload, payload_size, timestamp_ms, attempts, state, queued_at, next_attempt_at, transaction_id
		FROM queue_items
		WHERE state='pending' AND next_attempt_at<=$1
		ORDER BY queued_at
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, query, now)

	var item models.QueueItem
	err := row.Scan(
		&item.ID, &item.Metadata.StreamID, &item.Metadata.ChunkIndex, &item.Metadata.UserID,
		&item.Metadata.ContentAddress, &item.Payload, &item.Metadata.PayloadSize, &item.Metadata.TimestampMs,
		&item.Attempts, &item.State, &item.QueuedAt, &item.NextAttemptAt, &item.TransactionID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select queue item: %w", err)
	}
	return &item, nil
}

func (r *PostgresRepository) MarkInFlight(ctx context.Context, id string) error {
	query := `UPDATE queue_items SET state='in_flight' WHERE id=$1 AND state='pending'`
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) MarkArchived(ctx context.Context, id string, transactionID string, attempts int) error {
	query := `UPDATE queue_items SET state='archived', transaction_id=$2, attempts=$3 WHERE id=$1 AND state='in_flight'`
	return r.execOne(ctx, query, id, transactionID, attempts)
}

func (r *PostgresRepository) ScheduleRetry(ctx context.Context, id string, attempts int, nextAttemptAt time.Time) error {
	query := `UPDATE queue_items SET state='pending', attempts=$2, next_attempt_at=$3 WHERE id=$1 AND state='in_flight'`
	return r.execOne(ctx, query, id, attempts, nextAttemptAt)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id string, attempts int) error {
	query := `UPDATE queue_items SET state='failed', attempts=$2 WHERE id=$1 AND state='in_flight'`
	return r.execOne(ctx, query, id, attempts)
}

// ResetInFlight is crash recovery: items left in_flight by a previous
// process are returned to pending so the drain loop picks them up again.
func (r *PostgresRepository) ResetInFlight(ctx context.Context) (int64, error) {
	query := `UPDATE queue_items SET state='pending' WHERE state='in_flight'`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Stats(ctx context.Context) (*BacklogStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE state IN ('pending','in_flight')),
			COALESCE(SUM(payload_size) FILTER (WHERE state IN ('pending','in_flight')), 0),
			COUNT(*) FILTER (WHERE state='failed')
		FROM queue_items
	`
	var s BacklogStats
	row := r.db.QueryRowContext(ctx, query)
	if err := row.Scan(&s.PendingCount, &s.PendingSize, &s.FailedCount); err != nil {
		return nil, fmt.Errorf("failed to select backlog stats: %w", err)
	}
	return &s, nil
}

// execOne runs a state-transition update and verifies exactly one row moved.
// A zero count means the item was not in the expected source state, which
// indicates a bug in the drain loop rather than ordinary contention.
func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
