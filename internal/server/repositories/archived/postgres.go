// Package archived provides the PostgreSQL-backed index of completed
// archival submissions.
package archived

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/streamvault/internal/dbx"
	"github.com/dmitrijs2005/streamvault/internal/server/models"
)

// PostgresRepository implements the archived-record index over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rec *models.ArchivedRecord) error {
	query := `
		INSERT INTO archived_records (item_id, stream_id, chunk_index, user_id, content_address, payload_size, transaction_id, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (item_id)
		DO UPDATE SET
			transaction_id = EXCLUDED.transaction_id,
			archived_at = EXCLUDED.archived_at;
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.ItemID, rec.StreamID, rec.ChunkIndex, rec.UserID, rec.ContentAddress, rec.PayloadSize, rec.TransactionID, rec.ArchivedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

func (r *PostgresRepository) ListByStream(ctx context.Context, streamID string) ([]*models.ArchivedRecord, error) {
	query := `
		SELECT item_id, stream_id, chunk_index, user_id, content_address, payload_size, transaction_id, archived_at
		FROM archived_records
		WHERE stream_id=$1
		ORDER BY chunk_index
	`
	rows, err := r.db.QueryContext(ctx, query, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to select archived records: %w", err)
	}
	defer rows.Close()

	var result []*models.ArchivedRecord
	for rows.Next() {
		var rec models.ArchivedRecord
		if err := rows.Scan(
			&rec.ItemID, &rec.StreamID, &rec.ChunkIndex, &rec.UserID,
			&rec.ContentAddress, &rec.PayloadSize, &rec.TransactionID, &rec.ArchivedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Stats(ctx context.Context) (*ArchiveStats, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(payload_size), 0) FROM archived_records`
	var s ArchiveStats
	row := r.db.QueryRowContext(ctx, query)
	if err := row.Scan(&s.ArchivedCount, &s.ArchivedSize); err != nil {
		return nil, fmt.Errorf("failed to select archive stats: %w", err)
	}
	return &s, nil
}
