package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aquads/indexer/internal/core/domain"
	"github.com/aquads/indexer/internal/infra/storage"
)

// CursorRepo implements storage.CursorRepository using PostgreSQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

// Get retrieves the cursor for an event stream.
func (r *CursorRepo) Get(ctx context.Context, streamID string) (*domain.Cursor, error) {
	var row struct {
		StreamID  string `db:"stream_id"`
		TxDigest  string `db:"tx_digest"`
		EventSeq  string `db:"event_seq"`
		UpdatedAt int64  `db:"updated_at"`
	}
	query := `SELECT stream_id, tx_digest, event_seq, updated_at FROM cursors WHERE stream_id = $1`
	err := r.db.GetContext(ctx, &row, query, streamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	return &domain.Cursor{
		StreamID:  row.StreamID,
		TxDigest:  row.TxDigest,
		EventSeq:  row.EventSeq,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// Save upserts the cursor for an event stream.
func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	query := `
		INSERT INTO cursors (stream_id, tx_digest, event_seq, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (stream_id) DO UPDATE SET
			tx_digest  = EXCLUDED.tx_digest,
			event_seq  = EXCLUDED.event_seq,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		cursor.StreamID, cursor.TxDigest, cursor.EventSeq, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// Delete removes the cursor (operator reset; the poller will replay from the
// start of the stream, which is safe because event application is idempotent).
func (r *CursorRepo) Delete(ctx context.Context, streamID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cursors WHERE stream_id = $1`, streamID)
	if err != nil {
		return fmt.Errorf("failed to delete cursor: %w", err)
	}
	return nil
}
