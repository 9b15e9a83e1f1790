package postgres

import (
	"context"
	"fmt"

	"github.com/aquads/indexer/internal/core/domain"
)

// ClaimRepo implements storage.ClaimRepository using PostgreSQL.
type ClaimRepo struct {
	db *DB
}

// NewClaimRepo creates a new PostgreSQL claim repository.
func NewClaimRepo(db *DB) *ClaimRepo {
	return &ClaimRepo{db: db}
}

// Append stores a new ledger entry. The ledger is append-only: there are no
// update or delete operations.
func (r *ClaimRepo) Append(ctx context.Context, claim *domain.Claim) error {
	query := `INSERT INTO claims (id, slot_id, amount, ts) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query,
		claim.ID, claim.SlotID, claim.Amount, claim.TS)
	if err != nil {
		return fmt.Errorf("failed to append claim: %w", err)
	}
	return nil
}

// SumBySlot returns the total claimed amount for a slot.
func (r *ClaimRepo) SumBySlot(ctx context.Context, slotID string) (int64, error) {
	var total int64
	query := `SELECT COALESCE(SUM(amount), 0) FROM claims WHERE slot_id = $1`
	if err := r.db.GetContext(ctx, &total, query, slotID); err != nil {
		return 0, fmt.Errorf("failed to sum claims: %w", err)
	}
	return total, nil
}

// ListBySlot returns a slot's ledger entries, oldest first.
func (r *ClaimRepo) ListBySlot(
	ctx context.Context,
	slotID string,
) ([]*domain.Claim, error) {
	query := `SELECT id, slot_id, amount, ts FROM claims WHERE slot_id = $1 ORDER BY ts ASC, id ASC`

	var rows []struct {
		ID     string `db:"id"`
		SlotID string `db:"slot_id"`
		Amount int64  `db:"amount"`
		TS     int64  `db:"ts"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, slotID); err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}

	out := make([]*domain.Claim, 0, len(rows))
	for _, row := range rows {
		out = append(out, &domain.Claim{
			ID:     row.ID,
			SlotID: row.SlotID,
			Amount: row.Amount,
			TS:     row.TS,
		})
	}
	return out, nil
}
