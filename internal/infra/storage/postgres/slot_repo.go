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

// SlotRepo implements storage.SlotRepository using PostgreSQL.
type SlotRepo struct {
	db *DB
}

// NewSlotRepo creates a new PostgreSQL slot repository.
func NewSlotRepo(db *DB) *SlotRepo {
	return &SlotRepo{db: db}
}

type slotRow struct {
	ID              string         `db:"id"`
	Publisher       string         `db:"publisher"`
	Width           int            `db:"width"`
	Height          int            `db:"height"`
	DomainHash      string         `db:"domain_hash"`
	ReservePrice    int64          `db:"reserve_price"`
	CurrentRenter   sql.NullString `db:"current_renter"`
	RentalExpiry    int64          `db:"rental_expiry"`
	LastPrice       int64          `db:"last_price"`
	LatestMetaCID   sql.NullString `db:"latest_meta_cid"`
	CreatedAt       int64          `db:"created_at"`
	RenterEventTS   int64          `db:"renter_event_ts"`
	CreativeEventTS int64          `db:"creative_event_ts"`
}

func (r slotRow) toDomain() *domain.Slot {
	s := &domain.Slot{
		ID:              r.ID,
		Publisher:       r.Publisher,
		Width:           r.Width,
		Height:          r.Height,
		DomainHash:      r.DomainHash,
		ReservePrice:    r.ReservePrice,
		RentalExpiry:    r.RentalExpiry,
		LastPrice:       r.LastPrice,
		CreatedAt:       r.CreatedAt,
		RenterEventTS:   r.RenterEventTS,
		CreativeEventTS: r.CreativeEventTS,
	}
	if r.CurrentRenter.Valid {
		v := r.CurrentRenter.String
		s.CurrentRenter = &v
	}
	if r.LatestMetaCID.Valid {
		v := r.LatestMetaCID.String
		s.LatestMetaCID = &v
	}
	return s
}

const slotColumns = `id, publisher, width, height, domain_hash, reserve_price,
	current_renter, rental_expiry, last_price, latest_meta_cid, created_at,
	renter_event_ts, creative_event_ts`

// Upsert merges a sparse patch into the projection row. The row is locked for
// the duration of the merge so concurrent upserts (poller plus the optimistic
// register flow) serialize per slot; the merge itself is domain.ApplyPatch, the
// same code path the memory store uses.
func (r *SlotRepo) Upsert(ctx context.Context, patch domain.SlotPatch) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row slotRow
	var cur *domain.Slot
	err = tx.GetContext(ctx, &row,
		`SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, patch.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		cur = nil
	case err != nil:
		return fmt.Errorf("failed to load slot for upsert: %w", err)
	default:
		cur = row.toDomain()
	}

	merged := domain.ApplyPatch(cur, patch, time.Now().Unix())

	query := `
		INSERT INTO slots (` + slotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			publisher         = EXCLUDED.publisher,
			width             = EXCLUDED.width,
			height            = EXCLUDED.height,
			domain_hash       = EXCLUDED.domain_hash,
			reserve_price     = EXCLUDED.reserve_price,
			current_renter    = EXCLUDED.current_renter,
			rental_expiry     = EXCLUDED.rental_expiry,
			last_price        = EXCLUDED.last_price,
			latest_meta_cid   = EXCLUDED.latest_meta_cid,
			created_at        = EXCLUDED.created_at,
			renter_event_ts   = EXCLUDED.renter_event_ts,
			creative_event_ts = EXCLUDED.creative_event_ts
	`
	_, err = tx.ExecContext(ctx, query,
		merged.ID, merged.Publisher, merged.Width, merged.Height,
		merged.DomainHash, merged.ReservePrice,
		nullString(merged.CurrentRenter), merged.RentalExpiry, merged.LastPrice,
		nullString(merged.LatestMetaCID), merged.CreatedAt,
		merged.RenterEventTS, merged.CreativeEventTS,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert slot: %w", err)
	}
	return tx.Commit()
}

// Get retrieves a slot projection by id.
func (r *SlotRepo) Get(ctx context.Context, id string) (*domain.Slot, error) {
	var row slotRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return row.toDomain(), nil
}

// List returns filtered, sorted projections.
func (r *SlotRepo) List(
	ctx context.Context,
	filter domain.SlotFilter,
) ([]*domain.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE 1=1`
	var args []any

	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(clause, len(args))
	}
	if filter.DomainHash != "" {
		add(" AND domain_hash = $%d", filter.DomainHash)
	}
	if filter.Width > 0 {
		add(" AND width = $%d", filter.Width)
	}
	if filter.Height > 0 {
		add(" AND height = $%d", filter.Height)
	}
	if filter.Publisher != "" {
		add(" AND publisher = $%d", filter.Publisher)
	}
	if filter.Renter != "" {
		add(" AND current_renter = $%d", filter.Renter)
	}

	switch filter.Sort {
	case domain.SortPriceAsc:
		query += " ORDER BY last_price ASC"
	case domain.SortNewest:
		query += " ORDER BY created_at DESC"
	case domain.SortOldest:
		query += " ORDER BY created_at ASC"
	default:
		query += " ORDER BY last_price DESC"
	}
	if filter.Limit > 0 {
		add(" LIMIT $%d", filter.Limit)
	}

	var rows []slotRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	out := make([]*domain.Slot, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
