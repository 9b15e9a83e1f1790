package storage

import (
	"context"
	"errors"

	"github.com/aquads/indexer/internal/core/domain"
)

var (
	// ErrNotFound is returned when a requested record doesn't exist.
	ErrNotFound = errors.New("not found")
)

// EventRepository handles the append-only, de-duplicated event log.
type EventRepository interface {
	// Append persists an event. Duplicate IDs are a silent no-op.
	Append(ctx context.Context, ev *domain.Event) error

	// ListByKinds returns events filtered by slot (optional, "" = all) and
	// kind set, ordered by timestamp. limit 0 = unlimited.
	ListByKinds(
		ctx context.Context,
		slotID string,
		kinds []domain.EventKind,
		ascending bool,
		limit int,
	) ([]*domain.Event, error)

	// ListBySlots returns events for a set of slots filtered by kind,
	// newest first. Used by the wallet overview join.
	ListBySlots(
		ctx context.Context,
		slotIDs []string,
		kinds []domain.EventKind,
	) ([]*domain.Event, error)

	// Count returns the total number of stored events.
	Count(ctx context.Context) (int64, error)
}

// SlotRepository handles the slot projection table.
type SlotRepository interface {
	// Upsert applies a sparse patch (see domain.ApplyPatch). Must be safe
	// for concurrent callers; the merge is serialized per row.
	Upsert(ctx context.Context, patch domain.SlotPatch) error

	// Get retrieves a slot projection. ErrNotFound when absent.
	Get(ctx context.Context, id string) (*domain.Slot, error)

	// List returns filtered, sorted projections.
	List(ctx context.Context, filter domain.SlotFilter) ([]*domain.Slot, error)
}

// ClaimRepository handles the append-only claims ledger.
type ClaimRepository interface {
	// Append stores a new ledger entry.
	Append(ctx context.Context, claim *domain.Claim) error

	// SumBySlot returns the total claimed amount for a slot.
	SumBySlot(ctx context.Context, slotID string) (int64, error)

	// ListBySlot returns a slot's ledger entries, oldest first.
	ListBySlot(ctx context.Context, slotID string) ([]*domain.Claim, error)
}

// CursorRepository persists the poller position per event stream.
type CursorRepository interface {
	// Get retrieves the cursor for a stream. ErrNotFound when absent.
	Get(ctx context.Context, streamID string) (*domain.Cursor, error)

	// Save upserts the cursor.
	Save(ctx context.Context, cursor *domain.Cursor) error

	// Delete removes the cursor (operator reset).
	Delete(ctx context.Context, streamID string) error
}

// PageRepository maps slot ids to the page URLs they are embedded on.
type PageRepository interface {
	// Set stores the page URL for a slot. Empty url deletes the mapping.
	Set(ctx context.Context, slotID, url string) error

	// Get returns the page URL for a slot, "" when unset.
	Get(ctx context.Context, slotID string) (string, error)

	// GetMany returns the mappings present for the given slot ids.
	GetMany(ctx context.Context, slotIDs []string) (map[string]string, error)

	// All returns every mapping (used by the website listing filter).
	All(ctx context.Context) (map[string]string, error)
}
