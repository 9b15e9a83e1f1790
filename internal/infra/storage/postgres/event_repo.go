package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/aquads/indexer/internal/core/domain"
)

// EventRepo implements storage.EventRepository using PostgreSQL.
type EventRepo struct {
	db *DB
}

// NewEventRepo creates a new PostgreSQL event repository.
func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

type eventRow struct {
	ID      string `db:"id"`
	SlotID  string `db:"slot_id"`
	Kind    string `db:"kind"`
	RawType string `db:"raw_type"`
	Data    []byte `db:"data"`
	TS      int64  `db:"ts"`
}

func (r eventRow) toDomain() (*domain.Event, error) {
	ev := &domain.Event{
		ID:      r.ID,
		SlotID:  r.SlotID,
		Kind:    domain.EventKind(r.Kind),
		RawType: r.RawType,
		TS:      r.TS,
	}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &ev.Data); err != nil {
			return nil, fmt.Errorf("failed to decode event data: %w", err)
		}
	}
	return ev, nil
}

// Append persists an event. Duplicate ids are silently ignored.
func (r *EventRepo) Append(ctx context.Context, ev *domain.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}

	query := `
		INSERT INTO events (id, slot_id, kind, raw_type, data, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query,
		ev.ID, ev.SlotID, string(ev.Kind), ev.RawType, data, ev.TS,
	); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListByKinds returns events ordered by timestamp (id as tiebreak).
func (r *EventRepo) ListByKinds(
	ctx context.Context,
	slotID string,
	kinds []domain.EventKind,
	ascending bool,
	limit int,
) ([]*domain.Event, error) {
	order := "DESC"
	if ascending {
		order = "ASC"
	}
	query := fmt.Sprintf(`
		SELECT id, slot_id, kind, raw_type, data, ts
		FROM events
		WHERE ($1 = '' OR slot_id = $1)
		  AND (cardinality($2::text[]) = 0 OR kind = ANY($2))
		ORDER BY ts %s, id %s
	`, order, order)
	args := []any{slotID, pq.Array(kindStrings(kinds))}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return rowsToDomain(rows)
}

// ListBySlots returns events for a set of slots, newest first.
func (r *EventRepo) ListBySlots(
	ctx context.Context,
	slotIDs []string,
	kinds []domain.EventKind,
) ([]*domain.Event, error) {
	if len(slotIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, slot_id, kind, raw_type, data, ts
		FROM events
		WHERE slot_id = ANY($1)
		  AND (cardinality($2::text[]) = 0 OR kind = ANY($2))
		ORDER BY ts DESC, id DESC
	`
	var rows []eventRow
	err := r.db.SelectContext(ctx, &rows, query,
		pq.Array(slotIDs), pq.Array(kindStrings(kinds)))
	if err != nil {
		return nil, fmt.Errorf("failed to list events by slots: %w", err)
	}
	return rowsToDomain(rows)
}

// Count returns the total number of stored events.
func (r *EventRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM events`); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func kindStrings(kinds []domain.EventKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func rowsToDomain(rows []eventRow) ([]*domain.Event, error) {
	var out []*domain.Event
	for _, row := range rows {
		ev, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
