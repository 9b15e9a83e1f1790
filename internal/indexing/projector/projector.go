// Package projector applies chain events to the slot projection.
//
// Each event kind writes a fixed, sparse set of fields; fields an event does
// not know about are left untouched. Application is idempotent under replay
// (every event always carries the same values), and ordering is enforced by
// the store's per-group event-timestamp guards rather than assumed.
package projector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aquads/indexer/internal/core/domain"
	"github.com/aquads/indexer/internal/indexing/metrics"
	"github.com/aquads/indexer/internal/infra/storage"
)

// Projector translates events into slot projection patches.
type Projector struct {
	slots storage.SlotRepository
	log   *slog.Logger
}

// New creates a projector writing to the given slot store.
func New(slots storage.SlotRepository, log *slog.Logger) *Projector {
	if log == nil {
		log = slog.Default()
	}
	return &Projector{slots: slots, log: log}
}

// Apply dispatches one event to the projection. Unknown kinds are counted and
// skipped; they stay in the event log for audit. Malformed payload fields have
// already been coerced to zero values by the extraction helpers, so a bad
// event never fails the batch.
func (p *Projector) Apply(ctx context.Context, ev *domain.Event) error {
	patch, ok := patchFor(ev)
	if !ok {
		metrics.UnknownEvents.Inc()
		p.log.Debug("Skipping unrecognized event type",
			"id", ev.ID, "type", ev.RawType)
		return nil
	}

	if err := p.slots.Upsert(ctx, patch); err != nil {
		return fmt.Errorf("failed to project event %s: %w", ev.ID, err)
	}
	metrics.EventsIndexed.WithLabelValues(string(ev.Kind)).Inc()
	return nil
}

// patchFor builds the sparse field update for an event. The field mapping per
// kind is fixed:
//
//	SlotCreated     -> publisher, width, height, domain_hash, created_at
//	Rented          -> current_renter, rental_expiry, last_price
//	Outbid          -> current_renter (new bidder), last_price
//	BuyoutLocked    -> current_renter, rental_expiry (lock_until), last_price (amount)
//	CreativeUpdated -> latest_meta_cid
func patchFor(ev *domain.Event) (domain.SlotPatch, bool) {
	patch := domain.SlotPatch{ID: ev.SlotID, EventTS: ev.TS}
	data := ev.Data

	switch ev.Kind {
	case domain.EventKindSlotCreated:
		publisher := domain.StringField(data, "publisher")
		width := int(domain.Int64Field(data, "width"))
		height := int(domain.Int64Field(data, "height"))
		domainHash := domain.StringField(data, "domain_hash")
		patch.Publisher = &publisher
		patch.Width = &width
		patch.Height = &height
		patch.DomainHash = &domainHash
		patch.CreatedAt = &ev.TS

	case domain.EventKindRented:
		renter := domain.StringField(data, "renter")
		expiry := domain.Int64Field(data, "expiry")
		price := domain.Int64Field(data, "price")
		patch.CurrentRenter = &renter
		patch.RentalExpiry = &expiry
		patch.LastPrice = &price

	case domain.EventKindOutbid:
		renter := domain.StringField(data, "new_renter")
		price := domain.Int64Field(data, "price")
		patch.CurrentRenter = &renter
		patch.LastPrice = &price

	case domain.EventKindBuyoutLocked:
		renter := domain.StringField(data, "renter")
		lockUntil := domain.Int64Field(data, "lock_until")
		amount := domain.Int64Field(data, "amount")
		patch.CurrentRenter = &renter
		patch.RentalExpiry = &lockUntil
		patch.LastPrice = &amount

	case domain.EventKindCreativeUpdated:
		metaCID := domain.BytesField(data, "meta_cid")
		patch.LatestMetaCID = &metaCID

	default:
		return domain.SlotPatch{}, false
	}

	return patch, true
}
