// Package overview assembles the per-wallet dashboard view: the slots a
// wallet rents, the slots it publishes, and the revenue state of each.
package overview

import (
	"context"
	"time"

	"github.com/aquads/indexer/internal/core/domain"
	"github.com/aquads/indexer/internal/infra/storage"
)

// ViewStatsSource aggregates engagement stats for a set of slots.
type ViewStatsSource interface {
	Stats(ctx context.Context, slotIDs []string) (map[string]domain.ViewStats, error)
}

// PurchasedSlot is a slot the wallet currently rents, with its page URL and
// the wallet's most recent rental event on it.
type PurchasedSlot struct {
	Slot       *domain.Slot
	PageURL    string
	LastRental *domain.Event
	Views      domain.ViewStats
}

// CreatedSlot is a slot the wallet published, with its revenue breakdown and
// engagement stats.
type CreatedSlot struct {
	Slot             *domain.Slot
	PageURL          string
	LatestRental     *domain.Event
	TotalRevenue     int64
	PendingRevenue   int64
	DepositedRevenue int64
	Views            domain.ViewStats
}

// Overview is the full dual-role wallet summary.
type Overview struct {
	Address          string
	Purchased        []PurchasedSlot
	Created          []CreatedSlot
	TotalRevenue     int64
	PendingRevenue   int64
	DepositedRevenue int64
}

// Aggregator joins slot projections, the event log, page annotations and view
// stats into wallet overviews.
type Aggregator struct {
	slots  storage.SlotRepository
	events storage.EventRepository
	pages  storage.PageRepository
	views  ViewStatsSource
	now    func() time.Time
}

// New creates an overview aggregator. views may be nil when no view log is
// configured.
func New(
	slots storage.SlotRepository,
	events storage.EventRepository,
	pages storage.PageRepository,
	views ViewStatsSource,
) *Aggregator {
	return &Aggregator{
		slots:  slots,
		events: events,
		pages:  pages,
		views:  views,
		now:    time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (a *Aggregator) SetNow(now func() time.Time) {
	a.now = now
}

// Overview builds the dual-role summary for a wallet address. A wallet with
// no activity gets an empty overview, not an error.
func (a *Aggregator) Overview(ctx context.Context, address string) (*Overview, error) {
	addr := domain.NormalizeAddress(address)
	now := a.now().Unix()

	purchased, err := a.slots.List(ctx, domain.SlotFilter{
		Renter: addr,
		Sort:   domain.SortPriceDesc,
	})
	if err != nil {
		return nil, err
	}
	created, err := a.slots.List(ctx, domain.SlotFilter{
		Publisher: addr,
		Sort:      domain.SortNewest,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(purchased)+len(created))
	seen := make(map[string]bool, cap(ids))
	for _, s := range append(append([]*domain.Slot{}, purchased...), created...) {
		if !seen[s.ID] {
			seen[s.ID] = true
			ids = append(ids, s.ID)
		}
	}

	// One pass over the rental events of every involved slot, newest first,
	// covers both the renter-side "last rental" and the publisher-side
	// revenue rollups.
	events, err := a.events.ListBySlots(ctx, ids, domain.RentalKinds)
	if err != nil {
		return nil, err
	}
	pageURLs, err := a.pages.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	var viewStats map[string]domain.ViewStats
	if a.views != nil {
		viewStats, err = a.views.Stats(ctx, ids)
		if err != nil {
			return nil, err
		}
	}

	out := &Overview{
		Address:   addr,
		Purchased: make([]PurchasedSlot, 0, len(purchased)),
		Created:   make([]CreatedSlot, 0, len(created)),
	}

	for _, s := range purchased {
		ps := PurchasedSlot{
			Slot:       s,
			PageURL:    pageURLs[s.ID],
			LastRental: lastRentalBy(events, s.ID, addr),
		}
		if viewStats != nil {
			ps.Views = viewStats[s.ID]
		}
		out.Purchased = append(out.Purchased, ps)
	}

	for _, s := range created {
		cs := CreatedSlot{
			Slot:         s,
			PageURL:      pageURLs[s.ID],
			LatestRental: latestRental(events, s.ID),
		}
		for _, ev := range events {
			if ev.SlotID != s.ID {
				continue
			}
			amount := domain.Int64Field(ev.Data, "price", "amount")
			cs.TotalRevenue += amount
			// Buyout funds stay pending until the lock expires.
			if ev.Kind == domain.EventKindBuyoutLocked &&
				domain.Int64Field(ev.Data, "lock_until") > now {
				cs.PendingRevenue += amount
			}
		}
		cs.DepositedRevenue = cs.TotalRevenue - cs.PendingRevenue
		if cs.DepositedRevenue < 0 {
			cs.DepositedRevenue = 0
		}
		if viewStats != nil {
			cs.Views = viewStats[s.ID]
		}

		out.TotalRevenue += cs.TotalRevenue
		out.PendingRevenue += cs.PendingRevenue
		out.DepositedRevenue += cs.DepositedRevenue
		out.Created = append(out.Created, cs)
	}

	return out, nil
}

// lastRentalBy finds the newest rental event on a slot whose renter matches
// the address. Events are already newest first.
func lastRentalBy(events []*domain.Event, slotID, addr string) *domain.Event {
	for _, ev := range events {
		if ev.SlotID != slotID {
			continue
		}
		renter := domain.NormalizeAddress(
			domain.StringField(ev.Data, "renter", "new_renter"))
		if renter == addr {
			return ev
		}
	}
	return nil
}

// latestRental finds the newest rental event on a slot by any renter.
func latestRental(events []*domain.Event, slotID string) *domain.Event {
	for _, ev := range events {
		if ev.SlotID == slotID {
			return ev
		}
	}
	return nil
}
