package projector

import (
	"context"
	"testing"

	"github.com/aquads/indexer/internal/core/domain"
	"github.com/aquads/indexer/internal/infra/storage/memory"
)

func apply(t *testing.T, p *Projector, ev *domain.Event) {
	t.Helper()
	if err := p.Apply(context.Background(), ev); err != nil {
		t.Fatalf("apply %s failed: %v", ev.ID, err)
	}
}

func rentalSequence(baseTS int64) []*domain.Event {
	return []*domain.Event{
		{
			ID: "e1", SlotID: "0xslot", Kind: domain.EventKindSlotCreated,
			Data: map[string]any{
				"publisher":   "0xpub",
				"width":       float64(728),
				"height":      float64(90),
				"domain_hash": "0xhash",
			},
			TS: baseTS,
		},
		{
			ID: "e2", SlotID: "0xslot", Kind: domain.EventKindRented,
			Data: map[string]any{
				"renter": "0xalice",
				"expiry": float64(baseTS + 86400),
				"price":  "100",
			},
			TS: baseTS + 10,
		},
		{
			ID: "e3", SlotID: "0xslot", Kind: domain.EventKindOutbid,
			Data: map[string]any{
				"new_renter": "0xbob",
				"price":      "150",
			},
			TS: baseTS + 20,
		},
		{
			ID: "e4", SlotID: "0xslot", Kind: domain.EventKindBuyoutLocked,
			Data: map[string]any{
				"renter":     "0xcarol",
				"lock_until": float64(baseTS + 3600),
				"amount":     "500",
			},
			TS: baseTS + 30,
		},
	}
}

func TestProjector_RentalLifecycle(t *testing.T) {
	store := memory.NewMemoryStorage()
	slots := memory.NewSlotRepo(store)
	p := New(slots, nil)

	for _, ev := range rentalSequence(1000) {
		apply(t, p, ev)
	}

	s, err := slots.Get(context.Background(), "0xslot")
	if err != nil {
		t.Fatalf("slot not projected: %v", err)
	}

	if s.Publisher != "0xpub" || s.Width != 728 || s.Height != 90 {
		t.Errorf("creation fields wrong: %+v", s)
	}
	if s.DomainHash != "0xhash" {
		t.Errorf("domain hash wrong: %s", s.DomainHash)
	}
	if s.CreatedAt != 1000 {
		t.Errorf("created_at: expected event ts 1000, got %d", s.CreatedAt)
	}
	if s.CurrentRenter == nil || *s.CurrentRenter != "0xcarol" {
		t.Errorf("expected final renter 0xcarol, got %v", s.CurrentRenter)
	}
	if s.RentalExpiry != 1000+3600 {
		t.Errorf("expected expiry from lock_until, got %d", s.RentalExpiry)
	}
	if s.LastPrice != 500 {
		t.Errorf("expected last_price 500, got %d", s.LastPrice)
	}
}

func TestProjector_ReplayConverges(t *testing.T) {
	run := func() *domain.Slot {
		store := memory.NewMemoryStorage()
		slots := memory.NewSlotRepo(store)
		p := New(slots, nil)
		seq := rentalSequence(1000)
		for _, ev := range seq {
			apply(t, p, ev)
		}
		// Redeliver the whole stream.
		for _, ev := range seq {
			apply(t, p, ev)
		}
		s, err := slots.Get(context.Background(), "0xslot")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		return s
	}

	s := run()
	if *s.CurrentRenter != "0xcarol" || s.LastPrice != 500 || s.RentalExpiry != 4600 {
		t.Errorf("replay diverged: %+v", s)
	}
}

func TestProjector_CreativeUpdated(t *testing.T) {
	store := memory.NewMemoryStorage()
	slots := memory.NewSlotRepo(store)
	p := New(slots, nil)

	apply(t, p, &domain.Event{
		ID: "e1", SlotID: "0xslot", Kind: domain.EventKindCreativeUpdated,
		Data: map[string]any{
			"meta_cid": []any{float64('c'), float64('i'), float64('d'), float64('1')},
		},
		TS: 500,
	})

	s, err := slots.Get(context.Background(), "0xslot")
	if err != nil {
		t.Fatalf("slot not projected: %v", err)
	}
	if s.LatestMetaCID == nil || *s.LatestMetaCID != "cid1" {
		t.Errorf("expected decoded meta cid, got %v", s.LatestMetaCID)
	}
}

func TestProjector_UnknownKindNotProjected(t *testing.T) {
	store := memory.NewMemoryStorage()
	slots := memory.NewSlotRepo(store)
	p := New(slots, nil)

	err := p.Apply(context.Background(), &domain.Event{
		ID: "e1", SlotID: "0xslot", Kind: domain.EventKindUnknown,
		RawType: "0xpkg::ad_market::SlotPaused",
		TS:      100,
	})
	if err != nil {
		t.Fatalf("unknown kind must not fail: %v", err)
	}

	if _, err := slots.Get(context.Background(), "0xslot"); err == nil {
		t.Error("unknown kind created a projection row")
	}
}

func TestProjector_MalformedPayloadCoercesToZero(t *testing.T) {
	store := memory.NewMemoryStorage()
	slots := memory.NewSlotRepo(store)
	p := New(slots, nil)

	apply(t, p, &domain.Event{
		ID: "e1", SlotID: "0xslot", Kind: domain.EventKindRented,
		Data: map[string]any{"renter": "0xalice", "price": "not-a-number"},
		TS:   100,
	})

	s, err := slots.Get(context.Background(), "0xslot")
	if err != nil {
		t.Fatalf("slot not projected: %v", err)
	}
	if s.LastPrice != 0 {
		t.Errorf("expected malformed price to coerce to 0, got %d", s.LastPrice)
	}
	if *s.CurrentRenter != "0xalice" {
		t.Errorf("renter lost: %v", s.CurrentRenter)
	}
}
