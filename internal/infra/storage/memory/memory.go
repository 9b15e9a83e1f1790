package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aquads/indexer/internal/core/domain"
	"github.com/aquads/indexer/internal/infra/storage"
)

// MemoryStorage backs every repository with in-process maps. Used by tests
// and when no database URL is configured.
type MemoryStorage struct {
	mu      sync.RWMutex
	events  map[string]*domain.Event
	order   []string // event ids in insertion order (replay order)
	slots   map[string]*domain.Slot
	claims  map[string][]*domain.Claim
	cursors map[string]*domain.Cursor
	pages   map[string]string
	now     func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		events:  make(map[string]*domain.Event),
		slots:   make(map[string]*domain.Slot),
		claims:  make(map[string][]*domain.Claim),
		cursors: make(map[string]*domain.Cursor),
		pages:   make(map[string]string),
		now:     time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (s *MemoryStorage) SetNow(now func() time.Time) {
	s.now = now
}

// -----------------------------------------------------------------------------
// Event Repository
// -----------------------------------------------------------------------------

type EventRepo struct {
	store *MemoryStorage
}

func NewEventRepo(store *MemoryStorage) *EventRepo {
	return &EventRepo{store: store}
}

func (r *EventRepo) Append(ctx context.Context, ev *domain.Event) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.events[ev.ID]; exists {
		return nil // dedup no-op
	}
	cp := *ev
	r.store.events[ev.ID] = &cp
	r.store.order = append(r.store.order, ev.ID)
	return nil
}

func (r *EventRepo) ListByKinds(
	ctx context.Context,
	slotID string,
	kinds []domain.EventKind,
	ascending bool,
	limit int,
) ([]*domain.Event, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	kindSet := make(map[domain.EventKind]struct{}, len(kinds))
	for _, k := range kinds {
		kindSet[k] = struct{}{}
	}

	var out []*domain.Event
	for _, id := range r.store.order {
		ev := r.store.events[id]
		if slotID != "" && ev.SlotID != slotID {
			continue
		}
		if len(kinds) > 0 {
			if _, ok := kindSet[ev.Kind]; !ok {
				continue
			}
		}
		cp := *ev
		out = append(out, &cp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return out[i].TS < out[j].TS
		}
		return out[i].TS > out[j].TS
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *EventRepo) ListBySlots(
	ctx context.Context,
	slotIDs []string,
	kinds []domain.EventKind,
) ([]*domain.Event, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	slotSet := make(map[string]struct{}, len(slotIDs))
	for _, id := range slotIDs {
		slotSet[id] = struct{}{}
	}
	kindSet := make(map[domain.EventKind]struct{}, len(kinds))
	for _, k := range kinds {
		kindSet[k] = struct{}{}
	}

	var out []*domain.Event
	for _, id := range r.store.order {
		ev := r.store.events[id]
		if _, ok := slotSet[ev.SlotID]; !ok {
			continue
		}
		if len(kinds) > 0 {
			if _, ok := kindSet[ev.Kind]; !ok {
				continue
			}
		}
		cp := *ev
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS > out[j].TS })
	return out, nil
}

func (r *EventRepo) Count(ctx context.Context) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return int64(len(r.store.events)), nil
}

// -----------------------------------------------------------------------------
// Slot Repository
// -----------------------------------------------------------------------------

type SlotRepo struct {
	store *MemoryStorage
}

func NewSlotRepo(store *MemoryStorage) *SlotRepo {
	return &SlotRepo{store: store}
}

func (r *SlotRepo) Upsert(ctx context.Context, patch domain.SlotPatch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cur := r.store.slots[patch.ID]
	r.store.slots[patch.ID] = domain.ApplyPatch(cur, patch, r.store.now().Unix())
	return nil
}

func (r *SlotRepo) Get(ctx context.Context, id string) (*domain.Slot, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.slots[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SlotRepo) List(
	ctx context.Context,
	filter domain.SlotFilter,
) ([]*domain.Slot, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.Slot
	for _, s := range r.store.slots {
		if filter.DomainHash != "" && s.DomainHash != filter.DomainHash {
			continue
		}
		if filter.Width > 0 && s.Width != filter.Width {
			continue
		}
		if filter.Height > 0 && s.Height != filter.Height {
			continue
		}
		if filter.Publisher != "" && s.Publisher != filter.Publisher {
			continue
		}
		if filter.Renter != "" {
			if s.CurrentRenter == nil || *s.CurrentRenter != filter.Renter {
				continue
			}
		}
		cp := *s
		out = append(out, &cp)
	}

	sortSlots(out, filter.Sort)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func sortSlots(slots []*domain.Slot, order domain.SlotSort) {
	sort.SliceStable(slots, func(i, j int) bool {
		switch order {
		case domain.SortPriceAsc:
			return slots[i].LastPrice < slots[j].LastPrice
		case domain.SortNewest:
			return slots[i].CreatedAt > slots[j].CreatedAt
		case domain.SortOldest:
			return slots[i].CreatedAt < slots[j].CreatedAt
		default: // price_desc
			return slots[i].LastPrice > slots[j].LastPrice
		}
	})
}

// -----------------------------------------------------------------------------
// Claim Repository
// -----------------------------------------------------------------------------

type ClaimRepo struct {
	store *MemoryStorage
}

func NewClaimRepo(store *MemoryStorage) *ClaimRepo {
	return &ClaimRepo{store: store}
}

func (r *ClaimRepo) Append(ctx context.Context, claim *domain.Claim) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *claim
	r.store.claims[claim.SlotID] = append(r.store.claims[claim.SlotID], &cp)
	return nil
}

func (r *ClaimRepo) SumBySlot(ctx context.Context, slotID string) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var total int64
	for _, c := range r.store.claims[slotID] {
		total += c.Amount
	}
	return total, nil
}

func (r *ClaimRepo) ListBySlot(
	ctx context.Context,
	slotID string,
) ([]*domain.Claim, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Claim
	for _, c := range r.store.claims[slotID] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Cursor Repository
// -----------------------------------------------------------------------------

type CursorRepo struct {
	store *MemoryStorage
}

func NewCursorRepo(store *MemoryStorage) *CursorRepo {
	return &CursorRepo{store: store}
}

func (r *CursorRepo) Get(ctx context.Context, streamID string) (*domain.Cursor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	c, ok := r.store.cursors[streamID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *cursor
	cp.UpdatedAt = r.store.now().Unix()
	r.store.cursors[cursor.StreamID] = &cp
	return nil
}

func (r *CursorRepo) Delete(ctx context.Context, streamID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.cursors, streamID)
	return nil
}

// -----------------------------------------------------------------------------
// Page Repository
// -----------------------------------------------------------------------------

type PageRepo struct {
	store *MemoryStorage
}

func NewPageRepo(store *MemoryStorage) *PageRepo {
	return &PageRepo{store: store}
}

func (r *PageRepo) Set(ctx context.Context, slotID, url string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if url == "" {
		delete(r.store.pages, slotID)
		return nil
	}
	r.store.pages[slotID] = url
	return nil
}

func (r *PageRepo) Get(ctx context.Context, slotID string) (string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.pages[slotID], nil
}

func (r *PageRepo) GetMany(
	ctx context.Context,
	slotIDs []string,
) (map[string]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make(map[string]string, len(slotIDs))
	for _, id := range slotIDs {
		if u, ok := r.store.pages[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (r *PageRepo) All(ctx context.Context) (map[string]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make(map[string]string, len(r.store.pages))
	for k, v := range r.store.pages {
		out[k] = v
	}
	return out, nil
}
