package domain

// Slot is the materialized current state of one marketplace placement.
// Fields are only ever overwritten, never deleted.
type Slot struct {
	ID            string
	Publisher     string
	Width         int
	Height        int
	DomainHash    string
	ReservePrice  int64
	CurrentRenter *string
	RentalExpiry  int64
	LastPrice     int64
	LatestMetaCID *string
	CreatedAt     int64

	// Guard timestamps: the event TS that last wrote each mutable field
	// group. An older event arriving late must not clobber newer state.
	RenterEventTS   int64
	CreativeEventTS int64
}

// SlotPatch is a sparse update: nil fields are left untouched. EventTS is the
// timestamp of the event (or request) producing the patch and drives the
// per-group staleness guards.
type SlotPatch struct {
	ID      string
	EventTS int64

	Publisher     *string
	Width         *int
	Height        *int
	DomainHash    *string
	ReservePrice  *int64
	CurrentRenter *string
	RentalExpiry  *int64
	LastPrice     *int64
	LatestMetaCID *string
	CreatedAt     *int64
}

// ApplyPatch merges a sparse patch into a slot. When cur is nil a new row is
// created with zero values for unset fields (now fills created_at). The merge
// is idempotent under replay and skips rental/creative fields whose patch is
// older than the group's guard timestamp.
//
// Both storage implementations route through this function so projection
// semantics cannot drift between them.
func ApplyPatch(cur *Slot, p SlotPatch, now int64) *Slot {
	var s Slot
	if cur != nil {
		s = *cur
	} else {
		s.ID = p.ID
		s.CreatedAt = now
	}

	// Creation-group fields: written by SlotCreated or the optimistic
	// register flow, always with identical values, so no guard needed.
	if p.Publisher != nil {
		s.Publisher = *p.Publisher
	}
	if p.Width != nil {
		s.Width = *p.Width
	}
	if p.Height != nil {
		s.Height = *p.Height
	}
	if p.DomainHash != nil {
		s.DomainHash = *p.DomainHash
	}
	if p.ReservePrice != nil {
		s.ReservePrice = *p.ReservePrice
	}
	if p.CreatedAt != nil {
		s.CreatedAt = *p.CreatedAt
	}

	// Rental group: renter, expiry, price move together.
	if p.CurrentRenter != nil || p.RentalExpiry != nil || p.LastPrice != nil {
		if p.EventTS >= s.RenterEventTS {
			if p.CurrentRenter != nil {
				r := *p.CurrentRenter
				s.CurrentRenter = &r
			}
			if p.RentalExpiry != nil {
				s.RentalExpiry = *p.RentalExpiry
			}
			if p.LastPrice != nil {
				s.LastPrice = *p.LastPrice
			}
			s.RenterEventTS = p.EventTS
		}
	}

	// Creative group.
	if p.LatestMetaCID != nil {
		if p.EventTS >= s.CreativeEventTS {
			c := *p.LatestMetaCID
			s.LatestMetaCID = &c
			s.CreativeEventTS = p.EventTS
		}
	}

	return &s
}

// SlotSort enumerates listing orders.
type SlotSort string

const (
	SortPriceDesc SlotSort = "price_desc"
	SortPriceAsc  SlotSort = "price_asc"
	SortNewest    SlotSort = "newest"
	SortOldest    SlotSort = "oldest"
)

// SlotFilter narrows and orders slot listings. Zero values mean "no filter".
type SlotFilter struct {
	DomainHash string
	Width      int
	Height     int
	Publisher  string
	Renter     string
	Sort       SlotSort
	Limit      int // 0 = unlimited
}
