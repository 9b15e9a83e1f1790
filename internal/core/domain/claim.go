package domain

// Claim is one irreversible withdrawal against a slot's vested revenue.
// The ledger is append-only; total claimed per slot is the sum of entries.
type Claim struct {
	ID     string
	SlotID string
	Amount int64 // mist
	TS     int64 // unix seconds
}
