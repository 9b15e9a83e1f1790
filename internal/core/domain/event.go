package domain

import "strings"

// EventKind is the closed set of marketplace event variants.
// Anything outside the known five maps to EventKindUnknown: such events are
// recorded in the log for audit but never projected.
type EventKind string

const (
	EventKindSlotCreated     EventKind = "SlotCreated"
	EventKindRented          EventKind = "Rented"
	EventKindOutbid          EventKind = "Outbid"
	EventKindBuyoutLocked    EventKind = "BuyoutLocked"
	EventKindCreativeUpdated EventKind = "CreativeUpdated"
	EventKindUnknown         EventKind = "Unknown"
)

// RentalKinds are the event kinds that carry money (finance + overview input).
var RentalKinds = []EventKind{EventKindRented, EventKindBuyoutLocked}

// KindFromType derives the event kind from a full Move event type
// (e.g. "0xabc::ad_market::Rented"). Only the last path segment matters.
func KindFromType(eventType string) EventKind {
	name := eventType
	if i := strings.LastIndex(eventType, "::"); i >= 0 {
		name = eventType[i+2:]
	}
	switch EventKind(name) {
	case EventKindSlotCreated, EventKindRented, EventKindOutbid,
		EventKindBuyoutLocked, EventKindCreativeUpdated:
		return EventKind(name)
	default:
		return EventKindUnknown
	}
}

// Event is a single immutable record of the chain event log.
// ID is the composite "txDigest-eventSeq" and is the sole dedup key.
type Event struct {
	ID     string
	SlotID string
	Kind   EventKind
	// RawType preserves the full on-chain type, mostly useful for
	// auditing Unknown events.
	RawType string
	Data    map[string]any
	TS      int64 // unix seconds
}

// EventID is the chain-native event identifier used as the poller cursor.
type EventID struct {
	TxDigest string `json:"txDigest"`
	EventSeq string `json:"eventSeq"`
}

// String renders the composite log key.
func (id EventID) String() string {
	return id.TxDigest + "-" + id.EventSeq
}
