package domain

// Cursor marks the last event durably applied for one event stream
// (package + module). Owned exclusively by the poller; persisted so a restart
// resumes exactly after the last applied event.
type Cursor struct {
	StreamID  string
	TxDigest  string
	EventSeq  string
	UpdatedAt int64
}

// EventID returns the chain-native form of the cursor position.
func (c *Cursor) EventID() EventID {
	return EventID{TxDigest: c.TxDigest, EventSeq: c.EventSeq}
}
