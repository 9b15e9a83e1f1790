package domain

// ViewRecord is one line of the append-only viewability log, written by the
// embed script's beacon.
type ViewRecord struct {
	SlotID     string  `json:"slotId"`
	MaxPct     float64 `json:"maxPct"`
	DurationMs int64   `json:"durationMs"`
	TS         int64   `json:"ts"` // unix milliseconds
}

// ViewStats aggregates view records per slot. MaxPctSum is kept raw so the
// average is computed at read time.
type ViewStats struct {
	Views           int
	TotalDurationMs int64
	MaxPctSum       float64
}

// AvgMaxPct returns the mean max-visible percentage across views.
func (s ViewStats) AvgMaxPct() float64 {
	if s.Views == 0 {
		return 0
	}
	return s.MaxPctSum / float64(s.Views)
}
