package models

import "time"

// Snapshot is a point-in-time capture of an event's outcome prices and
// 24-hour volume. Either may be absent: a gap in upstream data is kept as
// history rather than skipped.
type Snapshot struct {
	ID         int64
	MarketID   string
	Prices     []OutcomePrice
	Volume     *float64
	RecordedAt time.Time
}

// FirstPrice returns the price of the first recorded outcome.
func (s *Snapshot) FirstPrice() (float64, bool) {
	if s == nil || len(s.Prices) == 0 {
		return 0, false
	}
	return s.Prices[0].Price, true
}

// AlertRecord is the last time an alert kind was committed for an event.
type AlertRecord struct {
	MarketID string
	Kind     AlertKind
	SentAt   time.Time
}
