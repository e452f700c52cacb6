package models

import (
	"fmt"
	"strings"
	"time"
)

// AlertKind identifies one detector and the notification it produces.
type AlertKind string

const (
	AlertNewMarket   AlertKind = "new_market"
	AlertClosingSoon AlertKind = "closing_soon"
	AlertResolved    AlertKind = "resolved"
	AlertPriceMove   AlertKind = "price_move"
	AlertVolumeSpike AlertKind = "volume_spike"
)

// AllAlertKinds lists every kind in detector order.
var AllAlertKinds = []AlertKind{
	AlertNewMarket,
	AlertClosingSoon,
	AlertResolved,
	AlertPriceMove,
	AlertVolumeSpike,
}

// ParseAlertKind accepts a kind name as written in configuration.
func ParseAlertKind(s string) (AlertKind, error) {
	k := AlertKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllAlertKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown alert kind %q", s)
}

// Alert is a candidate notification produced by the detection engine. It is
// committed to history only after at least one channel delivered it.
type Alert struct {
	ID         string
	Kind       AlertKind
	Event      MarketEvent
	DetectedAt time.Time

	// closing_soon
	TimeLeft time.Duration

	// resolved
	Outcome    string
	FinalPrice *float64

	// price_move
	OldPrice float64
	NewPrice float64
	Change   float64 // signed, NewPrice - OldPrice

	// volume_spike
	OldVolume  float64
	NewVolume  float64
	Multiplier float64

	// price_move, volume_spike
	Lookback time.Duration
}

// MarketID is the identifier the alert is recorded under.
func (a *Alert) MarketID() string {
	return a.Event.ID
}
