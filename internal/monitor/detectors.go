package monitor

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/polynotify/internal/logger"
	"github.com/rewired-gh/polynotify/internal/models"
)

// detection is the per-record input shared by the detectors of one cycle.
type detection struct {
	event      *models.MarketEvent
	now        time.Time
	firstRun   bool // history was empty when the cycle started
	seenBefore bool // the record was seen in an earlier cycle
}

type detector struct {
	kind  models.AlertKind
	check func(ctx context.Context, d *detection, store HistoryStore, cfg *Config) (*models.Alert, error)
}

// detectors run in this order for every record.
var detectors = []detector{
	{models.AlertNewMarket, checkNewMarket},
	{models.AlertClosingSoon, checkClosingSoon},
	{models.AlertResolved, checkResolved},
	{models.AlertPriceMove, checkPriceMove},
	{models.AlertVolumeSpike, checkVolumeSpike},
}

func newAlert(kind models.AlertKind, d *detection) *models.Alert {
	return &models.Alert{
		ID:         uuid.NewString(),
		Kind:       kind,
		Event:      *d.event,
		DetectedAt: d.now,
	}
}

func checkNewMarket(_ context.Context, d *detection, _ HistoryStore, cfg *Config) (*models.Alert, error) {
	if d.seenBefore || d.firstRun {
		return nil, nil
	}
	if created, ok := d.event.CreatedTime(); ok && cfg.NewMarketMaxAge > 0 {
		if age := d.now.Sub(created); age > cfg.NewMarketMaxAge {
			logger.Debug("Skipping new market %s: created %s ago", d.event.ID, age.Round(time.Minute))
			return nil, nil
		}
	}
	return newAlert(models.AlertNewMarket, d), nil
}

func checkClosingSoon(ctx context.Context, d *detection, store HistoryStore, cfg *Config) (*models.Alert, error) {
	if d.event.IsClosed() {
		return nil, nil
	}
	end, ok := d.event.EndTime()
	if !ok {
		return nil, nil
	}
	remaining := end.Sub(d.now)
	if remaining <= 0 || remaining > cfg.ClosingWindow {
		return nil, nil
	}
	alerted, err := store.HasAlerted(ctx, d.event.ID, models.AlertClosingSoon)
	if err != nil || alerted {
		return nil, err
	}
	a := newAlert(models.AlertClosingSoon, d)
	a.TimeLeft = remaining
	return a, nil
}

func checkResolved(ctx context.Context, d *detection, store HistoryStore, _ *Config) (*models.Alert, error) {
	if !d.event.IsClosed() || !d.seenBefore {
		return nil, nil
	}
	// Markets first met after they closed were never tracked.
	tracked, err := store.ObservedOpen(ctx, d.event.ID)
	if err != nil || !tracked {
		return nil, err
	}
	alerted, err := store.HasAlerted(ctx, d.event.ID, models.AlertResolved)
	if err != nil || alerted {
		return nil, err
	}
	a := newAlert(models.AlertResolved, d)
	a.Outcome, a.FinalPrice = d.event.Resolution()
	return a, nil
}

func checkPriceMove(ctx context.Context, d *detection, store HistoryStore, cfg *Config) (*models.Alert, error) {
	if d.event.IsClosed() {
		return nil, nil
	}
	prices := d.event.Prices()
	if len(prices) == 0 {
		return nil, nil
	}
	snap, err := store.SnapshotAsOf(ctx, d.event.ID, cfg.PriceLookback)
	if err != nil {
		return nil, err
	}
	oldPrice, ok := snap.FirstPrice()
	if !ok {
		return nil, nil
	}
	newPrice := prices[0].Price
	if math.Abs(newPrice-oldPrice) < cfg.PriceThreshold {
		return nil, nil
	}
	cooling, err := inCooldown(ctx, d, store, models.AlertPriceMove, cfg.PriceCooldown)
	if err != nil || cooling {
		return nil, err
	}
	a := newAlert(models.AlertPriceMove, d)
	a.OldPrice = oldPrice
	a.NewPrice = newPrice
	a.Change = newPrice - oldPrice
	a.Lookback = cfg.PriceLookback
	return a, nil
}

func checkVolumeSpike(ctx context.Context, d *detection, store HistoryStore, cfg *Config) (*models.Alert, error) {
	if d.event.IsClosed() {
		return nil, nil
	}
	volume, ok := d.event.Volume24h()
	if !ok || volume <= 0 {
		return nil, nil
	}
	snap, err := store.SnapshotAsOf(ctx, d.event.ID, cfg.VolumeLookback)
	if err != nil {
		return nil, err
	}
	if snap == nil || snap.Volume == nil || *snap.Volume <= 0 {
		return nil, nil
	}
	ratio := volume / *snap.Volume
	if ratio < cfg.VolumeSpikeMultiplier {
		return nil, nil
	}
	cooling, err := inCooldown(ctx, d, store, models.AlertVolumeSpike, cfg.VolumeCooldown)
	if err != nil || cooling {
		return nil, err
	}
	a := newAlert(models.AlertVolumeSpike, d)
	a.OldVolume = *snap.Volume
	a.NewVolume = volume
	a.Multiplier = ratio
	a.Lookback = cfg.VolumeLookback
	return a, nil
}

// inCooldown reports whether the last committed alert of kind is younger than cooldown.
func inCooldown(ctx context.Context, d *detection, store HistoryStore, kind models.AlertKind, cooldown time.Duration) (bool, error) {
	last, err := store.LastAlertTime(ctx, d.event.ID, kind)
	if err != nil || last == nil {
		return false, err
	}
	return d.now.Sub(*last) < cooldown, nil
}
