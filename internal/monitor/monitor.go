// Package monitor is the detection engine: it fetches market batches, runs the
// detectors against the history store and produces candidate alerts.
package monitor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/polynotify/internal/logger"
	"github.com/rewired-gh/polynotify/internal/models"
	"github.com/rewired-gh/polynotify/internal/polymarket"
	"golang.org/x/sync/errgroup"
)

// Fetcher returns one batch of market events.
type Fetcher interface {
	FetchEvents(ctx context.Context, q polymarket.EventQuery) ([]models.MarketEvent, error)
}

// HistoryStore is the persistent history the detectors consult.
type HistoryStore interface {
	HasSeen(ctx context.Context, marketID string) (bool, error)
	MarkSeen(ctx context.Context, marketID string) error
	MarkObservedOpen(ctx context.Context, marketID string) error
	ObservedOpen(ctx context.Context, marketID string) (bool, error)
	IsEmpty(ctx context.Context) (bool, error)
	SaveSnapshot(ctx context.Context, marketID string, prices []models.OutcomePrice, volume *float64) error
	SnapshotAsOf(ctx context.Context, marketID string, lookback time.Duration) (*models.Snapshot, error)
	HasAlerted(ctx context.Context, marketID string, kind models.AlertKind) (bool, error)
	LastAlertTime(ctx context.Context, marketID string, kind models.AlertKind) (*time.Time, error)
	CommitAlert(ctx context.Context, marketID string, kind models.AlertKind) error
	PruneSnapshots(ctx context.Context, maxAge time.Duration) (int64, error)
}

type Config struct {
	TagID            string
	FetchLimit       int
	ClosedFetchLimit int
	Filters          Filters

	EnabledKinds    []models.AlertKind
	NewMarketMaxAge time.Duration // 0 = no age limit
	ClosingWindow   time.Duration

	PriceThreshold float64
	PriceLookback  time.Duration
	PriceCooldown  time.Duration

	VolumeSpikeMultiplier float64
	VolumeLookback        time.Duration
	VolumeCooldown        time.Duration

	SnapshotRetention time.Duration
	PruneEvery        int // cycles between retention sweeps
}

func DefaultConfig() Config {
	return Config{
		TagID:                 "21",
		FetchLimit:            100,
		ClosedFetchLimit:      20,
		EnabledKinds:          models.AllAlertKinds,
		NewMarketMaxAge:       24 * time.Hour,
		ClosingWindow:         2 * time.Hour,
		PriceThreshold:        0.15,
		PriceLookback:         time.Hour,
		PriceCooldown:         30 * time.Minute,
		VolumeSpikeMultiplier: 3.0,
		VolumeLookback:        time.Hour,
		VolumeCooldown:        time.Hour,
		SnapshotRetention:     24 * time.Hour,
		PruneEvery:            60,
	}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source used for age, window and cooldown checks.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Monitor runs poll cycles. It is not safe for concurrent use: one cycle must
// finish before the next starts so check-then-mark and check-then-commit
// sequences stay atomic per market.
type Monitor struct {
	fetcher    Fetcher
	store      HistoryStore
	config     Config
	enabled    map[models.AlertKind]bool
	now        func() time.Time
	cycleCount atomic.Int64
}

func New(fetcher Fetcher, store HistoryStore, config Config, opts ...Option) *Monitor {
	m := &Monitor{
		fetcher: fetcher,
		store:   store,
		config:  config,
		enabled: make(map[models.AlertKind]bool, len(config.EnabledKinds)),
		now:     time.Now,
	}
	for _, k := range config.EnabledKinds {
		m.enabled[k] = true
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CycleCount returns the number of cycles started so far. Safe to call
// while a cycle runs.
func (m *Monitor) CycleCount() int {
	return int(m.cycleCount.Load())
}

// Poll runs one full cycle: fetch both batches, filter, detect, and on every
// PruneEvery-th cycle sweep old snapshots. Fetch failures yield an empty
// batch; only history store failures are returned.
func (m *Monitor) Poll(ctx context.Context) ([]models.Alert, error) {
	cycle := int(m.cycleCount.Add(1))
	cycleID := uuid.NewString()[:8]
	start := time.Now()
	logger.Debug("Cycle %d (%s) started", cycle, cycleID)

	active, closed := m.fetchBatches(ctx)
	active = m.config.Filters.Apply(active)
	closed = m.config.Filters.Apply(closed)

	alerts, err := m.Detect(ctx, active, closed)
	if err != nil {
		return nil, fmt.Errorf("cycle %d (%s): %w", cycle, cycleID, err)
	}

	if m.config.PruneEvery > 0 && cycle%m.config.PruneEvery == 0 {
		deleted, err := m.store.PruneSnapshots(ctx, m.config.SnapshotRetention)
		if err != nil {
			return nil, fmt.Errorf("cycle %d (%s): %w", cycle, cycleID, err)
		}
		if deleted > 0 {
			logger.Info("Pruned %d snapshots older than %s", deleted, m.config.SnapshotRetention)
		}
	}

	logger.Info("Cycle %d (%s): %d active, %d closed, %d candidate alerts in %s",
		cycle, cycleID, len(active), len(closed), len(alerts), time.Since(start).Round(time.Millisecond))
	return alerts, nil
}

// fetchBatches fetches the active and recently closed batches in parallel.
// Each fails soft to an empty batch.
func (m *Monitor) fetchBatches(ctx context.Context) (active, closed []models.MarketEvent) {
	var g errgroup.Group
	g.Go(func() error {
		active = m.fetch(ctx, "active", polymarket.ActiveEvents(m.config.TagID, m.config.FetchLimit))
		return nil
	})
	if m.config.ClosedFetchLimit > 0 {
		g.Go(func() error {
			closed = m.fetch(ctx, "closed", polymarket.RecentlyClosedEvents(m.config.TagID, m.config.ClosedFetchLimit))
			return nil
		})
	}
	_ = g.Wait()
	return active, closed
}

func (m *Monitor) fetch(ctx context.Context, batch string, q polymarket.EventQuery) []models.MarketEvent {
	events, err := m.fetcher.FetchEvents(ctx, q)
	if err != nil {
		logger.Error("Failed to fetch %s events: %v", batch, err)
		return nil
	}
	return events
}

// Detect runs every enabled detector over the merged batches and records the
// history the next cycle compares against. Active records win over closed
// records with the same ID.
func (m *Monitor) Detect(ctx context.Context, active, closed []models.MarketEvent) ([]models.Alert, error) {
	firstRun, err := m.store.IsEmpty(ctx)
	if err != nil {
		return nil, err
	}

	events := merge(active, closed)
	now := m.now()
	var alerts []models.Alert

	for i := range events {
		e := &events[i]

		seenBefore, err := m.store.HasSeen(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		if !seenBefore {
			if err := m.store.MarkSeen(ctx, e.ID); err != nil {
				return nil, err
			}
		}

		d := &detection{event: e, now: now, firstRun: firstRun, seenBefore: seenBefore}
		for _, det := range detectors {
			if !m.enabled[det.kind] {
				continue
			}
			alert, err := det.check(ctx, d, m.store, &m.config)
			if err != nil {
				return nil, err
			}
			if alert != nil {
				alerts = append(alerts, *alert)
			}
		}

		if !e.IsClosed() {
			var volume *float64
			if v, ok := e.Volume24h(); ok {
				volume = &v
			}
			if err := m.store.SaveSnapshot(ctx, e.ID, e.Prices(), volume); err != nil {
				return nil, err
			}
			if err := m.store.MarkObservedOpen(ctx, e.ID); err != nil {
				return nil, err
			}
		}
	}

	if firstRun && len(events) > 0 {
		logger.Info("First run: seeded %d markets without alerting", len(events))
	}
	return alerts, nil
}

// Commit records a delivered alert so its gating applies from now on.
func (m *Monitor) Commit(ctx context.Context, alert *models.Alert) error {
	return m.store.CommitAlert(ctx, alert.MarketID(), alert.Kind)
}
