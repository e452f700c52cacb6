package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/polynotify/internal/config"
	"github.com/rewired-gh/polynotify/internal/models"
	"github.com/rewired-gh/polynotify/internal/storage"
)

type stubPoller struct {
	alerts []models.Alert
	err    error
}

func (s *stubPoller) Poll(context.Context) ([]models.Alert, error) { return s.alerts, s.err }

type stubDispatcher struct {
	got []models.Alert
	err error
}

func (s *stubDispatcher) Dispatch(_ context.Context, alerts []models.Alert) (int, error) {
	s.got = alerts
	if s.err != nil {
		return 0, s.err
	}
	return len(alerts), nil
}

func TestRunMonitoringCycle(t *testing.T) {
	alerts := []models.Alert{{Kind: models.AlertNewMarket, Event: models.MarketEvent{ID: "1"}}}
	d := &stubDispatcher{}
	require.NoError(t, runMonitoringCycle(context.Background(), &stubPoller{alerts: alerts}, d))
	assert.Equal(t, alerts, d.got)
}

func TestRunMonitoringCycleSkipsDispatchWithoutAlerts(t *testing.T) {
	d := &stubDispatcher{}
	require.NoError(t, runMonitoringCycle(context.Background(), &stubPoller{}, d))
	assert.Nil(t, d.got)
}

func TestRunMonitoringCycleKeepsStorageErrors(t *testing.T) {
	storeErr := &storage.Error{Op: "commit alert", Err: errors.New("disk I/O error")}

	err := runMonitoringCycle(context.Background(), &stubPoller{err: storeErr}, &stubDispatcher{})
	require.Error(t, err)
	assert.True(t, storage.IsStorageError(err))

	alerts := []models.Alert{{Kind: models.AlertResolved}}
	err = runMonitoringCycle(context.Background(), &stubPoller{alerts: alerts}, &stubDispatcher{err: storeErr})
	require.Error(t, err)
	assert.True(t, storage.IsStorageError(err))
	assert.Contains(t, err.Error(), "failed to dispatch alerts")
}

func TestNewMonitorConfig(t *testing.T) {
	cfg := &config.Config{
		Polymarket: config.PolymarketConfig{
			TagID:            "21",
			FetchLimit:       50,
			ClosedFetchLimit: 10,
			MinLiquidity:     500,
			TagWhitelist:     []string{"Bitcoin"},
		},
		Alerts: config.AlertsConfig{
			Enabled:               []string{"price_move", "Resolved"},
			ClosingWindow:         time.Hour,
			PriceThreshold:        0.2,
			PriceLookback:         30 * time.Minute,
			VolumeSpikeMultiplier: 4,
		},
		Storage: config.StorageConfig{SnapshotRetention: 12 * time.Hour, PruneEveryCycles: 30},
	}

	mc, err := newMonitorConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []models.AlertKind{models.AlertPriceMove, models.AlertResolved}, mc.EnabledKinds)
	assert.Equal(t, 50, mc.FetchLimit)
	assert.Equal(t, 10, mc.ClosedFetchLimit)
	assert.Equal(t, 500.0, mc.Filters.MinLiquidity)
	assert.Equal(t, []string{"Bitcoin"}, mc.Filters.TagWhitelist)
	assert.Equal(t, 0.2, mc.PriceThreshold)
	assert.Equal(t, 30*time.Minute, mc.PriceLookback)
	assert.Equal(t, 12*time.Hour, mc.SnapshotRetention)
	assert.Equal(t, 30, mc.PruneEvery)

	cfg.Alerts.Enabled = []string{"bogus"}
	_, err = newMonitorConfig(cfg)
	assert.Error(t, err)
}

func TestStatusReport(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store, err := storage.New(":memory:", storage.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	got, err := statusReport(ctx, store, 0)
	require.NoError(t, err)
	assert.Equal(t, "Cycles run: 0\nTracked markets: 0\nSnapshots: 0\nAlerts sent: 0", got)

	require.NoError(t, store.MarkSeen(ctx, "m1"))
	require.NoError(t, store.SaveSnapshot(ctx, "m1", []models.OutcomePrice{{Label: "Yes", Price: 0.5}}, nil))
	require.NoError(t, store.CommitAlert(ctx, "m1", models.AlertNewMarket))

	got, err = statusReport(ctx, store, 7)
	require.NoError(t, err)
	assert.Contains(t, got, "Cycles run: 7")
	assert.Contains(t, got, "Tracked markets: 1")
	assert.Contains(t, got, "Alerts sent: 1")
	assert.Contains(t, got, "Last alert: new_market for m1 at 2025-03-01T12:00:00Z")
}

func TestStatusReportError(t *testing.T) {
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = statusReport(context.Background(), store, 1)
	require.Error(t, err)
	assert.True(t, storage.IsStorageError(err))
}
