package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rewired-gh/polynotify/internal/models"
)

func TestDollars(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0"},
		{999, "$999"},
		{1500, "$1.5K"},
		{250_000, "$250.0K"},
		{1_200_000, "$1.2M"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dollars(tt.in), "dollars(%v)", tt.in)
	}
}

func TestRenderNewMarket(t *testing.T) {
	a := &models.Alert{
		Kind: models.AlertNewMarket,
		Event: models.MarketEvent{
			ID:         "42",
			Title:      "Will BTC hit $100k?",
			Slug:       "btc-100k",
			Liquidity:  models.Float(12_500),
			Volume24hr: models.Float(2_300_000),
			Tags:       []models.Tag{{Label: "Crypto"}, {Label: "Bitcoin"}},
			Markets:    []models.Outcome{{Outcome: "Yes"}, {Outcome: "No"}},
		},
	}
	got := Render(a)
	assert.Contains(t, got, "🆕 NEW MARKET")
	assert.Contains(t, got, "Title: Will BTC hit $100k?")
	assert.Contains(t, got, "Markets: 2 outcome(s)")
	assert.Contains(t, got, "Liquidity: $12.5K")
	assert.Contains(t, got, "Volume (24h): $2.3M")
	assert.Contains(t, got, "Tags: Crypto, Bitcoin")
	assert.Contains(t, got, "🔗 https://polymarket.com/event/btc-100k")
}

func TestRenderNewMarketWithoutTags(t *testing.T) {
	got := Render(&models.Alert{Kind: models.AlertNewMarket, Event: models.MarketEvent{ID: "7"}})
	assert.Contains(t, got, "Title: Unknown")
	assert.Contains(t, got, "Tags: None")
	assert.Contains(t, got, "https://polymarket.com/event/7")
}

func TestRenderClosingSoon(t *testing.T) {
	a := &models.Alert{
		Kind:     models.AlertClosingSoon,
		TimeLeft: 95 * time.Minute,
		Event: models.MarketEvent{
			ID:      "1",
			Title:   "Closing",
			Markets: []models.Outcome{{OutcomePrices: models.Prices(0.62, 0.38)}},
		},
	}
	got := Render(a)
	assert.Contains(t, got, "Closes in: 1h 35m")
	assert.Contains(t, got, "YES 62¢ / NO 38¢")

	a.Event.Markets = nil
	assert.Contains(t, Render(a), "YES ?¢ / NO ?¢")
}

func TestRenderResolved(t *testing.T) {
	price := 0.97
	a := &models.Alert{
		Kind:       models.AlertResolved,
		Event:      models.MarketEvent{ID: "1", Title: "Election"},
		Outcome:    "Trump",
		FinalPrice: &price,
	}
	got := Render(a)
	assert.Contains(t, got, "✅ MARKET RESOLVED")
	assert.Contains(t, got, "Outcome: Trump")
	assert.Contains(t, got, "Final price: 97¢")

	a.Outcome = "Unknown"
	a.FinalPrice = nil
	assert.Contains(t, Render(a), "Final price: N/A¢")
}

func TestRenderPriceMove(t *testing.T) {
	a := &models.Alert{
		Kind:     models.AlertPriceMove,
		Event:    models.MarketEvent{ID: "1", Title: "Odds"},
		OldPrice: 0.40,
		NewPrice: 0.60,
		Change:   0.20,
		Lookback: time.Hour,
	}
	got := Render(a)
	assert.Contains(t, got, "Move: 40¢ → 60¢ (+20¢)")
	assert.Contains(t, got, "Timeframe: last 60 min")

	a.OldPrice, a.NewPrice, a.Change = 0.60, 0.40, -0.20
	assert.Contains(t, Render(a), "(-20¢)")
}

func TestRenderVolumeSpike(t *testing.T) {
	a := &models.Alert{
		Kind:       models.AlertVolumeSpike,
		Event:      models.MarketEvent{ID: "1", Title: "Vol"},
		OldVolume:  1000,
		NewVolume:  5000,
		Multiplier: 5,
		Lookback:   30 * time.Minute,
	}
	got := Render(a)
	assert.Contains(t, got, "🔥 VOLUME SPIKE")
	assert.Contains(t, got, "$1.0K → $5.0K (5.0x)")
	assert.Contains(t, got, "last 30 min")
}

func TestRenderUnknownKind(t *testing.T) {
	assert.Equal(t, "Unknown alert type: bogus", Render(&models.Alert{Kind: "bogus"}))
}
