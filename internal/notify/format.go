package notify

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/polynotify/internal/models"
)

// Render formats an alert as plain text.
func Render(a *models.Alert) string {
	switch a.Kind {
	case models.AlertNewMarket:
		return renderNewMarket(a)
	case models.AlertClosingSoon:
		return renderClosingSoon(a)
	case models.AlertResolved:
		return renderResolved(a)
	case models.AlertPriceMove:
		return renderPriceMove(a)
	case models.AlertVolumeSpike:
		return renderVolumeSpike(a)
	default:
		return fmt.Sprintf("Unknown alert type: %s", a.Kind)
	}
}

func renderNewMarket(a *models.Alert) string {
	e := &a.Event
	volume, _ := e.Volume24h()
	return fmt.Sprintf("🆕 NEW MARKET\n\n"+
		"Title: %s\n"+
		"Markets: %d outcome(s)\n"+
		"Liquidity: %s\n"+
		"Volume (24h): %s\n"+
		"Tags: %s\n\n"+
		"🔗 %s",
		title(e), len(e.Markets), dollars(e.LiquidityValue()), dollars(volume), tags(e), e.URL())
}

func renderClosingSoon(a *models.Alert) string {
	e := &a.Event
	minutes := int(a.TimeLeft.Minutes())
	yes, no := yesNoCents(e)
	return fmt.Sprintf("⏰ MARKET CLOSING SOON\n\n"+
		"Title: %s\n"+
		"Closes in: %dh %dm\n"+
		"Current odds: YES %s¢ / NO %s¢\n\n"+
		"🔗 %s",
		title(e), minutes/60, minutes%60, yes, no, e.URL())
}

func renderResolved(a *models.Alert) string {
	e := &a.Event
	price := "N/A"
	if a.FinalPrice != nil {
		price = cents(*a.FinalPrice)
	}
	outcome := a.Outcome
	if outcome == "" {
		outcome = "Unknown"
	}
	return fmt.Sprintf("✅ MARKET RESOLVED\n\n"+
		"Title: %s\n"+
		"Outcome: %s\n"+
		"Final price: %s¢\n\n"+
		"🔗 %s",
		title(e), outcome, price, e.URL())
}

func renderPriceMove(a *models.Alert) string {
	e := &a.Event
	return fmt.Sprintf("📈 SIGNIFICANT ODDS SHIFT\n\n"+
		"Title: %s\n"+
		"Move: %s¢ → %s¢ (%+.0f¢)\n"+
		"Timeframe: last %d min\n\n"+
		"🔗 %s",
		title(e), cents(a.OldPrice), cents(a.NewPrice), a.Change*100, int(a.Lookback.Minutes()), e.URL())
}

func renderVolumeSpike(a *models.Alert) string {
	e := &a.Event
	return fmt.Sprintf("🔥 VOLUME SPIKE\n\n"+
		"Title: %s\n"+
		"Volume (24h): %s → %s (%.1fx)\n"+
		"Timeframe: last %d min\n\n"+
		"🔗 %s",
		title(e), dollars(a.OldVolume), dollars(a.NewVolume), a.Multiplier, int(a.Lookback.Minutes()), e.URL())
}

func title(e *models.MarketEvent) string {
	if e.Title == "" {
		return "Unknown"
	}
	return e.Title
}

func cents(price float64) string {
	return fmt.Sprintf("%.0f", price*100)
}

// dollars renders $1.2M, $3.4K, or whole dollars below a thousand.
func dollars(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("$%.1fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("$%.1fK", v/1_000)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func tags(e *models.MarketEvent) string {
	labels := e.TagLabels()
	if len(labels) == 0 {
		return "None"
	}
	return strings.Join(labels, ", ")
}

// yesNoCents reads the first outcome's price list as YES/NO.
func yesNoCents(e *models.MarketEvent) (string, string) {
	if len(e.Markets) == 0 {
		return "?", "?"
	}
	values := e.Markets[0].OutcomePrices.Values
	if len(values) == 0 {
		return "?", "?"
	}
	yes := values[0]
	no := 1 - yes
	if len(values) > 1 {
		no = values[1]
	}
	return cents(yes), cents(no)
}
