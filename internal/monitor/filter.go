package monitor

import (
	"github.com/rewired-gh/polynotify/internal/logger"
	"github.com/rewired-gh/polynotify/internal/models"
	"github.com/samber/lo"
)

// Filters is the client-side pass applied to every fetched batch before detection.
type Filters struct {
	IncludeRecurring bool
	TagWhitelist     []string // empty = any tag
	MinLiquidity     float64  // 0 = no minimum
	TitleKeywords    []string // empty = any title
}

// Keep reports whether an event passes every configured filter.
func (f Filters) Keep(e *models.MarketEvent) bool {
	if e.ID == "" {
		return false
	}
	if !f.IncludeRecurring && e.IsRecurring() {
		return false
	}
	if len(f.TagWhitelist) > 0 && !e.HasAnyTag(f.TagWhitelist) {
		return false
	}
	if f.MinLiquidity > 0 && e.LiquidityValue() < f.MinLiquidity {
		return false
	}
	if len(f.TitleKeywords) > 0 && !e.TitleMatches(f.TitleKeywords) {
		return false
	}
	return true
}

// Apply returns the events that pass Keep, in order.
func (f Filters) Apply(events []models.MarketEvent) []models.MarketEvent {
	kept := lo.Filter(events, func(e models.MarketEvent, _ int) bool {
		return f.Keep(&e)
	})
	if dropped := len(events) - len(kept); dropped > 0 {
		logger.Debug("Filtered out %d of %d events", dropped, len(events))
	}
	return kept
}

// merge concatenates the batches and drops later duplicates, so a record from
// active wins over a closed record with the same ID.
func merge(active, closed []models.MarketEvent) []models.MarketEvent {
	all := make([]models.MarketEvent, 0, len(active)+len(closed))
	all = append(all, active...)
	all = append(all, closed...)
	return lo.UniqBy(all, func(e models.MarketEvent) string {
		return e.ID
	})
}
