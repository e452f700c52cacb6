// Package models defines the core domain entities: upstream market events,
// history snapshots, and alerts.
//
// Terminology (matching Polymarket's own naming):
//   - Event: a Polymarket event page, the unit we track and alert on.
//   - Market: one outcome market within an event (e.g. "Yes", or a candidate name).
package models

import (
	"strings"
	"time"
)

// ResolutionPrice is the price above which an outcome is treated as the winner
// of a closed event.
const ResolutionPrice = 0.9

// EventBaseURL is the public page prefix for an event slug or ID.
const EventBaseURL = "https://polymarket.com/event/"

// MarketEvent is one record from the Gamma /events endpoint. It is read-only
// input: nothing in the detection path mutates it.
//
// Fields the upstream may send in unexpected shapes use the Flex* types so a
// single malformed value never fails decoding of the whole batch.
type MarketEvent struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	Closed     FlexBool  `json:"closed"`
	EndDate    string    `json:"endDate"`
	EndDateISO string    `json:"end_date_iso"`
	CreatedAt  string    `json:"createdAt"`
	Tags       []Tag     `json:"tags"`
	Liquidity  FlexFloat `json:"liquidity"`
	Volume     FlexFloat `json:"volume"`
	Volume24hr FlexFloat `json:"volume24hr"`
	Markets    []Outcome `json:"markets"`
}

// Outcome is one outcome market inside an event.
type Outcome struct {
	GroupItemTitle string    `json:"groupItemTitle"`
	Outcome        string    `json:"outcome"`
	OutcomePrices  PriceList `json:"outcomePrices"`
	LastTradePrice FlexFloat `json:"lastTradePrice"`
}

// OutcomePrice is a labelled price, kept in upstream outcome order.
type OutcomePrice struct {
	Label string  `json:"label"`
	Price float64 `json:"price"`
}

// Label returns the display label of the outcome.
func (o Outcome) Label() string {
	if o.GroupItemTitle != "" {
		return o.GroupItemTitle
	}
	if o.Outcome != "" {
		return o.Outcome
	}
	return "Unknown"
}

// Price returns the first entry of outcomePrices. When outcomePrices is absent
// it falls back to lastTradePrice. A present but unparsable price list means
// no price.
func (o Outcome) Price() (float64, bool) {
	if o.OutcomePrices.Present {
		if len(o.OutcomePrices.Values) == 0 {
			return 0, false
		}
		return o.OutcomePrices.Values[0], true
	}
	if o.LastTradePrice.Valid {
		return o.LastTradePrice.Value, true
	}
	return 0, false
}

// IsClosed reports whether the upstream marked the event closed.
func (e *MarketEvent) IsClosed() bool {
	return bool(e.Closed)
}

// EndTime returns the parsed end timestamp. Missing or malformed values yield false.
func (e *MarketEvent) EndTime() (time.Time, bool) {
	if t, ok := parseTimestamp(e.EndDate); ok {
		return t, true
	}
	return parseTimestamp(e.EndDateISO)
}

// CreatedTime returns the parsed creation timestamp.
func (e *MarketEvent) CreatedTime() (time.Time, bool) {
	return parseTimestamp(e.CreatedAt)
}

// Prices extracts the current outcome prices in outcome order. Outcomes
// without a usable price are left out; nil means no prices at all.
func (e *MarketEvent) Prices() []OutcomePrice {
	var prices []OutcomePrice
	index := make(map[string]int)
	for _, m := range e.Markets {
		price, ok := m.Price()
		if !ok {
			continue
		}
		label := m.Label()
		if i, dup := index[label]; dup {
			prices[i].Price = price
			continue
		}
		index[label] = len(prices)
		prices = append(prices, OutcomePrice{Label: label, Price: price})
	}
	return prices
}

// Volume24h returns the 24-hour volume, falling back to total volume when the
// upstream omitted the 24-hour figure.
func (e *MarketEvent) Volume24h() (float64, bool) {
	if e.Volume24hr.Valid {
		return e.Volume24hr.Value, true
	}
	if e.Volume.Valid {
		return e.Volume.Value, true
	}
	return 0, false
}

// LiquidityValue returns liquidity, or 0 when missing.
func (e *MarketEvent) LiquidityValue() float64 {
	if !e.Liquidity.Valid {
		return 0
	}
	return e.Liquidity.Value
}

// TagLabels returns the tag labels in upstream order.
func (e *MarketEvent) TagLabels() []string {
	labels := make([]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		labels = append(labels, t.Label)
	}
	return labels
}

// IsRecurring reports whether any tag label mentions "recurring".
func (e *MarketEvent) IsRecurring() bool {
	for _, t := range e.Tags {
		if strings.Contains(strings.ToLower(t.Label), "recurring") {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the event carries at least one of the given tag
// labels (case-insensitive exact match).
func (e *MarketEvent) HasAnyTag(labels []string) bool {
	have := make(map[string]bool, len(e.Tags))
	for _, t := range e.Tags {
		have[strings.ToLower(t.Label)] = true
	}
	for _, l := range labels {
		if have[strings.ToLower(l)] {
			return true
		}
	}
	return false
}

// TitleMatches reports whether the title contains any keyword (case-insensitive).
func (e *MarketEvent) TitleMatches(keywords []string) bool {
	title := strings.ToLower(e.Title)
	for _, kw := range keywords {
		if strings.Contains(title, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// URL returns the public event page.
func (e *MarketEvent) URL() string {
	if e.Slug != "" {
		return EventBaseURL + e.Slug
	}
	return EventBaseURL + e.ID
}

// Resolution scans outcomes in order and returns the first one priced above
// ResolutionPrice. This is a heuristic; the upstream does not flag winners on
// the event record. Without a qualifying outcome it returns "Unknown" and nil.
func (e *MarketEvent) Resolution() (string, *float64) {
	for _, m := range e.Markets {
		price, ok := m.Price()
		if ok && price > ResolutionPrice {
			return m.Label(), &price
		}
	}
	return "Unknown", nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
