package domain

import "time"

// OddsSnapshot is the aggregator's point-in-time view of a sport: the latest
// quote per (event, provider, market, selection) across all providers, plus
// per-provider freshness. Snapshots are assembled once and then read-only;
// the strategy engine never mutates one.
type OddsSnapshot struct {
	Sport   string
	TakenAt time.Time

	// Events is the event catalog as of this snapshot, keyed by event ID.
	Events map[string]SportEvent

	// Quotes holds the latest quotes per event, keyed by event ID. Slice
	// order is deterministic (provider order, then payload order).
	Quotes map[string][]OddsQuote

	// Stale marks providers whose fetch failed or timed out this cycle.
	// Their quotes are simply absent; downstream strategies decide whether
	// cross-book comparisons remain valid.
	Stale map[string]bool
}

// Empty reports whether the snapshot carries no quotes at all. An empty
// snapshot is a valid cycle result (all strategies yield nothing), not a
// crash condition.
func (s OddsSnapshot) Empty() bool {
	for _, qs := range s.Quotes {
		if len(qs) > 0 {
			return false
		}
	}
	return true
}

// EventQuotes returns the latest quotes for one event, or nil.
func (s OddsSnapshot) EventQuotes(eventID string) []OddsQuote {
	return s.Quotes[eventID]
}

// IsStale reports whether the named provider failed to contribute this cycle.
func (s OddsSnapshot) IsStale(provider string) bool {
	return s.Stale[provider]
}
