// Package risk validates opportunities against bankroll and exposure limits.
// The ledger is the single shared mutable resource of the pipeline; every
// mutation goes through the Manager under one lock, because exposure limits
// are a financial safety invariant.
package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tomvane/edgebot/internal/domain"
)

// ledgerEntry is one committed stake, kept for rolling-window pruning and
// release.
type ledgerEntry struct {
	orderID string
	eventID string
	sport   string
	market  domain.MarketType
	stake   decimal.Decimal
	at      time.Time
}

// Ledger tracks committed stake per event, per sport, and globally over a
// rolling window. It is not safe for concurrent use on its own: the Manager
// serializes all access.
type Ledger struct {
	window  time.Duration
	byEvent map[string]decimal.Decimal
	bySport map[string]decimal.Decimal
	global  decimal.Decimal
	// open tracks committed stake per (event, market) for correlation checks.
	open    map[string]map[domain.MarketType]decimal.Decimal
	entries []ledgerEntry
}

// NewLedger creates a ledger with the given rolling window (typically 24h).
func NewLedger(window time.Duration) *Ledger {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Ledger{
		window:  window,
		byEvent: make(map[string]decimal.Decimal),
		bySport: make(map[string]decimal.Decimal),
		open:    make(map[string]map[domain.MarketType]decimal.Decimal),
	}
}

// Commit records a stake against the event, sport, and global totals.
func (l *Ledger) Commit(orderID, eventID, sport string, market domain.MarketType, stake decimal.Decimal, at time.Time) {
	l.byEvent[eventID] = l.byEvent[eventID].Add(stake)
	l.bySport[sport] = l.bySport[sport].Add(stake)
	l.global = l.global.Add(stake)

	if l.open[eventID] == nil {
		l.open[eventID] = make(map[domain.MarketType]decimal.Decimal)
	}
	l.open[eventID][market] = l.open[eventID][market].Add(stake)

	l.entries = append(l.entries, ledgerEntry{
		orderID: orderID, eventID: eventID, sport: sport, market: market, stake: stake, at: at,
	})
}

// Release removes a previously committed stake, the compensating action for
// a failed placement. Unknown order IDs are a no-op.
func (l *Ledger) Release(orderID string) {
	for i, e := range l.entries {
		if e.orderID != orderID {
			continue
		}
		l.subtract(e)
		l.entries = append(l.entries[:i], l.entries[i+1:]...)
		return
	}
}

// Prune drops entries that have left the rolling window.
func (l *Ledger) Prune(now time.Time) {
	cutoff := now.Add(-l.window)
	keep := l.entries[:0]
	for _, e := range l.entries {
		if e.at.After(cutoff) {
			keep = append(keep, e)
		} else {
			l.subtract(e)
		}
	}
	l.entries = keep
}

func (l *Ledger) subtract(e ledgerEntry) {
	l.byEvent[e.eventID] = l.byEvent[e.eventID].Sub(e.stake)
	if l.byEvent[e.eventID].IsZero() {
		delete(l.byEvent, e.eventID)
	}
	l.bySport[e.sport] = l.bySport[e.sport].Sub(e.stake)
	if l.bySport[e.sport].IsZero() {
		delete(l.bySport, e.sport)
	}
	l.global = l.global.Sub(e.stake)

	if markets := l.open[e.eventID]; markets != nil {
		markets[e.market] = markets[e.market].Sub(e.stake)
		if markets[e.market].IsZero() {
			delete(markets, e.market)
		}
		if len(markets) == 0 {
			delete(l.open, e.eventID)
		}
	}
}

// EventExposure returns committed stake for one event.
func (l *Ledger) EventExposure(eventID string) decimal.Decimal { return l.byEvent[eventID] }

// SportExposure returns committed stake for one sport.
func (l *Ledger) SportExposure(sport string) decimal.Decimal { return l.bySport[sport] }

// GlobalExposure returns total committed stake in the window.
func (l *Ledger) GlobalExposure() decimal.Decimal { return l.global }

// OpenMarkets returns the markets with committed stake on an event.
func (l *Ledger) OpenMarkets(eventID string) []domain.MarketType {
	out := make([]domain.MarketType, 0, len(l.open[eventID]))
	for m := range l.open[eventID] {
		out = append(out, m)
	}
	return out
}
