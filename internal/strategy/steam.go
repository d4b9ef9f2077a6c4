package strategy

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tomvane/edgebot/internal/domain"
)

// SteamConfig holds the steam-chase evaluator's tunables.
type SteamConfig struct {
	// MoveThreshold is the minimum relative odds drop (0.05 = 5% shorter)
	// within the window that signals steam.
	MoveThreshold decimal.Decimal
	// Window is how far back movement is measured.
	Window time.Duration
	// Stake is the stake proposed per opportunity.
	Stake decimal.Decimal
	// MaxPointsPerKey bounds the per-key history length.
	MaxPointsPerKey int
}

// pricePoint is one odds observation for a key.
type pricePoint struct {
	at   time.Time
	odds decimal.Decimal
}

// Steam chases sharp line movement: it tracks odds across consecutive
// snapshots per (event, market, selection) and emits when the price shortens
// by more than the threshold inside the window. The history is the one piece
// of cross-cycle state in the engine; it is bounded per key and evicted as
// soon as the event reaches a terminal status.
type Steam struct {
	cfg     SteamConfig
	history map[domain.QuoteKey][]pricePoint
}

// NewSteam creates the evaluator.
func NewSteam(cfg SteamConfig) *Steam {
	if cfg.MaxPointsPerKey <= 0 {
		cfg.MaxPointsPerKey = 64
	}
	return &Steam{
		cfg:     cfg,
		history: make(map[domain.QuoteKey][]pricePoint),
	}
}

// Name implements Evaluator.
func (s *Steam) Name() string { return "steam_chase" }

// Evaluate implements Evaluator. Given the same snapshot and the same
// preceding history, output is identical on every invocation; the snapshot
// timestamp is the only clock consulted.
func (s *Steam) Evaluate(_ context.Context, snap domain.OddsSnapshot) ([]domain.BettingOpportunity, error) {
	s.evictTerminal(snap)

	var out []domain.BettingOpportunity

	eventIDs := make([]string, 0, len(snap.Quotes))
	for id := range snap.Quotes {
		eventIDs = append(eventIDs, id)
	}
	sort.Strings(eventIDs)

	for _, eventID := range eventIDs {
		ev, ok := snap.Events[eventID]
		if !ok || ev.Status.Terminal() {
			continue
		}

		for _, q := range snap.Quotes[eventID] {
			key := q.Key()
			s.observe(key, pricePoint{at: q.CapturedAt, odds: q.Odds}, snap.TakenAt)

			move, ok := s.movement(key, snap.TakenAt)
			if !ok || move.LessThan(s.cfg.MoveThreshold) {
				continue
			}

			legs := []domain.OpportunityLeg{{
				Provider:  q.Provider,
				Selection: q.Selection,
				Odds:      q.Odds,
				QuoteID:   q.ID,
				Stake:     s.cfg.Stake,
			}}
			opp := domain.BettingOpportunity{
				Strategy:   s.Name(),
				EventID:    eventID,
				Sport:      ev.Sport,
				Market:     q.Market,
				Legs:       legs,
				Edge:       move,
				Stake:      s.cfg.Stake,
				QuoteIDs:   []string{q.ID},
				DetectedAt: snap.TakenAt,
			}
			opp.ID = domain.OpportunityID(opp.Strategy, eventID, q.Market, legs, snap.TakenAt)
			out = append(out, opp)
		}
	}
	return out, nil
}

// observe appends a point unless it duplicates the last observation, then
// prunes outside the window and above the per-key bound.
func (s *Steam) observe(key domain.QuoteKey, pt pricePoint, now time.Time) {
	pts := s.history[key]
	if n := len(pts); n > 0 && pts[n-1].at.Equal(pt.at) && pts[n-1].odds.Equal(pt.odds) {
		return
	}
	pts = append(pts, pt)

	cutoff := now.Add(-s.cfg.Window)
	start := 0
	for start < len(pts)-1 && pts[start].at.Before(cutoff) {
		start++
	}
	pts = pts[start:]

	if len(pts) > s.cfg.MaxPointsPerKey {
		pts = pts[len(pts)-s.cfg.MaxPointsPerKey:]
	}
	s.history[key] = pts
}

// movement returns the relative shortening from the oldest in-window point to
// the newest: (old - new) / old. A lengthening line yields a negative value.
func (s *Steam) movement(key domain.QuoteKey, now time.Time) (decimal.Decimal, bool) {
	pts := s.history[key]
	if len(pts) < 2 {
		return decimal.Zero, false
	}

	cutoff := now.Add(-s.cfg.Window)
	oldest := pts[0]
	for _, pt := range pts {
		if !pt.at.Before(cutoff) {
			oldest = pt
			break
		}
	}
	newest := pts[len(pts)-1]
	if oldest.at.Equal(newest.at) || oldest.odds.IsZero() {
		return decimal.Zero, false
	}

	return oldest.odds.Sub(newest.odds).DivRound(oldest.odds, 12), true
}

// evictTerminal drops history for events that have completed or been
// cancelled, keeping the cross-cycle state bounded.
func (s *Steam) evictTerminal(snap domain.OddsSnapshot) {
	for key := range s.history {
		if ev, ok := snap.Events[key.EventID]; ok && ev.Status.Terminal() {
			delete(s.history, key)
		}
	}
}

// Validate implements Evaluator.
func (s *Steam) Validate(opp domain.BettingOpportunity) bool {
	return len(opp.Legs) == 1 && opp.Edge.GreaterThanOrEqual(s.cfg.MoveThreshold)
}

// HistorySize returns the number of tracked keys, for health reporting.
func (s *Steam) HistorySize() int { return len(s.history) }
