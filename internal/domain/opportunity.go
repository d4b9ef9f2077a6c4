package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityLeg is one stake placed at one provider as part of an
// opportunity. Arbitrage opportunities carry one leg per outcome; value and
// steam opportunities carry a single leg.
type OpportunityLeg struct {
	Provider  string
	Selection string
	Odds      decimal.Decimal
	QuoteID   string
	Stake     decimal.Decimal
}

// BettingOpportunity is an immutable record produced by a strategy evaluator.
// Edge is the expected profit per unit of total stake. QuoteIDs are the
// provenance trail back to the quotes the decision was made from.
type BettingOpportunity struct {
	ID            string
	Strategy      string
	ConfigVersion int
	EventID       string
	Sport         string
	Market        MarketType
	Legs          []OpportunityLeg
	Edge          decimal.Decimal
	Stake         decimal.Decimal
	QuoteIDs      []string
	DetectedAt    time.Time
}

// OpportunityID derives the deterministic identifier for an opportunity from
// its dedup key: (strategy, event, market, selection set, snapshot time).
// Re-evaluating an unchanged snapshot reproduces the same ID, which is how
// the engine guarantees an opportunity is never emitted twice.
func OpportunityID(strategy, eventID string, market MarketType, legs []OpportunityLeg, detectedAt time.Time) string {
	parts := make([]string, 0, len(legs))
	for _, l := range legs {
		parts = append(parts, l.Provider+"/"+l.Selection)
	}
	sort.Strings(parts)

	h := sha256.New()
	h.Write([]byte(strategy))
	h.Write([]byte{0})
	h.Write([]byte(eventID))
	h.Write([]byte{0})
	h.Write([]byte(market))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(parts, "|")))
	h.Write([]byte{0})
	h.Write([]byte(detectedAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))[:32]
}
