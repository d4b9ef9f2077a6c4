package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketType is the canonical market vocabulary. Provider-specific market
// names are mapped into this set by the normalizer; anything unrecognized
// maps to MarketOther so it is preserved rather than dropped.
type MarketType string

const (
	MarketMoneyline MarketType = "moneyline"
	MarketSpread    MarketType = "spread"
	MarketTotal     MarketType = "total"
	MarketProp      MarketType = "prop"
	MarketOther     MarketType = "other"
)

// QuoteKey identifies the logical pricing slot a quote fills. The aggregator
// keeps the latest quote per key within a cycle.
type QuoteKey struct {
	EventID   string
	Provider  string
	Market    MarketType
	Selection string
}

// OddsQuote is one provider reading for one selection. Quotes are immutable:
// a new reading is a new quote, never an in-place update. Odds is always in
// canonical decimal-odds form (stake-inclusive payout multiplier).
type OddsQuote struct {
	ID         string
	EventID    string
	Provider   string
	Market     MarketType
	Selection  string
	Odds       decimal.Decimal
	CapturedAt time.Time
	Metadata   map[string]string
}

// Key returns the pricing slot this quote belongs to.
func (q OddsQuote) Key() QuoteKey {
	return QuoteKey{EventID: q.EventID, Provider: q.Provider, Market: q.Market, Selection: q.Selection}
}

// ImpliedProbability returns 1/odds, the market's embedded outcome
// probability, as an exact decimal.
func (q OddsQuote) ImpliedProbability() decimal.Decimal {
	if q.Odds.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).DivRound(q.Odds, 12)
}
