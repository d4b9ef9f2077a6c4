package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteStore is the append-only persistence boundary for normalized quotes.
type QuoteStore interface {
	AppendBatch(ctx context.Context, quotes []OddsQuote) error
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]OddsQuote, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OpportunityStore persists every opportunity a strategy produces,
// approved or not.
type OpportunityStore interface {
	Append(ctx context.Context, opp BettingOpportunity) error
	ListRecent(ctx context.Context, limit int) ([]BettingOpportunity, error)
}

// BetStore persists bet orders and serves the risk manager's rolling-window
// queries. The sum queries must be index-backed sums over a bounded window,
// never full scans.
type BetStore interface {
	Create(ctx context.Context, order BetOrder) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus, reason string) error
	Settle(ctx context.Context, id string, result BetResult, profitLoss decimal.Decimal) error
	GetByID(ctx context.Context, id string) (BetOrder, error)
	ListSettledBetween(ctx context.Context, from, to time.Time) ([]BetOrder, error)

	// StakeSumForEvent sums open committed stake for one event recorded in
	// [from, to). The risk manager uses it to recover exposure committed
	// before a restart.
	StakeSumForEvent(ctx context.Context, eventID string, from, to time.Time) (decimal.Decimal, error)
	// StakeSumForSport sums open committed stake for one sport recorded in
	// [from, to).
	StakeSumForSport(ctx context.Context, sport string, from, to time.Time) (decimal.Decimal, error)
	// LossSumWithin sums realized losses (settled, negative P&L) since the
	// cutoff, returned as a non-negative magnitude.
	LossSumWithin(ctx context.Context, since time.Time) (decimal.Decimal, error)
}

// ModelCache is the model boundary for the value-betting evaluator. The model
// itself is an external collaborator that publishes a probability per
// (event, selection); this interface only reads it.
type ModelCache interface {
	Probability(ctx context.Context, eventID, selection string) (decimal.Decimal, bool, error)
}

// EventBus publishes structured pipeline events for the alert/UI boundary.
// Delivery mechanics beyond the publish are external.
type EventBus interface {
	Publish(ctx context.Context, event string, fields map[string]any) error
}
