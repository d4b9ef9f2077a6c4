package strategy

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tomvane/edgebot/internal/domain"
)

// ArbitrageConfig holds the arbitrage evaluator's tunables.
type ArbitrageConfig struct {
	// MinProfitPct is the minimum guaranteed-return percentage to emit.
	MinProfitPct decimal.Decimal
	// MaxSkew is the widest allowed spread between the capture timestamps of
	// the combined quotes; a stale quote invalidates the guarantee.
	MaxSkew time.Duration
	// TotalStake is the stake to split across the legs.
	TotalStake decimal.Decimal
}

// Arbitrage finds cross-provider selection combinations whose implied
// probabilities sum to less than one. Stakes are split proportionally to
// inverse odds so the payout is equal across outcomes; the guaranteed return
// is 1/sum - 1 regardless of result.
type Arbitrage struct {
	cfg ArbitrageConfig
}

// NewArbitrage creates the evaluator.
func NewArbitrage(cfg ArbitrageConfig) *Arbitrage {
	return &Arbitrage{cfg: cfg}
}

// Name implements Evaluator.
func (a *Arbitrage) Name() string { return "arbitrage" }

var decimalOne = decimal.NewFromInt(1)

// Evaluate implements Evaluator. For each (event, market) it takes the best
// odds per selection across providers and emits one opportunity when the
// combination clears the profit floor and the skew bound.
func (a *Arbitrage) Evaluate(_ context.Context, snap domain.OddsSnapshot) ([]domain.BettingOpportunity, error) {
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
		sport := ev.Sport

		for _, market := range marketsOf(snap.Quotes[eventID]) {
			opp, found := a.evaluateMarket(eventID, sport, market, snap.Quotes[eventID], snap.TakenAt)
			if found {
				out = append(out, opp)
			}
		}
	}
	return out, nil
}

// evaluateMarket builds the best-price combination for one market and checks
// the arbitrage condition.
func (a *Arbitrage) evaluateMarket(eventID, sport string, market domain.MarketType, quotes []domain.OddsQuote, takenAt time.Time) (domain.BettingOpportunity, bool) {
	// Best odds per selection; first seen wins ties so output is stable.
	best := make(map[string]domain.OddsQuote)
	for _, q := range quotes {
		if q.Market != market {
			continue
		}
		cur, ok := best[q.Selection]
		if !ok || q.Odds.GreaterThan(cur.Odds) {
			best[q.Selection] = q
		}
	}
	if len(best) < 2 {
		return domain.BettingOpportunity{}, false
	}

	selections := make([]string, 0, len(best))
	for sel := range best {
		selections = append(selections, sel)
	}
	sort.Strings(selections)

	// Clock-skew guard across the combined quotes.
	var oldest, newest time.Time
	for i, sel := range selections {
		at := best[sel].CapturedAt
		if i == 0 || at.Before(oldest) {
			oldest = at
		}
		if i == 0 || at.After(newest) {
			newest = at
		}
	}
	if a.cfg.MaxSkew > 0 && newest.Sub(oldest) > a.cfg.MaxSkew {
		return domain.BettingOpportunity{}, false
	}

	sumImplied := decimal.Zero
	for _, sel := range selections {
		sumImplied = sumImplied.Add(best[sel].ImpliedProbability())
	}
	if sumImplied.GreaterThanOrEqual(decimalOne) {
		return domain.BettingOpportunity{}, false
	}

	// Guaranteed return per unit stake: 1/sum - 1.
	edge := decimalOne.DivRound(sumImplied, 12).Sub(decimalOne)
	profitPct := edge.Mul(decimal.NewFromInt(100))
	if profitPct.LessThan(a.cfg.MinProfitPct) {
		return domain.BettingOpportunity{}, false
	}

	// Stake split proportional to inverse odds equalizes the payout.
	legs := make([]domain.OpportunityLeg, 0, len(selections))
	quoteIDs := make([]string, 0, len(selections))
	for _, sel := range selections {
		q := best[sel]
		stake := a.cfg.TotalStake.Mul(q.ImpliedProbability()).DivRound(sumImplied, 6)
		legs = append(legs, domain.OpportunityLeg{
			Provider:  q.Provider,
			Selection: q.Selection,
			Odds:      q.Odds,
			QuoteID:   q.ID,
			Stake:     stake,
		})
		quoteIDs = append(quoteIDs, q.ID)
	}

	opp := domain.BettingOpportunity{
		Strategy:   a.Name(),
		EventID:    eventID,
		Sport:      sport,
		Market:     market,
		Legs:       legs,
		Edge:       edge,
		Stake:      a.cfg.TotalStake,
		QuoteIDs:   quoteIDs,
		DetectedAt: takenAt,
	}
	opp.ID = domain.OpportunityID(opp.Strategy, eventID, market, legs, takenAt)
	return opp, true
}

// Validate implements Evaluator: the combination must still clear the
// arbitrage condition and involve at least two providers — a single-book
// "arb" is a pricing error, not an opportunity.
func (a *Arbitrage) Validate(opp domain.BettingOpportunity) bool {
	if len(opp.Legs) < 2 || !opp.Edge.IsPositive() {
		return false
	}
	providers := make(map[string]struct{}, len(opp.Legs))
	for _, l := range opp.Legs {
		providers[l.Provider] = struct{}{}
	}
	return len(providers) >= 2
}

// marketsOf returns the distinct market types present, sorted for
// deterministic iteration.
func marketsOf(quotes []domain.OddsQuote) []domain.MarketType {
	seen := make(map[domain.MarketType]struct{})
	for _, q := range quotes {
		seen[q.Market] = struct{}{}
	}
	out := make([]domain.MarketType, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
