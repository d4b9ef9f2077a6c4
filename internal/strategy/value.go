package strategy

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tomvane/edgebot/internal/domain"
)

// ValueConfig holds the value-betting evaluator's tunables.
type ValueConfig struct {
	// EdgeThreshold is the minimum expected value per unit stake to emit.
	EdgeThreshold decimal.Decimal
	// Stake is the stake proposed per opportunity.
	Stake decimal.Decimal
	// MaxQuoteAge rejects quotes captured too long before the snapshot.
	MaxQuoteAge time.Duration
}

// Value compares an externally supplied model probability against the
// market-implied probability and emits an opportunity when the edge clears
// the threshold. The model is a collaborator behind domain.ModelCache; this
// evaluator only consumes a probability per selection, it never computes one.
type Value struct {
	cfg    ValueConfig
	model  domain.ModelCache
	logger *slog.Logger
}

// NewValue creates the evaluator.
func NewValue(cfg ValueConfig, model domain.ModelCache, logger *slog.Logger) *Value {
	return &Value{
		cfg:    cfg,
		model:  model,
		logger: logger.With(slog.String("component", "value_strategy")),
	}
}

// Name implements Evaluator.
func (v *Value) Name() string { return "value" }

// Evaluate implements Evaluator. Edge is model_probability * decimal_odds - 1,
// the expected value per unit stake.
func (v *Value) Evaluate(ctx context.Context, snap domain.OddsSnapshot) ([]domain.BettingOpportunity, error) {
	var out []domain.BettingOpportunity

	eventIDs := make([]string, 0, len(snap.Quotes))
	for id := range snap.Quotes {
		eventIDs = append(eventIDs, id)
	}
	sort.Strings(eventIDs)

	for _, eventID := range eventIDs {
		// A quote without its catalog event has no sport to attribute
		// exposure to.
		ev, ok := snap.Events[eventID]
		if !ok || ev.Status.Terminal() {
			continue
		}

		for _, q := range snap.Quotes[eventID] {
			if v.cfg.MaxQuoteAge > 0 && snap.TakenAt.Sub(q.CapturedAt) > v.cfg.MaxQuoteAge {
				continue
			}

			prob, found, err := v.model.Probability(ctx, eventID, q.Selection)
			if err != nil {
				v.logger.Warn("model lookup failed",
					slog.String("event_id", eventID),
					slog.String("selection", q.Selection),
					slog.String("error", err.Error()),
				)
				continue
			}
			if !found {
				continue
			}

			edge := prob.Mul(q.Odds).Sub(decimalOne)
			if edge.LessThan(v.cfg.EdgeThreshold) {
				continue
			}

			legs := []domain.OpportunityLeg{{
				Provider:  q.Provider,
				Selection: q.Selection,
				Odds:      q.Odds,
				QuoteID:   q.ID,
				Stake:     v.cfg.Stake,
			}}
			opp := domain.BettingOpportunity{
				Strategy:   v.Name(),
				EventID:    eventID,
				Sport:      ev.Sport,
				Market:     q.Market,
				Legs:       legs,
				Edge:       edge,
				Stake:      v.cfg.Stake,
				QuoteIDs:   []string{q.ID},
				DetectedAt: snap.TakenAt,
			}
			opp.ID = domain.OpportunityID(opp.Strategy, eventID, q.Market, legs, snap.TakenAt)
			out = append(out, opp)
		}
	}
	return out, nil
}

// Validate implements Evaluator.
func (v *Value) Validate(opp domain.BettingOpportunity) bool {
	return len(opp.Legs) == 1 && opp.Edge.GreaterThanOrEqual(v.cfg.EdgeThreshold)
}
