// Package strategy holds the pluggable opportunity evaluators and the engine
// that runs them over each odds snapshot. Evaluators are deterministic: the
// same snapshot (plus, for stateful evaluators, the same preceding history)
// always produces the same opportunities.
package strategy

import (
	"context"

	"github.com/tomvane/edgebot/internal/domain"
)

// Evaluator is the capability every strategy implements. Evaluate inspects a
// frozen snapshot and emits zero or more opportunities; Validate is the
// strategy's own sanity check on a single opportunity, distinct from the risk
// manager's global limits. Evaluators never see each other's output within a
// cycle.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, snap domain.OddsSnapshot) ([]domain.BettingOpportunity, error)
	Validate(opp domain.BettingOpportunity) bool
}
