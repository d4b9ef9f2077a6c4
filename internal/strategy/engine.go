package strategy

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/tomvane/edgebot/internal/domain"
)

// Engine runs every registered evaluator over each snapshot, in registration
// order, each isolated from the others: a panic or error in one evaluator is
// caught at the strategy boundary and treated as "no opportunities from this
// strategy this cycle". Emitted opportunities are deduplicated by their
// deterministic IDs, so re-evaluating an unchanged snapshot re-emits nothing.
type Engine struct {
	registry      *Registry
	store         domain.OpportunityStore
	configVersion int
	logger        *slog.Logger

	mu      sync.Mutex
	emitted map[string]time.Time // opportunity ID -> first emit time
	dedupTTL time.Duration
}

// NewEngine creates an Engine. store may be nil; when set, every emitted
// opportunity is appended through the persistence boundary. configVersion is
// stamped on each opportunity so records stay attributable to the config that
// produced them across hot reloads.
func NewEngine(registry *Registry, store domain.OpportunityStore, configVersion int, logger *slog.Logger) *Engine {
	return &Engine{
		registry:      registry,
		store:         store,
		configVersion: configVersion,
		logger:        logger.With(slog.String("component", "strategy_engine")),
		emitted:       make(map[string]time.Time),
		dedupTTL:      24 * time.Hour,
	}
}

// SetConfigVersion updates the version stamped on new opportunities. Called
// at cycle boundaries only; opportunities already produced keep their
// original version.
func (e *Engine) SetConfigVersion(v int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configVersion = v
}

// Evaluate runs all evaluators over one frozen snapshot and returns the
// deduplicated opportunities in deterministic order.
func (e *Engine) Evaluate(ctx context.Context, snap domain.OddsSnapshot) []domain.BettingOpportunity {
	var out []domain.BettingOpportunity

	for _, eval := range e.registry.List() {
		opps := e.runOne(ctx, eval, snap)
		for _, opp := range opps {
			if !eval.Validate(opp) {
				e.logger.Debug("opportunity failed strategy validation",
					slog.String("strategy", eval.Name()),
					slog.String("opportunity_id", opp.ID),
				)
				continue
			}
			if e.alreadyEmitted(opp.ID, snap.TakenAt) {
				continue
			}
			opp.ConfigVersion = e.version()
			out = append(out, opp)

			if e.store != nil {
				if err := e.store.Append(ctx, opp); err != nil {
					e.logger.Error("opportunity persistence failed",
						slog.String("opportunity_id", opp.ID),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}

	e.pruneEmitted(snap.TakenAt)
	return out
}

// runOne executes a single evaluator with panic containment.
func (e *Engine) runOne(ctx context.Context, eval Evaluator, snap domain.OddsSnapshot) (opps []domain.BettingOpportunity) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("strategy panicked, skipping for this cycle",
				slog.String("strategy", eval.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			opps = nil
		}
	}()

	opps, err := eval.Evaluate(ctx, snap)
	if err != nil {
		e.logger.Warn("strategy evaluation failed",
			slog.String("strategy", eval.Name()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return opps
}

func (e *Engine) version() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.configVersion
}

// alreadyEmitted records the ID and reports whether it was seen before.
func (e *Engine) alreadyEmitted(id string, at time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.emitted[id]; ok {
		return true
	}
	e.emitted[id] = at
	return false
}

// pruneEmitted drops dedup entries older than the TTL. IDs embed the snapshot
// timestamp, so anything this old can never recur.
func (e *Engine) pruneEmitted(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cutoff := now.Add(-e.dedupTTL)
	for id, at := range e.emitted {
		if at.Before(cutoff) {
			delete(e.emitted, id)
		}
	}
}
