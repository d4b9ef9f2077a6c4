package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tomvane/edgebot/internal/domain"
)

// CorrelationGroup names a set of market types that count as one position
// within the same event. Groups come from external configuration; this
// component never computes correlation itself.
type CorrelationGroup struct {
	Name    string
	Markets []domain.MarketType
}

// Config holds the risk manager's limits. All values are configuration, not
// constants; stake limits are absolute amounts except PerBetPct, which is a
// fraction of bankroll.
type Config struct {
	Bankroll         decimal.Decimal
	PerBetPct        decimal.Decimal // e.g. 0.02 for 2% of bankroll per bet
	DailyLossLimit   decimal.Decimal
	MaxEventExposure decimal.Decimal
	MaxSportExposure decimal.Decimal
	Correlations     []CorrelationGroup
	// AllowDownsize shrinks a stake to the remaining event headroom instead
	// of rejecting, provided the result stays at or above MinStake.
	AllowDownsize bool
	MinStake      decimal.Decimal
	// Window is the rolling window for exposure and loss accounting.
	Window time.Duration
}

// Decision is the outcome of one approval pass. Stake is the committed
// amount, which may be smaller than proposed when downsizing applies.
type Decision struct {
	Approved bool
	Reason   domain.RejectReason
	Detail   string
	Stake    decimal.Decimal
}

// BetReader is the slice of the persistence boundary the manager needs:
// index-backed sums over bounded windows. The stake sums recover exposure
// committed before a restart, so open bets keep consuming headroom across
// process lifetimes.
type BetReader interface {
	LossSumWithin(ctx context.Context, since time.Time) (decimal.Decimal, error)
	StakeSumForEvent(ctx context.Context, eventID string, from, to time.Time) (decimal.Decimal, error)
	StakeSumForSport(ctx context.Context, sport string, from, to time.Time) (decimal.Decimal, error)
}

// Manager applies the ordered risk checks and owns the exposure ledger. Every
// approval decision — reads and the commit — happens under one lock, so
// exposure figures always reflect all previously approved opportunities,
// never a stale view, regardless of how many sport cycles run concurrently.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	ledger *Ledger
	store  BetReader
	logger *slog.Logger

	// started bounds the store's stake sums: bets recorded at or after it
	// are already in the ledger.
	started time.Time

	now func() time.Time
}

// NewManager creates a Manager. store may be nil, in which case decisions
// consider in-process exposure only.
func NewManager(cfg Config, store BetReader, logger *slog.Logger) *Manager {
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	return &Manager{
		cfg:     cfg,
		ledger:  NewLedger(cfg.Window),
		store:   store,
		logger:  logger.With(slog.String("component", "risk_manager")),
		started: time.Now().UTC(),
		now:     time.Now,
	}
}

// SetConfig swaps the limits. Called at cycle boundaries only.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.Window <= 0 {
		cfg.Window = m.cfg.Window
	}
	m.cfg = cfg
}

// Approve runs the fixed check order against one opportunity and, when all
// checks pass, atomically commits the stake to the ledger under the
// opportunity's ID. The first failing check determines the rejection reason.
func (m *Manager) Approve(ctx context.Context, opp domain.BettingOpportunity) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.ledger.Prune(now)
	windowStart := now.Add(-m.cfg.Window)

	stake := opp.Stake

	// 1. Per-bet stake cap as a fraction of bankroll.
	perBetLimit := m.cfg.Bankroll.Mul(m.cfg.PerBetPct)
	if stake.GreaterThan(perBetLimit) {
		return m.reject(opp, domain.RejectPerBetLimit,
			fmt.Sprintf("stake %s exceeds per-bet limit %s", stake, perBetLimit)), nil
	}

	// 2. Rolling-day loss circuit breaker: realized losses plus stake already
	// at risk. Once at the limit, nothing passes until the window advances.
	realized := decimal.Zero
	if m.store != nil {
		var err error
		realized, err = m.store.LossSumWithin(ctx, windowStart)
		if err != nil {
			return Decision{}, fmt.Errorf("risk: loss sum query: %w", err)
		}
	}
	atRisk := realized.Add(m.ledger.GlobalExposure())
	if atRisk.GreaterThanOrEqual(m.cfg.DailyLossLimit) {
		return m.reject(opp, domain.RejectDailyLossLimit,
			fmt.Sprintf("loss+pending %s at or over daily limit %s", atRisk, m.cfg.DailyLossLimit)), nil
	}

	// 3. Post-commit per-event exposure: in-memory commits plus open stake
	// persisted before this process started and still inside the window.
	eventExp := m.ledger.EventExposure(opp.EventID)
	if m.store != nil && m.started.After(windowStart) {
		prior, err := m.store.StakeSumForEvent(ctx, opp.EventID, windowStart, m.started)
		if err != nil {
			return Decision{}, fmt.Errorf("risk: event stake query: %w", err)
		}
		eventExp = eventExp.Add(prior)
	}
	if eventExp.Add(stake).GreaterThan(m.cfg.MaxEventExposure) {
		headroom := m.cfg.MaxEventExposure.Sub(eventExp)
		if !m.cfg.AllowDownsize || headroom.LessThan(m.cfg.MinStake) {
			return m.reject(opp, domain.RejectEventExposure,
				fmt.Sprintf("event exposure %s + %s exceeds cap %s", eventExp, stake, m.cfg.MaxEventExposure)), nil
		}
		stake = headroom
	}

	// 4. Post-commit per-sport exposure.
	sportExp := m.ledger.SportExposure(opp.Sport)
	if m.store != nil && m.started.After(windowStart) {
		prior, err := m.store.StakeSumForSport(ctx, opp.Sport, windowStart, m.started)
		if err != nil {
			return Decision{}, fmt.Errorf("risk: sport stake query: %w", err)
		}
		sportExp = sportExp.Add(prior)
	}
	if sportExp.Add(stake).GreaterThan(m.cfg.MaxSportExposure) {
		headroom := m.cfg.MaxSportExposure.Sub(sportExp)
		if !m.cfg.AllowDownsize || headroom.LessThan(m.cfg.MinStake) {
			return m.reject(opp, domain.RejectSportExposure,
				fmt.Sprintf("sport exposure %s + %s exceeds cap %s", sportExp, stake, m.cfg.MaxSportExposure)), nil
		}
		stake = headroom
	}

	// 5. Correlation against already-committed open positions.
	if group, hit := m.correlated(opp); hit {
		return m.reject(opp, domain.RejectCorrelation,
			fmt.Sprintf("market %s correlated with open position via group %s", opp.Market, group)), nil
	}

	m.ledger.Commit(opp.ID, opp.EventID, opp.Sport, opp.Market, stake, now)
	m.logger.Info("opportunity approved",
		slog.String("opportunity_id", opp.ID),
		slog.String("strategy", opp.Strategy),
		slog.String("stake", stake.String()),
	)
	return Decision{Approved: true, Stake: stake}, nil
}

// Release returns a committed stake to the budget, the compensating action
// when a downstream placement fails.
func (m *Manager) Release(oppID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.Release(oppID)
	m.logger.Info("exposure released", slog.String("opportunity_id", oppID))
}

// Exposure reports the current (event, sport, global) committed totals.
func (m *Manager) Exposure(eventID, sport string) (event, sportTotal, global decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.EventExposure(eventID), m.ledger.SportExposure(sport), m.ledger.GlobalExposure()
}

// correlated reports whether the opportunity's market shares a correlation
// group with any open position on the same event. Caller holds m.mu.
func (m *Manager) correlated(opp domain.BettingOpportunity) (string, bool) {
	openMarkets := m.ledger.OpenMarkets(opp.EventID)
	if len(openMarkets) == 0 {
		return "", false
	}
	for _, g := range m.cfg.Correlations {
		if !containsMarket(g.Markets, opp.Market) {
			continue
		}
		for _, open := range openMarkets {
			if containsMarket(g.Markets, open) {
				return g.Name, true
			}
		}
	}
	return "", false
}

func containsMarket(ms []domain.MarketType, m domain.MarketType) bool {
	for _, x := range ms {
		if x == m {
			return true
		}
	}
	return false
}

func (m *Manager) reject(opp domain.BettingOpportunity, reason domain.RejectReason, detail string) Decision {
	m.logger.Info("opportunity rejected",
		slog.String("opportunity_id", opp.ID),
		slog.String("strategy", opp.Strategy),
		slog.String("reason", string(reason)),
		slog.String("detail", detail),
	)
	return Decision{Approved: false, Reason: reason, Detail: detail, Stake: decimal.Zero}
}
