package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomvane/edgebot/internal/domain"
	"github.com/tomvane/edgebot/internal/risk"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memBetStore is an in-memory BetStore for dispatcher tests.
type memBetStore struct {
	mu     sync.Mutex
	orders map[string]domain.BetOrder
	fail   bool
}

func newMemBetStore() *memBetStore {
	return &memBetStore{orders: make(map[string]domain.BetOrder)}
}

func (s *memBetStore) Create(_ context.Context, order domain.BetOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("db down")
	}
	s.orders[order.ID] = order
	return nil
}

func (s *memBetStore) UpdateStatus(_ context.Context, id string, status domain.OrderStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	order.Status = status
	order.Reason = reason
	s.orders[id] = order
	return nil
}

func (s *memBetStore) Settle(_ context.Context, id string, result domain.BetResult, pnl decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	order.Status = domain.OrderSettled
	order.Result = result
	order.ProfitLoss = pnl
	order.SettledAt = &now
	s.orders[id] = order
	return nil
}

func (s *memBetStore) GetByID(_ context.Context, id string) (domain.BetOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.BetOrder{}, domain.ErrNotFound
	}
	return order, nil
}

func (s *memBetStore) ListSettledBetween(context.Context, time.Time, time.Time) ([]domain.BetOrder, error) {
	return nil, nil
}

func (s *memBetStore) StakeSumForEvent(context.Context, string, time.Time, time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *memBetStore) StakeSumForSport(context.Context, string, time.Time, time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *memBetStore) LossSumWithin(context.Context, time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *memBetStore) single(t *testing.T) domain.BetOrder {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.orders, 1)
	for _, order := range s.orders {
		return order
	}
	return domain.BetOrder{}
}

// scriptedPlacer fails until the error is cleared.
type scriptedPlacer struct {
	err   error
	calls int
}

func (p *scriptedPlacer) PlaceOrAlert(_ context.Context, order domain.BetOrder) (domain.Confirmation, error) {
	p.calls++
	if p.err != nil {
		return domain.Confirmation{}, &domain.PlacementError{Venue: "book", Err: p.err}
	}
	return domain.Confirmation{OrderRef: "ref:" + order.ID, PlacedAt: time.Now().UTC()}, nil
}

// memBus records published pipeline events.
type memBus struct {
	mu     sync.Mutex
	events []string
}

func (b *memBus) Publish(_ context.Context, event string, _ map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func testRisk() *risk.Manager {
	return risk.NewManager(risk.Config{
		Bankroll:         decimal.NewFromInt(10000),
		PerBetPct:        decimal.RequireFromString("0.02"),
		DailyLossLimit:   decimal.NewFromInt(500),
		MaxEventExposure: decimal.NewFromInt(400),
		MaxSportExposure: decimal.NewFromInt(2000),
	}, nil, testLogger())
}

func testOpp(id string) domain.BettingOpportunity {
	return domain.BettingOpportunity{
		ID:       id,
		Strategy: "value",
		EventID:  "ev-1",
		Sport:    "soccer",
		Market:   domain.MarketMoneyline,
		Stake:    decimal.NewFromInt(100),
		Edge:     decimal.RequireFromString("0.08"),
		Legs: []domain.OpportunityLeg{{
			Provider: "sharpline", Selection: "home",
			Odds: decimal.RequireFromString("2.1"), Stake: decimal.NewFromInt(100),
		}},
		DetectedAt: time.Now().UTC(),
	}
}

// approve commits the opportunity through the risk manager so Dispatch
// operates on real committed exposure.
func approve(t *testing.T, rm *risk.Manager, opp domain.BettingOpportunity) decimal.Decimal {
	t.Helper()
	d, err := rm.Approve(context.Background(), opp)
	require.NoError(t, err)
	require.True(t, d.Approved)
	return d.Stake
}

func TestDispatchPlacesAndRecordsOrder(t *testing.T) {
	bets := newMemBetStore()
	bus := &memBus{}
	rm := testRisk()
	d := NewDispatcher(&scriptedPlacer{}, bets, rm, bus, nil, testLogger())

	opp := testOpp("opp-1")
	stake := approve(t, rm, opp)

	order, err := d.Dispatch(context.Background(), opp, stake)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPlaced, order.Status)
	assert.NotNil(t, order.PlacedAt)
	assert.True(t, order.Odds.Equal(decimal.RequireFromString("2.1")),
		"single-leg order carries the leg price")

	stored := bets.single(t)
	assert.Equal(t, domain.OrderPlaced, stored.Status)
	assert.Equal(t, "opp-1", stored.OpportunityID)
	assert.Equal(t, []string{"order_placed"}, bus.events)

	// Exposure stays committed while the bet is live.
	event, _, _ := rm.Exposure("ev-1", "soccer")
	assert.True(t, event.Equal(decimal.NewFromInt(100)))
}

func TestDispatchPlacementFailureReleasesExposure(t *testing.T) {
	bets := newMemBetStore()
	bus := &memBus{}
	rm := testRisk()
	placer := &scriptedPlacer{err: errors.New("venue rejected")}
	d := NewDispatcher(placer, bets, rm, bus, nil, testLogger())

	opp := testOpp("opp-1")
	stake := approve(t, rm, opp)

	order, err := d.Dispatch(context.Background(), opp, stake)
	require.Error(t, err)

	var perr *domain.PlacementError
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, domain.OrderRejected, order.Status)
	assert.Contains(t, order.Reason, "placement_failed:")

	stored := bets.single(t)
	assert.Equal(t, domain.OrderRejected, stored.Status)
	assert.Equal(t, []string{"placement_failed"}, bus.events)

	// The compensating release frees the budget for the next cycle.
	event, _, global := rm.Exposure("ev-1", "soccer")
	assert.True(t, event.IsZero(), "event exposure %s", event)
	assert.True(t, global.IsZero())
}

func TestDispatchPersistenceFailureReleasesExposure(t *testing.T) {
	bets := newMemBetStore()
	bets.fail = true
	rm := testRisk()
	placer := &scriptedPlacer{}
	d := NewDispatcher(placer, bets, rm, nil, nil, testLogger())

	opp := testOpp("opp-1")
	stake := approve(t, rm, opp)

	_, err := d.Dispatch(context.Background(), opp, stake)
	require.Error(t, err)
	assert.Equal(t, 0, placer.calls, "an unrecorded order must never reach the venue")

	event, _, _ := rm.Exposure("ev-1", "soccer")
	assert.True(t, event.IsZero())
}

func TestRecordRejectionAudits(t *testing.T) {
	bets := newMemBetStore()
	bus := &memBus{}
	rm := testRisk()
	d := NewDispatcher(&scriptedPlacer{}, bets, rm, bus, nil, testLogger())

	opp := testOpp("opp-1")
	d.RecordRejection(context.Background(), opp, risk.Decision{
		Approved: false,
		Reason:   domain.RejectPerBetLimit,
		Detail:   "stake 300 exceeds per-bet limit 200",
	})

	stored := bets.single(t)
	assert.Equal(t, domain.OrderRejected, stored.Status)
	assert.Equal(t, domain.ResultVoid, stored.Result)
	assert.Equal(t, string(domain.RejectPerBetLimit), stored.Reason)
	assert.Equal(t, []string{"risk_rejected"}, bus.events)
}

func TestSettleReleasesExposureAndPublishes(t *testing.T) {
	bets := newMemBetStore()
	bus := &memBus{}
	rm := testRisk()
	d := NewDispatcher(&scriptedPlacer{}, bets, rm, bus, nil, testLogger())

	opp := testOpp("opp-1")
	stake := approve(t, rm, opp)
	order, err := d.Dispatch(context.Background(), opp, stake)
	require.NoError(t, err)

	loss := decimal.NewFromInt(-100)
	require.NoError(t, d.Settle(context.Background(), order.ID, domain.ResultLoss, loss))

	stored := bets.single(t)
	assert.Equal(t, domain.OrderSettled, stored.Status)
	assert.Equal(t, domain.ResultLoss, stored.Result)
	assert.True(t, stored.ProfitLoss.Equal(loss))
	assert.NotNil(t, stored.SettledAt)
	assert.Equal(t, []string{"order_placed", "bet_settled"}, bus.events)

	event, _, global := rm.Exposure("ev-1", "soccer")
	assert.True(t, event.IsZero())
	assert.True(t, global.IsZero())
}

func TestSettleUnknownOrder(t *testing.T) {
	d := NewDispatcher(&scriptedPlacer{}, newMemBetStore(), testRisk(), nil, nil, testLogger())
	err := d.Settle(context.Background(), "missing", domain.ResultWin, decimal.NewFromInt(50))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCombinedOddsMultiLeg(t *testing.T) {
	opp := testOpp("opp-1")
	opp.Legs = append(opp.Legs, domain.OpportunityLeg{
		Provider: "oddspush", Selection: "away",
		Odds: decimal.RequireFromString("2.1"), Stake: decimal.NewFromInt(100),
	})
	// Arbitrage orders carry the guaranteed payout multiplier, 1 + edge.
	assert.True(t, combinedOdds(opp).Equal(decimal.RequireFromString("1.08")))
}
