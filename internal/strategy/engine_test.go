package strategy

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
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var snapTime = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

// snapQuote builds a quote captured at the snapshot time unless shifted.
func snapQuote(id, eventID, prov, selection, odds string, shift time.Duration) domain.OddsQuote {
	return domain.OddsQuote{
		ID:         id,
		EventID:    eventID,
		Provider:   prov,
		Market:     domain.MarketMoneyline,
		Selection:  selection,
		Odds:       decimal.RequireFromString(odds),
		CapturedAt: snapTime.Add(shift),
	}
}

func snapshot(sport string, events map[string]domain.SportEvent, quotes ...domain.OddsQuote) domain.OddsSnapshot {
	snap := domain.OddsSnapshot{
		Sport:   sport,
		TakenAt: snapTime,
		Events:  events,
		Quotes:  make(map[string][]domain.OddsQuote),
		Stale:   make(map[string]bool),
	}
	for _, q := range quotes {
		snap.Quotes[q.EventID] = append(snap.Quotes[q.EventID], q)
	}
	return snap
}

func liveEvent(id, sport string) map[string]domain.SportEvent {
	return map[string]domain.SportEvent{
		id: {ID: id, Sport: sport, Status: domain.EventLive},
	}
}

// scriptedEvaluator plays back canned results for engine tests.
type scriptedEvaluator struct {
	name      string
	opps      []domain.BettingOpportunity
	err       error
	panics    bool
	rejectAll bool
	calls     int
}

func (e *scriptedEvaluator) Name() string { return e.name }

func (e *scriptedEvaluator) Evaluate(context.Context, domain.OddsSnapshot) ([]domain.BettingOpportunity, error) {
	e.calls++
	if e.panics {
		panic("scripted panic")
	}
	return e.opps, e.err
}

func (e *scriptedEvaluator) Validate(domain.BettingOpportunity) bool { return !e.rejectAll }

// recordingOppStore captures Append calls.
type recordingOppStore struct {
	mu       sync.Mutex
	appended []domain.BettingOpportunity
}

func (s *recordingOppStore) Append(_ context.Context, opp domain.BettingOpportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, opp)
	return nil
}

func (s *recordingOppStore) ListRecent(context.Context, int) ([]domain.BettingOpportunity, error) {
	return nil, nil
}

func oppFixture(id, strategy string) domain.BettingOpportunity {
	return domain.BettingOpportunity{
		ID:       id,
		Strategy: strategy,
		EventID:  "ev-1",
		Sport:    "soccer",
		Market:   domain.MarketMoneyline,
		Legs: []domain.OpportunityLeg{{
			Provider: "sharpline", Selection: "home",
			Odds: decimal.RequireFromString("2.1"), Stake: decimal.NewFromInt(50),
		}},
		Edge:       decimal.RequireFromString("0.05"),
		Stake:      decimal.NewFromInt(50),
		DetectedAt: snapTime,
	}
}

func TestEngineDeduplicatesByOpportunityID(t *testing.T) {
	eval := &scriptedEvaluator{name: "a", opps: []domain.BettingOpportunity{oppFixture("opp-1", "a")}}
	reg := NewRegistry()
	reg.Register(eval)
	e := NewEngine(reg, nil, 1, testLogger())

	snap := snapshot("soccer", nil)
	first := e.Evaluate(context.Background(), snap)
	require.Len(t, first, 1)

	second := e.Evaluate(context.Background(), snap)
	assert.Empty(t, second, "an unchanged snapshot must re-emit nothing")
}

func TestEnginePanicIsolatesToOneStrategy(t *testing.T) {
	bad := &scriptedEvaluator{name: "bad", panics: true}
	good := &scriptedEvaluator{name: "good", opps: []domain.BettingOpportunity{oppFixture("opp-1", "good")}}
	reg := NewRegistry()
	reg.Register(bad)
	reg.Register(good)
	e := NewEngine(reg, nil, 1, testLogger())

	out := e.Evaluate(context.Background(), snapshot("soccer", nil))
	require.Len(t, out, 1)
	assert.Equal(t, "good", out[0].Strategy)
	assert.Equal(t, 1, bad.calls, "the panicking strategy still ran")
}

func TestEngineEvaluatorErrorYieldsNothing(t *testing.T) {
	failing := &scriptedEvaluator{name: "failing", err: errors.New("model offline")}
	reg := NewRegistry()
	reg.Register(failing)
	e := NewEngine(reg, nil, 1, testLogger())

	out := e.Evaluate(context.Background(), snapshot("soccer", nil))
	assert.Empty(t, out)
}

func TestEngineDropsOpportunitiesFailingValidation(t *testing.T) {
	eval := &scriptedEvaluator{
		name:      "a",
		opps:      []domain.BettingOpportunity{oppFixture("opp-1", "a")},
		rejectAll: true,
	}
	reg := NewRegistry()
	reg.Register(eval)
	e := NewEngine(reg, nil, 1, testLogger())

	out := e.Evaluate(context.Background(), snapshot("soccer", nil))
	assert.Empty(t, out)
}

func TestEnginePersistsAndStampsConfigVersion(t *testing.T) {
	eval := &scriptedEvaluator{name: "a", opps: []domain.BettingOpportunity{oppFixture("opp-1", "a")}}
	reg := NewRegistry()
	reg.Register(eval)
	store := &recordingOppStore{}
	e := NewEngine(reg, store, 3, testLogger())

	out := e.Evaluate(context.Background(), snapshot("soccer", nil))
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].ConfigVersion)
	require.Len(t, store.appended, 1)
	assert.Equal(t, "opp-1", store.appended[0].ID)

	e.SetConfigVersion(4)
	eval.opps = []domain.BettingOpportunity{oppFixture("opp-2", "a")}
	out = e.Evaluate(context.Background(), snapshot("soccer", nil))
	require.Len(t, out, 1)
	assert.Equal(t, 4, out[0].ConfigVersion)
}

func TestEngineRunsEvaluatorsInRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&scriptedEvaluator{name: "second", opps: []domain.BettingOpportunity{oppFixture("opp-2", "second")}})
	reg.Register(&scriptedEvaluator{name: "first", opps: []domain.BettingOpportunity{oppFixture("opp-1", "first")}})
	e := NewEngine(reg, nil, 1, testLogger())

	out := e.Evaluate(context.Background(), snapshot("soccer", nil))
	require.Len(t, out, 2)
	assert.Equal(t, "second", out[0].Strategy)
	assert.Equal(t, "first", out[1].Strategy)
}

func TestRegistryReplaceKeepsPosition(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&scriptedEvaluator{name: "a"})
	reg.Register(&scriptedEvaluator{name: "b"})
	replacement := &scriptedEvaluator{name: "a", opps: []domain.BettingOpportunity{oppFixture("x", "a")}}
	reg.Register(replacement)

	assert.Equal(t, []string{"a", "b"}, reg.Names())
	got, err := reg.Get("a")
	require.NoError(t, err)
	assert.Same(t, Evaluator(replacement), got)

	_, err = reg.Get("missing")
	assert.Error(t, err)
}
