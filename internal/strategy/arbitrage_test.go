package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomvane/edgebot/internal/domain"
)

func arbConfig() ArbitrageConfig {
	return ArbitrageConfig{
		MinProfitPct: decimal.NewFromInt(1),
		MaxSkew:      10 * time.Second,
		TotalStake:   decimal.NewFromInt(100),
	}
}

func TestArbitrageEmitsWhenImpliedSumBelowOne(t *testing.T) {
	a := NewArbitrage(arbConfig())
	snap := snapshot("soccer", liveEvent("ev-1", "soccer"),
		snapQuote("q1", "ev-1", "sharpline", "home", "2.10", 0),
		snapQuote("q2", "ev-1", "oddspush", "away", "2.10", 0),
	)

	opps, err := a.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "arbitrage", opp.Strategy)
	assert.Equal(t, "ev-1", opp.EventID)
	require.Len(t, opp.Legs, 2)

	// 1/2.1 + 1/2.1 = 0.952..., guaranteed return 1/0.952... - 1 = 5%.
	tolerance := decimal.RequireFromString("0.0001")
	assert.True(t, opp.Edge.Sub(decimal.RequireFromString("0.05")).Abs().LessThan(tolerance),
		"edge %s not within tolerance of 5%%", opp.Edge)

	// Equal odds split the stake evenly, and the payout is equal either way.
	for _, leg := range opp.Legs {
		assert.True(t, leg.Stake.Equal(decimal.NewFromInt(50)), "leg stake %s", leg.Stake)
	}
	assert.True(t, a.Validate(opp))
}

func TestArbitrageSkipsQuotesWithoutCatalogEvent(t *testing.T) {
	a := NewArbitrage(arbConfig())
	// A clean two-way arb, but the event never made it into the catalog.
	snap := snapshot("soccer", liveEvent("ev-1", "soccer"),
		snapQuote("q1", "ev-ghost", "sharpline", "home", "2.10", 0),
		snapQuote("q2", "ev-ghost", "oddspush", "away", "2.10", 0),
	)

	opps, err := a.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestArbitrageIgnoresOverroundMarkets(t *testing.T) {
	a := NewArbitrage(arbConfig())
	// 1/1.90 + 1/1.90 > 1: the bookmaker margin is intact, no arb exists.
	snap := snapshot("soccer", liveEvent("ev-1", "soccer"),
		snapQuote("q1", "ev-1", "sharpline", "home", "1.90", 0),
		snapQuote("q2", "ev-1", "oddspush", "away", "1.90", 0),
	)

	opps, err := a.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestArbitrageRespectsProfitFloor(t *testing.T) {
	cfg := arbConfig()
	cfg.MinProfitPct = decimal.NewFromInt(6)
	a := NewArbitrage(cfg)
	snap := snapshot("soccer", liveEvent("ev-1", "soccer"),
		snapQuote("q1", "ev-1", "sharpline", "home", "2.10", 0),
		snapQuote("q2", "ev-1", "oddspush", "away", "2.10", 0),
	)

	opps, err := a.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, opps, "a 5%% arb must not clear a 6%% floor")
}

func TestArbitrageRejectsSkewedCaptureTimes(t *testing.T) {
	cfg := arbConfig()
	cfg.MaxSkew = 2 * time.Second
	a := NewArbitrage(cfg)
	snap := snapshot("soccer", liveEvent("ev-1", "soccer"),
		snapQuote("q1", "ev-1", "sharpline", "home", "2.10", -5*time.Second),
		snapQuote("q2", "ev-1", "oddspush", "away", "2.10", 0),
	)

	opps, err := a.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, opps, "a stale leg invalidates the guarantee")
}

func TestArbitragePicksBestOddsPerSelection(t *testing.T) {
	a := NewArbitrage(arbConfig())
	snap := snapshot("soccer", liveEvent("ev-1", "soccer"),
		snapQuote("q1", "ev-1", "sharpline", "home", "1.90", 0),
		snapQuote("q2", "ev-1", "oddspush", "home", "2.10", 0),
		snapQuote("q3", "ev-1", "sharpline", "away", "2.10", 0),
	)

	opps, err := a.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	byProvider := make(map[string]string)
	for _, leg := range opps[0].Legs {
		byProvider[leg.Selection] = leg.Provider
	}
	assert.Equal(t, "oddspush", byProvider["home"], "the better home price wins the leg")
	assert.Equal(t, "sharpline", byProvider["away"])
}

func TestArbitrageSkipsTerminalEventsAndSingleSelections(t *testing.T) {
	a := NewArbitrage(arbConfig())

	done := map[string]domain.SportEvent{
		"ev-1": {ID: "ev-1", Sport: "soccer", Status: domain.EventCompleted},
	}
	snap := snapshot("soccer", done,
		snapQuote("q1", "ev-1", "sharpline", "home", "2.10", 0),
		snapQuote("q2", "ev-1", "oddspush", "away", "2.10", 0),
	)
	opps, err := a.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, opps, "completed events are not biddable")

	snap = snapshot("soccer", liveEvent("ev-2", "soccer"),
		snapQuote("q3", "ev-2", "sharpline", "home", "2.10", 0),
		snapQuote("q4", "ev-2", "oddspush", "home", "2.20", 0),
	)
	opps, err = a.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, opps, "one selection cannot cover the outcome space")
}

func TestArbitrageValidate(t *testing.T) {
	a := NewArbitrage(arbConfig())
	leg := func(prov string) domain.OpportunityLeg {
		return domain.OpportunityLeg{Provider: prov, Selection: "home", Odds: decimal.RequireFromString("2.1")}
	}
	edge := decimal.RequireFromString("0.05")

	assert.False(t, a.Validate(domain.BettingOpportunity{
		Legs: []domain.OpportunityLeg{leg("sharpline")}, Edge: edge,
	}), "single leg")
	assert.False(t, a.Validate(domain.BettingOpportunity{
		Legs: []domain.OpportunityLeg{leg("sharpline"), leg("sharpline")}, Edge: edge,
	}), "single book")
	assert.False(t, a.Validate(domain.BettingOpportunity{
		Legs: []domain.OpportunityLeg{leg("sharpline"), leg("oddspush")}, Edge: decimal.Zero,
	}), "no edge")
	assert.True(t, a.Validate(domain.BettingOpportunity{
		Legs: []domain.OpportunityLeg{leg("sharpline"), leg("oddspush")}, Edge: edge,
	}))
}
