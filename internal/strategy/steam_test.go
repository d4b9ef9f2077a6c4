package strategy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomvane/edgebot/internal/domain"
)

func steamConfig() SteamConfig {
	return SteamConfig{
		MoveThreshold: decimal.RequireFromString("0.05"),
		Window:        10 * time.Minute,
		Stake:         decimal.NewFromInt(20),
	}
}

// steamSnapshot places the single quote at the given offset from snapTime and
// stamps TakenAt to match, so consecutive cycles advance consistently.
func steamSnapshot(odds string, offset time.Duration) domain.OddsSnapshot {
	snap := snapshot("soccer", liveEvent("ev-1", "soccer"),
		snapQuote("q-"+odds, "ev-1", "sharpline", "home", odds, offset),
	)
	snap.TakenAt = snapTime.Add(offset)
	return snap
}

func TestSteamSkipsQuotesWithoutCatalogEvent(t *testing.T) {
	s := NewSteam(steamConfig())

	orphan := func(odds string, offset time.Duration) domain.OddsSnapshot {
		snap := snapshot("soccer", liveEvent("ev-1", "soccer"),
			snapQuote("q-"+odds, "ev-ghost", "sharpline", "home", odds, offset),
		)
		snap.TakenAt = snapTime.Add(offset)
		return snap
	}

	_, err := s.Evaluate(context.Background(), orphan("2.00", 0))
	require.NoError(t, err)

	// A 10% move on an uncatalogued event is never actionable and leaves no
	// history behind.
	opps, err := s.Evaluate(context.Background(), orphan("1.80", time.Minute))
	require.NoError(t, err)
	assert.Empty(t, opps)
	assert.Equal(t, 0, s.HistorySize())
}

func TestSteamEmitsOnSharpShortening(t *testing.T) {
	s := NewSteam(steamConfig())

	opps, err := s.Evaluate(context.Background(), steamSnapshot("2.00", 0))
	require.NoError(t, err)
	assert.Empty(t, opps, "one observation cannot show movement")

	// 2.00 -> 1.80 inside the window is a 10% shortening.
	opps, err = s.Evaluate(context.Background(), steamSnapshot("1.80", time.Minute))
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "steam_chase", opp.Strategy)
	assert.True(t, opp.Edge.Equal(decimal.RequireFromString("0.1")), "movement %s", opp.Edge)
	require.Len(t, opp.Legs, 1)
	assert.True(t, opp.Legs[0].Odds.Equal(decimal.RequireFromString("1.8")),
		"the chase takes the current price, not the old one")
	assert.True(t, s.Validate(opp))
}

func TestSteamIgnoresSmallMovesAndDrifts(t *testing.T) {
	s := NewSteam(steamConfig())

	_, err := s.Evaluate(context.Background(), steamSnapshot("2.00", 0))
	require.NoError(t, err)

	// 2.00 -> 1.96 is 2%, under the 5% threshold.
	opps, err := s.Evaluate(context.Background(), steamSnapshot("1.96", time.Minute))
	require.NoError(t, err)
	assert.Empty(t, opps)

	// A lengthening line is negative movement, never steam.
	opps, err = s.Evaluate(context.Background(), steamSnapshot("2.40", 2*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestSteamWindowExcludesOldObservations(t *testing.T) {
	cfg := steamConfig()
	cfg.Window = 5 * time.Minute
	s := NewSteam(cfg)

	_, err := s.Evaluate(context.Background(), steamSnapshot("2.00", 0))
	require.NoError(t, err)
	_, err = s.Evaluate(context.Background(), steamSnapshot("1.92", 4*time.Minute))
	require.NoError(t, err)

	// Twenty minutes on, both earlier observations left the window; the big
	// drop from 2.00 can no longer be claimed as steam.
	opps, err := s.Evaluate(context.Background(), steamSnapshot("1.88", 20*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestSteamHistoryBoundedPerKey(t *testing.T) {
	cfg := steamConfig()
	cfg.MaxPointsPerKey = 4
	cfg.Window = time.Hour
	s := NewSteam(cfg)

	for i := 0; i < 20; i++ {
		odds := fmt.Sprintf("%.2f", 5.0-float64(i)*0.01)
		_, err := s.Evaluate(context.Background(), steamSnapshot(odds, time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	assert.Equal(t, 1, s.HistorySize())
	key := domain.QuoteKey{EventID: "ev-1", Provider: "sharpline", Market: domain.MarketMoneyline, Selection: "home"}
	assert.LessOrEqual(t, len(s.history[key]), 4)
}

func TestSteamEvictsTerminalEvents(t *testing.T) {
	s := NewSteam(steamConfig())

	_, err := s.Evaluate(context.Background(), steamSnapshot("2.00", 0))
	require.NoError(t, err)
	require.Equal(t, 1, s.HistorySize())

	done := snapshot("soccer", map[string]domain.SportEvent{
		"ev-1": {ID: "ev-1", Sport: "soccer", Status: domain.EventCompleted},
	})
	done.TakenAt = snapTime.Add(time.Minute)
	_, err = s.Evaluate(context.Background(), done)
	require.NoError(t, err)
	assert.Equal(t, 0, s.HistorySize(), "finished events must not pin history")
}

func TestSteamDeterministicForSameInputs(t *testing.T) {
	run := func() []domain.BettingOpportunity {
		s := NewSteam(steamConfig())
		_, err := s.Evaluate(context.Background(), steamSnapshot("2.00", 0))
		require.NoError(t, err)
		opps, err := s.Evaluate(context.Background(), steamSnapshot("1.80", time.Minute))
		require.NoError(t, err)
		return opps
	}

	first, second := run(), run()
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}
