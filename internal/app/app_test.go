package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tomvane/edgebot/internal/config"
	"github.com/tomvane/edgebot/internal/fetch"
	"github.com/tomvane/edgebot/internal/normalize"
	"github.com/tomvane/edgebot/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// idleProvider satisfies provider.Provider for wiring tests.
type idleProvider struct{ name string }

func (p *idleProvider) Name() string { return p.name }

func (p *idleProvider) Fetch(context.Context, string) ([]provider.Payload, error) {
	return nil, nil
}

func TestSportDiffReconcilesLoopSet(t *testing.T) {
	running := map[string]bool{"soccer": true, "tennis": true}

	start, stop := sportDiff(running, []string{"soccer", "basketball"})
	assert.Equal(t, []string{"basketball"}, start)
	assert.Equal(t, []string{"tennis"}, stop)

	start, stop = sportDiff(running, []string{"tennis", "soccer"})
	assert.Empty(t, start)
	assert.Empty(t, stop)

	start, stop = sportDiff(map[string]bool{}, []string{"soccer"})
	assert.Equal(t, []string{"soccer"}, start)
	assert.Empty(t, stop)
}

func TestApplyProviderConfigRetunesByName(t *testing.T) {
	f := fetch.NewFetcher(
		&idleProvider{name: "sharpline"},
		normalize.NewJSONFeed("sharpline", normalize.DefaultMarketMapping()),
		fetch.Config{FailureThreshold: 5, BreakerTimeout: time.Hour},
		testLogger(),
	)

	cfg := config.Defaults()
	cfg.Providers = []config.ProviderConfig{
		{Name: "oddspush", Kind: "http", FailureThreshold: 3},
		{Name: "sharpline", Kind: "http", FailureThreshold: 1},
	}
	applyProviderConfig([]*fetch.Fetcher{f}, &cfg)

	// One failure now trips the breaker; the original threshold was five.
	f.Breaker().OnFailure()
	assert.Equal(t, fetch.BreakerOpen, f.Breaker().State())
}
