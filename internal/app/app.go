// Package app provides the top-level application lifecycle for the edge bot.
// It wires the infrastructure dependencies, builds the provider fetchers and
// per-sport strategy engines, and runs the aggregation cycles until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tomvane/edgebot/internal/aggregate"
	"github.com/tomvane/edgebot/internal/config"
	"github.com/tomvane/edgebot/internal/dispatch"
	"github.com/tomvane/edgebot/internal/domain"
	"github.com/tomvane/edgebot/internal/fetch"
	"github.com/tomvane/edgebot/internal/normalize"
	"github.com/tomvane/edgebot/internal/provider"
	"github.com/tomvane/edgebot/internal/risk"
	"github.com/tomvane/edgebot/internal/strategy"
)

// App is the root application object. It owns the config reloader, logger,
// and a list of cleanup functions called in reverse order on shutdown.
type App struct {
	reloader *config.Reloader
	logger   *slog.Logger
	closers  []func()
}

// New creates a new App serving configuration through the given reloader.
func New(reloader *config.Reloader, logger *slog.Logger) *App {
	return &App{
		reloader: reloader,
		logger:   logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the provider connections and per-sport
// cycle loops, and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	cfg, version := a.reloader.Current()

	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", cfg.Mode),
		slog.Any("sports", cfg.Sports),
		slog.Int("providers", len(cfg.Providers)),
	)

	deps, cleanup, err := Wire(ctx, cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	fetchers, wsProviders := buildFetchers(cfg, a.logger)
	catalog := aggregate.NewCatalog(a.logger)
	aggregator := aggregate.NewAggregator(fetchers, catalog, deps.QuoteStore, aggregate.Config{
		FetchTimeout: cfg.Cycle.FetchTimeout.Duration,
		MaxParallel:  cfg.Cycle.MaxParallel,
	}, a.logger)

	riskMgr := risk.NewManager(riskConfig(cfg.Risk), deps.BetStore, a.logger)

	var placer dispatch.Placer
	if strings.ToLower(cfg.Mode) == "trade" {
		placer = dispatch.NewStreamPlacer(deps.OrderBus, a.logger)
	} else {
		placer = dispatch.NewAlertPlacer(deps.Notifier, a.logger)
	}
	dispatcher := dispatch.NewDispatcher(placer, deps.BetStore, riskMgr, deps.EventBus, deps.Notifier, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	// Push providers hold their own connections; start them first so buffers
	// fill before the first cycle.
	for _, ws := range wsProviders {
		ws := ws
		g.Go(func() error {
			defer ws.Close()
			if err := ws.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("app: ws provider: %w", err)
			}
			return nil
		})
	}

	// One cycle loop and one strategy engine per sport. The steam evaluator
	// carries cross-cycle history, so each sport gets its own evaluator
	// instances and never shares them. The supervisor reconciles the loop
	// set and the provider tunables when configuration is reloaded.
	g.Go(func() error {
		return a.superviseSports(gctx, version, cfg, deps, fetchers, aggregator, riskMgr, dispatcher)
	})

	// Settlement feedback from the execution worker.
	g.Go(func() error {
		return a.consumeSettlements(gctx, deps, dispatcher)
	})

	// Retention archival.
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(gctx, cfg, deps)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// superviseSports runs one cycle loop per active sport. At cycle boundaries
// after a reload it reapplies provider resilience tunables to the live
// fetchers and starts or stops sport loops to match the new sports list.
func (a *App) superviseSports(
	ctx context.Context,
	version int,
	cfg *config.Config,
	deps *Dependencies,
	fetchers []*fetch.Fetcher,
	aggregator *aggregate.Aggregator,
	riskMgr *risk.Manager,
	dispatcher *dispatch.Dispatcher,
) error {
	type sportLoop struct {
		cancel context.CancelFunc
		done   chan struct{}
	}
	loops := make(map[string]*sportLoop)

	start := func(sport string, ver int, c *config.Config) {
		lctx, cancel := context.WithCancel(ctx)
		l := &sportLoop{cancel: cancel, done: make(chan struct{})}
		loops[sport] = l
		go func() {
			defer close(l.done)
			if err := a.runCycles(lctx, sport, ver, c, deps, aggregator, riskMgr, dispatcher); err != nil {
				a.logger.Error("sport loop exited",
					slog.String("sport", sport),
					slog.String("error", err.Error()),
				)
			}
		}()
	}
	for _, sport := range cfg.Sports {
		start(sport, version, cfg)
	}

	interval := cfg.Cycle.Interval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastVersion := version
	for {
		select {
		case <-ctx.Done():
			for _, l := range loops {
				l.cancel()
			}
			for _, l := range loops {
				<-l.done
			}
			return nil
		case <-ticker.C:
		}

		cur, ver := a.reloader.Current()
		if ver == lastVersion {
			continue
		}
		lastVersion = ver

		applyProviderConfig(fetchers, cur)

		running := make(map[string]bool, len(loops))
		for sport := range loops {
			running[sport] = true
		}
		toStart, toStop := sportDiff(running, cur.Sports)
		for _, sport := range toStop {
			l := loops[sport]
			l.cancel()
			<-l.done
			delete(loops, sport)
			a.logger.Info("sport loop stopped",
				slog.String("sport", sport), slog.Int("version", ver))
		}
		for _, sport := range toStart {
			start(sport, ver, cur)
			a.logger.Info("sport loop started",
				slog.String("sport", sport), slog.Int("version", ver))
		}

		if d := cur.Cycle.Interval.Duration; d > 0 && d != interval {
			interval = d
			ticker.Reset(interval)
		}
	}
}

// sportDiff computes which sport loops must start and stop so the running set
// matches want. Stops are sorted for deterministic shutdown order.
func sportDiff(running map[string]bool, want []string) (start, stop []string) {
	wanted := make(map[string]bool, len(want))
	for _, s := range want {
		wanted[s] = true
		if !running[s] {
			start = append(start, s)
		}
	}
	for s := range running {
		if !wanted[s] {
			stop = append(stop, s)
		}
	}
	sort.Strings(stop)
	return start, stop
}

// applyProviderConfig reapplies resilience tunables to the live fetchers,
// matched by provider name. Adding or removing a provider requires a restart;
// connections are owned by the run group.
func applyProviderConfig(fetchers []*fetch.Fetcher, cfg *config.Config) {
	byName := make(map[string]config.ProviderConfig, len(cfg.Providers))
	for _, p := range cfg.Providers {
		byName[p.Name] = p
	}
	for _, f := range fetchers {
		if p, ok := byName[f.Provider()]; ok {
			f.SetConfig(fetcherConfig(p))
		}
	}
}

// runCycles is one sport's pipeline loop: reload config at the boundary,
// snapshot, evaluate, approve, dispatch. A failed cycle never stops the loop.
func (a *App) runCycles(
	ctx context.Context,
	sport string,
	version int,
	cfg *config.Config,
	deps *Dependencies,
	aggregator *aggregate.Aggregator,
	riskMgr *risk.Manager,
	dispatcher *dispatch.Dispatcher,
) error {
	logger := a.logger.With(slog.String("sport", sport))
	engine := buildEngine(cfg, version, deps, logger)

	interval := cfg.Cycle.Interval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastVersion := version
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		// New config takes effect only here, never mid-cycle.
		cur, ver := a.reloader.Current()
		if ver != lastVersion {
			logger.Info("applying reloaded config", slog.Int("version", ver))
			engine = buildEngine(cur, ver, deps, logger)
			riskMgr.SetConfig(riskConfig(cur.Risk))
			if d := cur.Cycle.Interval.Duration; d > 0 && d != interval {
				interval = d
				ticker.Reset(interval)
			}
			lastVersion = ver
		}

		snap, err := aggregator.Snapshot(ctx, sport)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("cycle skipped", slog.String("error", err.Error()))
			continue
		}
		if snap.Empty() {
			continue
		}

		for _, opp := range engine.Evaluate(ctx, snap) {
			decision, err := riskMgr.Approve(ctx, opp)
			if err != nil {
				logger.Error("risk approval failed",
					slog.String("opportunity_id", opp.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if !decision.Approved {
				logger.Info("opportunity rejected",
					slog.String("opportunity_id", opp.ID),
					slog.String("strategy", opp.Strategy),
					slog.String("reason", string(decision.Reason)),
				)
				dispatcher.RecordRejection(ctx, opp, decision)
				continue
			}
			if _, err := dispatcher.Dispatch(ctx, opp, decision.Stake); err != nil {
				logger.Error("dispatch failed",
					slog.String("opportunity_id", opp.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// consumeSettlements applies execution-worker settlement feedback to placed
// orders, which also releases their exposure.
func (a *App) consumeSettlements(ctx context.Context, deps *Dependencies, dispatcher *dispatch.Dispatcher) error {
	for {
		s, err := deps.Settlements.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Error("settlement feed error", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if err := dispatcher.Settle(ctx, s.OrderID, domain.BetResult(s.Result), s.ProfitLoss); err != nil {
			a.logger.Error("settlement failed",
				slog.String("order_id", s.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// runArchiver periodically drains aged quotes to object storage and exports
// the bets settled since the last pass.
func (a *App) runArchiver(ctx context.Context, cfg *config.Config, deps *Dependencies) error {
	interval := cfg.Archive.Interval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now().UTC()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		now := time.Now().UTC()
		cutoff := now.Add(-cfg.Archive.QuoteRetention.Duration)
		if _, err := deps.Archiver.ArchiveQuotes(ctx, cutoff); err != nil {
			a.logger.Error("quote archival failed", slog.String("error", err.Error()))
		}
		if _, err := deps.Archiver.ArchiveSettledBets(ctx, last, now); err != nil {
			a.logger.Error("bet archival failed", slog.String("error", err.Error()))
		}
		last = now
	}
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// buildFetchers constructs the resilience-wrapped fetcher per configured
// provider. Push (websocket) providers are returned separately so the caller
// can start their connection loops.
func buildFetchers(cfg *config.Config, logger *slog.Logger) ([]*fetch.Fetcher, []*provider.WSProvider) {
	fetchers := make([]*fetch.Fetcher, 0, len(cfg.Providers))
	var wsProviders []*provider.WSProvider

	for _, p := range cfg.Providers {
		mapping := normalize.DefaultMarketMapping().Merge(p.Markets)
		norm := normalize.NewJSONFeed(p.Name, mapping)

		var src provider.Provider
		switch strings.ToLower(p.Kind) {
		case "ws":
			ws := provider.NewWSProvider(provider.WSConfig{
				Name:   p.Name,
				URL:    p.URL,
				APIKey: p.APIKey,
			}, logger)
			wsProviders = append(wsProviders, ws)
			src = ws
		default:
			src = provider.NewHTTPProvider(provider.HTTPConfig{
				Name:    p.Name,
				BaseURL: p.URL,
				APIKey:  p.APIKey,
				Timeout: p.Timeout.Duration,
			})
		}

		fetchers = append(fetchers, fetch.NewFetcher(src, norm, fetcherConfig(p), logger))
	}
	return fetchers, wsProviders
}

func fetcherConfig(p config.ProviderConfig) fetch.Config {
	return fetch.Config{
		MaxRequests:      p.MaxRequests,
		Window:           p.RateWindow.Duration,
		MaxAttempts:      p.MaxAttempts,
		BaseDelay:        p.BaseDelay.Duration,
		FailureThreshold: p.FailureThreshold,
		BreakerTimeout:   p.BreakerTimeout.Duration,
	}
}

// buildEngine assembles a strategy engine with fresh evaluator instances for
// the given config version.
func buildEngine(cfg *config.Config, version int, deps *Dependencies, logger *slog.Logger) *strategy.Engine {
	registry := strategy.NewRegistry()

	if cfg.Strategy.Arbitrage.Enabled {
		registry.Register(strategy.NewArbitrage(strategy.ArbitrageConfig{
			MinProfitPct: decimal.NewFromFloat(cfg.Strategy.Arbitrage.MinProfitPct),
			MaxSkew:      cfg.Strategy.Arbitrage.MaxSkew.Duration,
			TotalStake:   decimal.NewFromFloat(cfg.Strategy.Arbitrage.TotalStake),
		}))
	}
	if cfg.Strategy.Value.Enabled {
		registry.Register(strategy.NewValue(strategy.ValueConfig{
			EdgeThreshold: decimal.NewFromFloat(cfg.Strategy.Value.EdgeThreshold),
			Stake:         decimal.NewFromFloat(cfg.Strategy.Value.Stake),
			MaxQuoteAge:   cfg.Strategy.Value.MaxQuoteAge.Duration,
		}, deps.ModelCache, logger))
	}
	if cfg.Strategy.Steam.Enabled {
		registry.Register(strategy.NewSteam(strategy.SteamConfig{
			MoveThreshold:   decimal.NewFromFloat(cfg.Strategy.Steam.MoveThreshold),
			Window:          cfg.Strategy.Steam.Window.Duration,
			Stake:           decimal.NewFromFloat(cfg.Strategy.Steam.Stake),
			MaxPointsPerKey: cfg.Strategy.Steam.MaxPointsPerKey,
		}))
	}

	return strategy.NewEngine(registry, deps.OpportunityStore, version, logger)
}

// riskConfig converts the file-level risk section into the manager's exact
// decimal limits.
func riskConfig(rc config.RiskConfig) risk.Config {
	groups := make([]risk.CorrelationGroup, 0, len(rc.Correlations))
	for _, g := range rc.Correlations {
		markets := make([]domain.MarketType, 0, len(g.Markets))
		for _, m := range g.Markets {
			markets = append(markets, domain.MarketType(m))
		}
		groups = append(groups, risk.CorrelationGroup{Name: g.Name, Markets: markets})
	}
	return risk.Config{
		Bankroll:         decimal.NewFromFloat(rc.Bankroll),
		PerBetPct:        decimal.NewFromFloat(rc.PerBetPct),
		DailyLossLimit:   decimal.NewFromFloat(rc.DailyLossLimit),
		MaxEventExposure: decimal.NewFromFloat(rc.MaxEventExposure),
		MaxSportExposure: decimal.NewFromFloat(rc.MaxSportExposure),
		Correlations:     groups,
		AllowDownsize:    rc.AllowDownsize,
		MinStake:         decimal.NewFromFloat(rc.MinStake),
		Window:           rc.Window.Duration,
	}
}
