package aggregate

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomvane/edgebot/internal/domain"
	"github.com/tomvane/edgebot/internal/fetch"
	"github.com/tomvane/edgebot/internal/normalize"
)

// Config holds the aggregator's cycle tunables.
type Config struct {
	FetchTimeout time.Duration // per-provider fetch deadline
	MaxParallel  int           // fetch concurrency bound per cycle
}

// Aggregator issues fetches to all resilient fetchers concurrently and merges
// the results into one snapshot. A provider failure never fails the snapshot;
// the provider is simply marked stale for the cycle.
type Aggregator struct {
	fetchers []*fetch.Fetcher
	catalog  *Catalog
	quotes   domain.QuoteStore
	cfg      Config
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator over the given fetchers. quotes may be
// nil; when set, every normalized quote is appended through the persistence
// boundary as it is observed.
func NewAggregator(fetchers []*fetch.Fetcher, catalog *Catalog, quotes domain.QuoteStore, cfg Config, logger *slog.Logger) *Aggregator {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = len(fetchers)
	}
	return &Aggregator{
		fetchers: fetchers,
		catalog:  catalog,
		quotes:   quotes,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "aggregator")),
	}
}

// providerResult is one fetcher's contribution to a cycle.
type providerResult struct {
	provider string
	batch    normalize.Batch
	err      error
}

// Snapshot runs one aggregation cycle for the sport. All fetches run
// concurrently under the parallelism bound, each with its own timeout; the
// cycle proceeds once every fetch has settled. If ctx is cancelled the
// partial snapshot is discarded and the context error returned — a partial
// snapshot is never handed to the strategy engine.
func (a *Aggregator) Snapshot(ctx context.Context, sport string) (domain.OddsSnapshot, error) {
	if len(a.fetchers) == 0 {
		return domain.OddsSnapshot{}, domain.ErrNoProviders
	}

	results := make([]providerResult, len(a.fetchers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.MaxParallel)
	for i, f := range a.fetchers {
		i, f := i, f
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, a.cfg.FetchTimeout)
			defer cancel()

			batch, err := f.Fetch(fctx, sport)
			mu.Lock()
			results[i] = providerResult{provider: f.Provider(), batch: batch, err: err}
			mu.Unlock()
			// A fetch timeout or failure marks the provider stale; it never
			// cancels the cycle, so nothing propagates through the group.
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		a.logger.Info("cycle cancelled, discarding partial snapshot", slog.String("sport", sport))
		return domain.OddsSnapshot{}, err
	}

	return a.merge(ctx, sport, results), nil
}

// merge folds settled provider results into a snapshot: latest quote per
// (event, provider, market, selection) key, ties broken first-seen since
// provider clocks cannot resolve true simultaneity.
func (a *Aggregator) merge(ctx context.Context, sport string, results []providerResult) domain.OddsSnapshot {
	snap := domain.OddsSnapshot{
		Sport:   sport,
		TakenAt: time.Now().UTC(),
		Quotes:  make(map[string][]domain.OddsQuote),
		Stale:   make(map[string]bool),
	}

	latest := make(map[domain.QuoteKey]domain.OddsQuote)
	order := make(map[domain.QuoteKey]int) // first-seen rank for deterministic output
	eventIDs := make(map[string]struct{})
	rank := 0
	var persisted []domain.OddsQuote

	for _, res := range results {
		if res.err != nil {
			snap.Stale[res.provider] = true
			a.logger.Warn("provider stale this cycle",
				slog.String("sport", sport),
				slog.String("provider", res.provider),
				slog.String("kind", string(domain.ProviderErrKind(res.err))),
				slog.String("error", res.err.Error()),
			)
			continue
		}

		for _, ev := range res.batch.Events {
			a.catalog.Observe(ev)
			eventIDs[ev.ID] = struct{}{}
		}
		for _, q := range res.batch.Quotes {
			persisted = append(persisted, q)
			key := q.Key()
			cur, seen := latest[key]
			if !seen {
				latest[key] = q
				order[key] = rank
				rank++
				eventIDs[q.EventID] = struct{}{}
				continue
			}
			// Strictly-after wins; equal timestamps keep the first seen.
			if q.CapturedAt.After(cur.CapturedAt) {
				latest[key] = q
			}
		}
	}

	if a.quotes != nil && len(persisted) > 0 {
		if err := a.quotes.AppendBatch(ctx, persisted); err != nil {
			a.logger.Error("quote persistence failed", slog.String("error", err.Error()))
		}
	}

	// Deterministic per-event ordering by first-seen rank.
	type ranked struct {
		q    domain.OddsQuote
		rank int
	}
	byEvent := make(map[string][]ranked)
	for key, q := range latest {
		byEvent[q.EventID] = append(byEvent[q.EventID], ranked{q: q, rank: order[key]})
	}
	for eventID, rs := range byEvent {
		sort.Slice(rs, func(i, j int) bool { return rs[i].rank < rs[j].rank })
		qs := make([]domain.OddsQuote, len(rs))
		for i, r := range rs {
			qs[i] = r.q
		}
		snap.Quotes[eventID] = qs
	}

	snap.Events = a.catalog.Snapshot(eventIDs)

	a.logger.Info("snapshot assembled",
		slog.String("sport", sport),
		slog.Int("events", len(snap.Events)),
		slog.Int("quote_keys", len(latest)),
		slog.Int("stale_providers", len(snap.Stale)),
	)
	return snap
}
