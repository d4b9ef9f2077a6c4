package aggregate

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
	"github.com/tomvane/edgebot/internal/fetch"
	"github.com/tomvane/edgebot/internal/normalize"
	"github.com/tomvane/edgebot/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubSource feeds one empty payload through so the paired batchNormalizer
// can inject its canned batch.
type stubSource struct {
	name string
	err  error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(_ context.Context, _ string) ([]provider.Payload, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []provider.Payload{{Provider: s.name, Body: []byte(`{}`), ReceivedAt: time.Now()}}, nil
}

type batchNormalizer struct {
	name  string
	batch normalize.Batch
}

func (n *batchNormalizer) Provider() string { return n.name }

func (n *batchNormalizer) Normalize(provider.Payload) (normalize.Batch, error) {
	return n.batch, nil
}

// recordingQuoteStore captures AppendBatch calls.
type recordingQuoteStore struct {
	mu       sync.Mutex
	appended []domain.OddsQuote
}

func (s *recordingQuoteStore) AppendBatch(_ context.Context, quotes []domain.OddsQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, quotes...)
	return nil
}

func (s *recordingQuoteStore) ListBefore(context.Context, time.Time, int) ([]domain.OddsQuote, error) {
	return nil, nil
}

func (s *recordingQuoteStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func quote(id, eventID, prov, selection string, odds string, at time.Time) domain.OddsQuote {
	return domain.OddsQuote{
		ID:         id,
		EventID:    eventID,
		Provider:   prov,
		Market:     domain.MarketMoneyline,
		Selection:  selection,
		Odds:       decimal.RequireFromString(odds),
		CapturedAt: at,
	}
}

func event(id, sport string, status domain.EventStatus) domain.SportEvent {
	return domain.SportEvent{ID: id, Sport: sport, Status: status}
}

func newFetcher(name string, batch normalize.Batch, err error) *fetch.Fetcher {
	return fetch.NewFetcher(
		&stubSource{name: name, err: err},
		&batchNormalizer{name: name, batch: batch},
		fetch.Config{MaxAttempts: 1},
		testLogger(),
	)
}

func TestSnapshotKeepsLatestQuotePerKey(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	f := newFetcher("sharpline", normalize.Batch{
		Events: []domain.SportEvent{event("ev-1", "soccer", domain.EventScheduled)},
		Quotes: []domain.OddsQuote{
			quote("q1", "ev-1", "sharpline", "home", "2.10", base),
			quote("q2", "ev-1", "sharpline", "home", "2.20", base.Add(time.Second)),
			quote("q3", "ev-1", "sharpline", "away", "1.80", base),
		},
	}, nil)

	a := NewAggregator([]*fetch.Fetcher{f}, NewCatalog(testLogger()), nil, Config{}, testLogger())
	snap, err := a.Snapshot(context.Background(), "soccer")
	require.NoError(t, err)

	qs := snap.EventQuotes("ev-1")
	require.Len(t, qs, 2)
	assert.Equal(t, "q2", qs[0].ID, "the later reading wins the slot")
	assert.Equal(t, "q3", qs[1].ID)
	assert.Contains(t, snap.Events, "ev-1")
}

func TestSnapshotEqualTimestampKeepsFirstSeen(t *testing.T) {
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	f := newFetcher("sharpline", normalize.Batch{
		Quotes: []domain.OddsQuote{
			quote("q1", "ev-1", "sharpline", "home", "2.10", at),
			quote("q2", "ev-1", "sharpline", "home", "2.30", at),
		},
	}, nil)

	a := NewAggregator([]*fetch.Fetcher{f}, NewCatalog(testLogger()), nil, Config{}, testLogger())
	snap, err := a.Snapshot(context.Background(), "soccer")
	require.NoError(t, err)

	qs := snap.EventQuotes("ev-1")
	require.Len(t, qs, 1)
	assert.Equal(t, "q1", qs[0].ID)
}

func TestSnapshotMergesProvidersAndMarksStale(t *testing.T) {
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	good := newFetcher("sharpline", normalize.Batch{
		Quotes: []domain.OddsQuote{quote("q1", "ev-1", "sharpline", "home", "2.10", at)},
	}, nil)
	down := newFetcher("oddspush", normalize.Batch{},
		domain.NewProviderError("oddspush", domain.ProviderTransient, errors.New("http status 503")))

	a := NewAggregator([]*fetch.Fetcher{good, down}, NewCatalog(testLogger()), nil, Config{}, testLogger())
	snap, err := a.Snapshot(context.Background(), "soccer")
	require.NoError(t, err, "one dead provider must not fail the cycle")

	assert.True(t, snap.IsStale("oddspush"))
	assert.False(t, snap.IsStale("sharpline"))
	require.Len(t, snap.EventQuotes("ev-1"), 1)
}

func TestSnapshotCancelledContextDiscardsPartial(t *testing.T) {
	f := newFetcher("sharpline", normalize.Batch{
		Quotes: []domain.OddsQuote{quote("q1", "ev-1", "sharpline", "home", "2.10", time.Now())},
	}, nil)
	a := NewAggregator([]*fetch.Fetcher{f}, NewCatalog(testLogger()), nil, Config{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap, err := a.Snapshot(ctx, "soccer")
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, snap.Empty())
}

func TestSnapshotNoProviders(t *testing.T) {
	a := NewAggregator(nil, NewCatalog(testLogger()), nil, Config{}, testLogger())
	_, err := a.Snapshot(context.Background(), "soccer")
	assert.ErrorIs(t, err, domain.ErrNoProviders)
}

func TestSnapshotPersistsEveryObservedQuote(t *testing.T) {
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	f := newFetcher("sharpline", normalize.Batch{
		Quotes: []domain.OddsQuote{
			quote("q1", "ev-1", "sharpline", "home", "2.10", at),
			quote("q2", "ev-1", "sharpline", "home", "2.20", at.Add(time.Second)),
		},
	}, nil)
	store := &recordingQuoteStore{}

	a := NewAggregator([]*fetch.Fetcher{f}, NewCatalog(testLogger()), store, Config{}, testLogger())
	_, err := a.Snapshot(context.Background(), "soccer")
	require.NoError(t, err)

	// Both readings reach the store even though only the latest makes the
	// snapshot; the history is the point of persisting.
	assert.Len(t, store.appended, 2)
}

func TestCatalogStatusMonotonicity(t *testing.T) {
	c := NewCatalog(testLogger())

	c.Observe(event("ev-1", "soccer", domain.EventScheduled))
	c.Observe(event("ev-1", "soccer", domain.EventLive))

	// A provider still reporting the old state cannot roll the event back.
	got := c.Observe(event("ev-1", "soccer", domain.EventScheduled))
	assert.Equal(t, domain.EventLive, got.Status)

	c.Observe(event("ev-1", "soccer", domain.EventCompleted))
	got = c.Observe(event("ev-1", "soccer", domain.EventLive))
	assert.Equal(t, domain.EventCompleted, got.Status)
}

func TestCatalogTerminalEventStillEnrichesMetadata(t *testing.T) {
	c := NewCatalog(testLogger())
	c.Observe(event("ev-1", "soccer", domain.EventCompleted))

	enriched := domain.SportEvent{
		ID: "ev-1", Sport: "soccer", Status: domain.EventCompleted,
		Metadata: map[string]string{"venue": "anfield"},
	}
	got := c.Observe(enriched)
	assert.Equal(t, "anfield", got.Metadata["venue"])

	// Enrichment never overwrites an earlier value.
	got = c.Observe(domain.SportEvent{
		ID: "ev-1", Sport: "soccer", Status: domain.EventCompleted,
		Metadata: map[string]string{"venue": "elsewhere"},
	})
	assert.Equal(t, "anfield", got.Metadata["venue"])
}
