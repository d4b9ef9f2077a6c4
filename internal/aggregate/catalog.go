// Package aggregate fans fetches out across all configured providers for a
// sport and merges the results into one immutable OddsSnapshot, tolerating
// partial provider failure.
package aggregate

import (
	"log/slog"
	"sync"

	"github.com/tomvane/edgebot/internal/domain"
)

// Catalog is the cross-cycle event registry. Events are created on first
// sighting from any provider; status only moves forward, and terminal events
// accept nothing but metadata enrichment.
type Catalog struct {
	mu     sync.Mutex
	events map[string]domain.SportEvent
	logger *slog.Logger
}

// NewCatalog creates an empty event catalog.
func NewCatalog(logger *slog.Logger) *Catalog {
	return &Catalog{
		events: make(map[string]domain.SportEvent),
		logger: logger.With(slog.String("component", "event_catalog")),
	}
}

// Observe folds a provider's view of an event into the catalog and returns
// the authoritative record. Illegal status regressions are ignored (the
// stored status wins); metadata is always enriched.
func (c *Catalog) Observe(ev domain.SportEvent) domain.SportEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.events[ev.ID]
	if !ok {
		if ev.Metadata == nil {
			ev.Metadata = map[string]string{}
		}
		c.events[ev.ID] = ev
		c.logger.Debug("event first sighted",
			slog.String("event_id", ev.ID),
			slog.String("sport", ev.Sport),
		)
		return ev
	}

	cur = cur.MergeMetadata(ev.Metadata)
	if cur.Status != ev.Status {
		if next, err := cur.WithStatus(ev.Status); err == nil {
			cur = next
		} else {
			c.logger.Debug("ignoring status regression",
				slog.String("event_id", ev.ID),
				slog.String("stored", string(cur.Status)),
				slog.String("seen", string(ev.Status)),
			)
		}
	}
	c.events[ev.ID] = cur
	return cur
}

// Get returns the stored event, if any.
func (c *Catalog) Get(id string) (domain.SportEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.events[id]
	return ev, ok
}

// Snapshot returns a copy of the catalog for embedding in an OddsSnapshot.
func (c *Catalog) Snapshot(ids map[string]struct{}) map[string]domain.SportEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]domain.SportEvent, len(ids))
	for id := range ids {
		if ev, ok := c.events[id]; ok {
			out[id] = ev
		}
	}
	return out
}
