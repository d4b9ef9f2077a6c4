package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/tomvane/edgebot/internal/domain"
)

// ModelCache reads externally published model probabilities. The prediction
// service writes one hash per event, field per selection, value a decimal
// probability string; this side only consumes.
type ModelCache struct {
	rdb *redis.Client
}

// NewModelCache creates a ModelCache backed by the given Client.
func NewModelCache(c *Client) *ModelCache {
	return &ModelCache{rdb: c.Underlying()}
}

func modelKey(eventID string) string {
	return "model:probs:" + eventID
}

// Probability returns the model's probability for (event, selection). The
// second return is false when the model has not published for this selection.
func (m *ModelCache) Probability(ctx context.Context, eventID, selection string) (decimal.Decimal, bool, error) {
	val, err := m.rdb.HGet(ctx, modelKey(eventID), selection).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis: model probability %s/%s: %w", eventID, selection, err)
	}

	prob, perr := decimal.NewFromString(val)
	if perr != nil {
		return decimal.Zero, false, fmt.Errorf("redis: model probability %s/%s: parse %q: %w", eventID, selection, val, perr)
	}
	return prob, true, nil
}

// Compile-time interface check.
var _ domain.ModelCache = (*ModelCache)(nil)
