package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Settlement is one settlement record from the execution worker: the order's
// outcome and realized profit or loss.
type Settlement struct {
	OrderID    string
	Result     string
	ProfitLoss decimal.Decimal
}

// SettlementFeed tails the settlement stream the execution worker writes to.
// Each entry carries order_id, result and profit_loss fields.
type SettlementFeed struct {
	rdb    *redis.Client
	stream string
	lastID string
}

// NewSettlementFeed creates a SettlementFeed reading from stream, starting at
// entries appended after the feed was opened.
func NewSettlementFeed(c *Client, stream string) *SettlementFeed {
	if stream == "" {
		stream = "edgebot:settlements"
	}
	return &SettlementFeed{rdb: c.Underlying(), stream: stream, lastID: "$"}
}

// Next blocks until the next settlement arrives or ctx is cancelled.
func (f *SettlementFeed) Next(ctx context.Context) (Settlement, error) {
	for {
		streams, err := f.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{f.stream, f.lastID},
			Count:   1,
			Block:   5 * time.Second,
		}).Result()
		if err == redis.Nil {
			// Block timeout with no entries; poll again unless cancelled.
			if ctx.Err() != nil {
				return Settlement{}, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Settlement{}, ctx.Err()
			}
			return Settlement{}, fmt.Errorf("redis: read settlements: %w", err)
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				f.lastID = msg.ID
				settlement, err := parseSettlement(msg.Values)
				if err != nil {
					return Settlement{}, fmt.Errorf("redis: settlement %s: %w", msg.ID, err)
				}
				return settlement, nil
			}
		}
	}
}

func parseSettlement(values map[string]any) (Settlement, error) {
	orderID, _ := values["order_id"].(string)
	result, _ := values["result"].(string)
	plRaw, _ := values["profit_loss"].(string)

	if orderID == "" || result == "" {
		return Settlement{}, fmt.Errorf("missing order_id or result")
	}
	pl, err := decimal.NewFromString(plRaw)
	if err != nil {
		return Settlement{}, fmt.Errorf("parse profit_loss %q: %w", plRaw, err)
	}
	return Settlement{OrderID: orderID, Result: result, ProfitLoss: pl}, nil
}
