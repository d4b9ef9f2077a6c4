package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tomvane/edgebot/internal/domain"
)

// StreamPlacer queues approved orders onto an order stream for the execution
// worker. Placement here means durably handed off; fills and settlement come
// back through the settlement path.
type StreamPlacer struct {
	bus    domain.EventBus
	logger *slog.Logger
}

// NewStreamPlacer creates a StreamPlacer publishing to bus.
func NewStreamPlacer(bus domain.EventBus, logger *slog.Logger) *StreamPlacer {
	return &StreamPlacer{
		bus:    bus,
		logger: logger.With(slog.String("component", "stream_placer")),
	}
}

// PlaceOrAlert publishes the order and returns a queued confirmation.
func (p *StreamPlacer) PlaceOrAlert(ctx context.Context, order domain.BetOrder) (domain.Confirmation, error) {
	legs, err := json.Marshal(order.Legs)
	if err != nil {
		return domain.Confirmation{}, &domain.PlacementError{Venue: "order_stream", Err: err}
	}

	fields := map[string]any{
		"order_id":       order.ID,
		"opportunity_id": order.OpportunityID,
		"event_id":       order.EventID,
		"sport":          order.Sport,
		"market":         string(order.Market),
		"legs":           string(legs),
		"stake":          order.Stake.String(),
		"odds":           order.Odds.String(),
	}
	if err := p.bus.Publish(ctx, "order_queued", fields); err != nil {
		return domain.Confirmation{}, &domain.PlacementError{Venue: "order_stream", Err: err}
	}

	p.logger.Info("order queued for execution", slog.String("order_id", order.ID))
	return domain.Confirmation{
		OrderRef: "queued:" + order.ID,
		PlacedAt: time.Now().UTC(),
	}, nil
}
