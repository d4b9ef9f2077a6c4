package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tomvane/edgebot/internal/domain"
	"github.com/tomvane/edgebot/internal/notify"
)

// AlertPlacer is the manual-execution path: instead of submitting the order
// anywhere, it raises an operator alert and confirms immediately. Used in
// scan mode and as the fallback when no venue client is configured.
type AlertPlacer struct {
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewAlertPlacer creates an AlertPlacer. notifier may be nil, in which case
// the alert is log-only.
func NewAlertPlacer(notifier *notify.Notifier, logger *slog.Logger) *AlertPlacer {
	return &AlertPlacer{
		notifier: notifier,
		logger:   logger.With(slog.String("component", "alert_placer")),
	}
}

// PlaceOrAlert implements Placer.
func (p *AlertPlacer) PlaceOrAlert(ctx context.Context, order domain.BetOrder) (domain.Confirmation, error) {
	msg := fmt.Sprintf("%s %s on %s: stake %s at %s",
		order.OpportunityID, order.Market, order.EventID, order.Stake, order.Odds)

	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, "opportunity_alert", "Betting opportunity", msg); err != nil {
			return domain.Confirmation{}, &domain.PlacementError{Venue: "alert", Err: err}
		}
	}
	p.logger.Info("opportunity alert raised", slog.String("order_id", order.ID))

	return domain.Confirmation{
		OrderRef: "alert:" + order.ID,
		PlacedAt: time.Now().UTC(),
	}, nil
}
