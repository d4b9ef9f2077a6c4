// Package dispatch routes approved opportunities to the execution boundary
// and records each order's terminal outcome. Both the manual-alert path and
// automated placement sit behind the single Placer contract.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tomvane/edgebot/internal/domain"
	"github.com/tomvane/edgebot/internal/notify"
	"github.com/tomvane/edgebot/internal/risk"
)

// Placer is the execution boundary: place the bet or raise the alert, return
// a confirmation either way. Failures are PlacementError values.
type Placer interface {
	PlaceOrAlert(ctx context.Context, order domain.BetOrder) (domain.Confirmation, error)
}

// Dispatcher builds bet orders from approved opportunities, hands them to the
// Placer, and records outcomes. On placement failure the committed stake is
// released back through the risk manager so a failed order never permanently
// consumes exposure budget.
type Dispatcher struct {
	placer   Placer
	bets     domain.BetStore
	risk     *risk.Manager
	bus      domain.EventBus
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. bus and notifier may be nil.
func NewDispatcher(placer Placer, bets domain.BetStore, riskMgr *risk.Manager, bus domain.EventBus, notifier *notify.Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		placer:   placer,
		bets:     bets,
		risk:     riskMgr,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch constructs the order for an approved opportunity (stake is the
// risk manager's committed amount) and drives it to a terminal record.
func (d *Dispatcher) Dispatch(ctx context.Context, opp domain.BettingOpportunity, stake decimal.Decimal) (domain.BetOrder, error) {
	order := domain.BetOrder{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		EventID:       opp.EventID,
		Sport:         opp.Sport,
		Market:        opp.Market,
		Legs:          opp.Legs,
		Stake:         stake,
		Odds:          combinedOdds(opp),
		Status:        domain.OrderApproved,
		Result:        domain.ResultPending,
		CreatedAt:     time.Now().UTC(),
	}

	if d.bets != nil {
		if err := d.bets.Create(ctx, order); err != nil {
			// Persistence trouble must not strand committed exposure.
			d.risk.Release(opp.ID)
			return order, err
		}
	}

	conf, err := d.placer.PlaceOrAlert(ctx, order)
	if err != nil {
		d.logger.Error("placement failed, releasing exposure",
			slog.String("order_id", order.ID),
			slog.String("opportunity_id", opp.ID),
			slog.String("error", err.Error()),
		)
		d.risk.Release(opp.ID)
		order.Status = domain.OrderRejected
		order.Reason = "placement_failed: " + err.Error()
		if d.bets != nil {
			if uerr := d.bets.UpdateStatus(ctx, order.ID, order.Status, order.Reason); uerr != nil {
				d.logger.Error("order status update failed", slog.String("error", uerr.Error()))
			}
		}
		d.publish(ctx, "placement_failed", order)
		return order, err
	}

	placedAt := conf.PlacedAt
	if placedAt.IsZero() {
		placedAt = time.Now().UTC()
	}
	order.Status = domain.OrderPlaced
	order.PlacedAt = &placedAt
	if d.bets != nil {
		if err := d.bets.UpdateStatus(ctx, order.ID, domain.OrderPlaced, conf.OrderRef); err != nil {
			d.logger.Error("order status update failed", slog.String("error", err.Error()))
		}
	}

	d.logger.Info("order placed",
		slog.String("order_id", order.ID),
		slog.String("opportunity_id", opp.ID),
		slog.String("strategy", opp.Strategy),
		slog.String("stake", stake.String()),
		slog.String("ref", conf.OrderRef),
	)
	d.publish(ctx, "order_placed", order)
	if d.notifier != nil {
		_ = d.notifier.Notify(ctx, "order_placed", "Bet placed",
			opp.Strategy+" "+string(opp.Market)+" on "+opp.EventID+" stake "+stake.String())
	}
	return order, nil
}

// RecordRejection persists a risk rejection for audit. A rejection is an
// expected terminal state, not a fault.
func (d *Dispatcher) RecordRejection(ctx context.Context, opp domain.BettingOpportunity, decision risk.Decision) {
	order := domain.BetOrder{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		EventID:       opp.EventID,
		Sport:         opp.Sport,
		Market:        opp.Market,
		Legs:          opp.Legs,
		Stake:         opp.Stake,
		Odds:          combinedOdds(opp),
		Status:        domain.OrderRejected,
		Result:        domain.ResultVoid,
		Reason:        string(decision.Reason),
		CreatedAt:     time.Now().UTC(),
	}
	if d.bets != nil {
		if err := d.bets.Create(ctx, order); err != nil {
			d.logger.Error("rejection record failed", slog.String("error", err.Error()))
		}
	}
	d.publish(ctx, "risk_rejected", order)
}

// Settle applies external settlement feedback to a placed order and releases
// its exposure.
func (d *Dispatcher) Settle(ctx context.Context, orderID string, result domain.BetResult, profitLoss decimal.Decimal) error {
	if d.bets != nil {
		if err := d.bets.Settle(ctx, orderID, result, profitLoss); err != nil {
			return err
		}
		if order, err := d.bets.GetByID(ctx, orderID); err == nil {
			d.risk.Release(order.OpportunityID)
			order.Status = domain.OrderSettled
			order.Result = result
			order.ProfitLoss = profitLoss
			d.publish(ctx, "bet_settled", order)
			if d.notifier != nil {
				_ = d.notifier.Notify(ctx, "bet_settled", "Bet settled",
					orderID+" "+string(result)+" P&L "+profitLoss.String())
			}
		}
	}
	d.logger.Info("bet settled",
		slog.String("order_id", orderID),
		slog.String("result", string(result)),
		slog.String("pnl", profitLoss.String()),
	)
	return nil
}

// publish emits the structured event for the alert/UI boundary.
func (d *Dispatcher) publish(ctx context.Context, event string, order domain.BetOrder) {
	if d.bus == nil {
		return
	}
	fields := map[string]any{
		"order_id":       order.ID,
		"opportunity_id": order.OpportunityID,
		"event_id":       order.EventID,
		"sport":          order.Sport,
		"market":         string(order.Market),
		"stake":          order.Stake.String(),
		"status":         string(order.Status),
		"reason":         order.Reason,
	}
	if err := d.bus.Publish(ctx, event, fields); err != nil {
		d.logger.Warn("event publish failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// combinedOdds is the committed price: single-leg orders carry the leg's
// odds; multi-leg arbitrage orders carry the guaranteed payout multiplier
// per unit of total stake.
func combinedOdds(opp domain.BettingOpportunity) decimal.Decimal {
	if len(opp.Legs) == 1 {
		return opp.Legs[0].Odds
	}
	return decimal.NewFromInt(1).Add(opp.Edge)
}
