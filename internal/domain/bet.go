package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a bet order.
type OrderStatus string

const (
	OrderProposed OrderStatus = "proposed"
	OrderApproved OrderStatus = "approved"
	OrderRejected OrderStatus = "rejected"
	OrderPlaced   OrderStatus = "placed"
	OrderSettled  OrderStatus = "settled"
)

// BetResult is the settlement outcome of a placed bet.
type BetResult string

const (
	ResultPending BetResult = "pending"
	ResultWin     BetResult = "win"
	ResultLoss    BetResult = "loss"
	ResultPush    BetResult = "push"
	ResultVoid    BetResult = "void"
)

// BetOrder is created when an opportunity is approved. Odds is the committed
// price at approval time; ProfitLoss is filled in at settlement.
type BetOrder struct {
	ID            string
	OpportunityID string
	EventID       string
	Sport         string
	Market        MarketType
	Legs          []OpportunityLeg
	Stake         decimal.Decimal
	Odds          decimal.Decimal
	Status        OrderStatus
	Result        BetResult
	ProfitLoss    decimal.Decimal
	Reason        string
	CreatedAt     time.Time
	PlacedAt      *time.Time
	SettledAt     *time.Time
}

// Confirmation is the execution boundary's acknowledgement of a placed or
// alerted order.
type Confirmation struct {
	OrderRef string
	PlacedAt time.Time
}
