package models

import (
	"time"
)

// Status is the lifecycle state of a trade.
type Status string

const (
	StatusPending           Status = "pending"
	StatusAwaitingBuySignal Status = "awaiting_buy_signal"
	StatusAwaitingDipSignal Status = "awaiting_dip_signal"
	StatusActive            Status = "active"
	StatusCompleted         Status = "completed"
	StatusError             Status = "error"
)

// OpenStatuses are the states the lifecycle sweep picks up.
var OpenStatuses = []Status{
	StatusPending,
	StatusAwaitingBuySignal,
	StatusAwaitingDipSignal,
	StatusActive,
}

// transitions lists every state change the engine may perform.
// Owner close and delete are handled outside this table.
var transitions = map[Status][]Status{
	StatusPending:           {StatusPending, StatusActive, StatusError},
	StatusAwaitingBuySignal: {StatusAwaitingBuySignal, StatusActive, StatusError},
	StatusAwaitingDipSignal: {StatusAwaitingDipSignal, StatusActive, StatusError},
	StatusActive:            {StatusActive, StatusCompleted, StatusAwaitingBuySignal, StatusError},
}

// CanTransition reports whether the engine may move a trade from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no engine transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Awaiting reports whether the trade is waiting for an entry signal.
func (s Status) Awaiting() bool {
	return s == StatusAwaitingBuySignal || s == StatusAwaitingDipSignal
}

func (s Status) String() string {
	return string(s)
}

// StrategyKind tags the strategy that owns a trade.
type StrategyKind string

const (
	StrategyManual    StrategyKind = "manual"
	StrategySignal    StrategyKind = "signal"
	StrategyPump      StrategyKind = "pump_five_pairs"
	StrategyStrategic StrategyKind = "strategic"
)

// Valid reports whether k is a known strategy.
func (k StrategyKind) Valid() bool {
	switch k {
	case StrategyManual, StrategySignal, StrategyPump, StrategyStrategic:
		return true
	}
	return false
}

// Recurring strategies go back to awaiting a buy signal after a take profit
// instead of completing.
func (k StrategyKind) Recurring() bool {
	return k == StrategySignal
}

// InitialStatus is the status a freshly created trade of this kind starts in.
func (k StrategyKind) InitialStatus() Status {
	switch k {
	case StrategySignal, StrategyPump:
		return StatusAwaitingBuySignal
	case StrategyStrategic:
		return StatusAwaitingDipSignal
	default:
		return StatusPending
	}
}

func (k StrategyKind) String() string {
	return string(k)
}

// Trade is one attempted or completed position on a single pair.
type Trade struct {
	ID                   uint         `gorm:"primaryKey" json:"id"`
	OwnerID              string       `gorm:"type:varchar(64);not null;index" json:"owner_id"`
	Pair                 string       `gorm:"type:varchar(20);not null;index" json:"pair"`
	Strategy             StrategyKind `gorm:"type:varchar(32);not null;index" json:"strategy"`
	QuoteAmount          float64      `gorm:"not null" json:"quote_amount"`
	AssetAmount          *float64     `json:"asset_amount"`
	TakeProfitPercentage float64      `gorm:"not null" json:"take_profit_percentage"`
	PurchasePrice        *float64     `json:"purchase_price"`
	TargetPrice          *float64     `json:"target_price"`
	SellPrice            *float64     `json:"sell_price"`
	ProfitLoss           *float64     `json:"profit_loss"`
	DipPercentage        *float64     `json:"dip_percentage,omitempty"`
	LookbackMinutes      *int         `json:"lookback_minutes,omitempty"`
	Status               Status       `gorm:"type:varchar(32);not null;index" json:"status"`
	Message              string       `json:"message"`
	EntryRationale       string       `json:"entry_rationale"`
	BuyOrderID           string       `gorm:"type:varchar(64)" json:"buy_order_id"`
	SellOrderID          string       `gorm:"type:varchar(64)" json:"sell_order_id"`
	Version              int          `gorm:"not null;default:0" json:"version"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
	CompletedAt          *time.Time   `json:"completed_at"`
}

// TableName pins the table name.
func (Trade) TableName() string {
	return "trades"
}

// Filled reports whether the position fields are populated.
func (t *Trade) Filled() bool {
	return t.AssetAmount != nil && t.PurchasePrice != nil && t.TargetPrice != nil
}

// HeldAmount returns the recorded base asset amount, or 0 when unfilled.
func (t *Trade) HeldAmount() float64 {
	if t.AssetAmount == nil {
		return 0
	}
	return *t.AssetAmount
}

// Fill records an executed buy. The target price is always derived here.
func (t *Trade) Fill(assetAmount, purchasePrice, feeRate float64) {
	target := TargetPrice(purchasePrice, t.TakeProfitPercentage, feeRate)
	t.AssetAmount = &assetAmount
	t.PurchasePrice = &purchasePrice
	t.TargetPrice = &target
}

// ClearPosition resets the position fields together.
func (t *Trade) ClearPosition() {
	t.AssetAmount = nil
	t.PurchasePrice = nil
	t.TargetPrice = nil
	t.BuyOrderID = ""
}

// Retarget recomputes the target price from the existing purchase price.
func (t *Trade) Retarget(takeProfit, feeRate float64) {
	t.TakeProfitPercentage = takeProfit
	if t.PurchasePrice == nil {
		return
	}
	target := TargetPrice(*t.PurchasePrice, takeProfit, feeRate)
	t.TargetPrice = &target
}

// AddProfit accumulates realised profit or loss in quote currency.
func (t *Trade) AddProfit(pnl float64) {
	if t.ProfitLoss != nil {
		pnl += *t.ProfitLoss
	}
	t.ProfitLoss = &pnl
}

// TargetPrice returns the sell price that nets takeProfit percent after the
// sell-side commission.
func TargetPrice(purchasePrice, takeProfit, feeRate float64) float64 {
	return purchasePrice * (1 + takeProfit/100) / (1 - feeRate)
}
