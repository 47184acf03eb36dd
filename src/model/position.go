package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PositionStatusOpen            = "open"
	PositionStatusPartiallyClosed = "partially_closed"
	PositionStatusClosed          = "closed"
)

const (
	CloseReasonTakeProfit = "take_profit"
	CloseReasonStopLoss   = "stop_loss"
	CloseReasonManual     = "manual"
	CloseReasonSignal     = "signal"
)

// Position is a bot-acquired holding of one asset, tracked independently of
// the user's full exchange balance. Positions are created only when an entry
// order is confirmed filled, mutated only through the position manager, and
// never deleted.
type Position struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"index" json:"user_id"`
	Pair   string `gorm:"size:20;index" json:"pair"`

	Amount     decimal.Decimal `gorm:"type:numeric" json:"amount"`
	EntryPrice decimal.Decimal `gorm:"type:numeric" json:"entry_price"`
	Cost       decimal.Decimal `gorm:"type:numeric" json:"cost"`

	StopLoss   *decimal.Decimal `gorm:"type:numeric" json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal `gorm:"type:numeric" json:"take_profit,omitempty"`

	Status string `gorm:"size:50;not null;default:open;index" json:"status"`

	SignalID     *uint `gorm:"index" json:"signal_id,omitempty"`
	EntryOrderID *uint `gorm:"index" json:"entry_order_id,omitempty"`
	ExitOrderID  *uint `json:"exit_order_id,omitempty"`

	ExitPrice   *decimal.Decimal `gorm:"type:numeric" json:"exit_price,omitempty"`
	ExitAmount  *decimal.Decimal `gorm:"type:numeric" json:"exit_amount,omitempty"`
	Pnl         *decimal.Decimal `gorm:"type:numeric" json:"pnl,omitempty"`
	PnlPercent  *decimal.Decimal `gorm:"type:numeric" json:"pnl_percent,omitempty"`
	CloseReason *string          `gorm:"size:20" json:"close_reason,omitempty"`
	ClosedAt    *time.Time       `json:"closed_at,omitempty"`

	OpenedAt  time.Time `json:"opened_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for positions.
func (Position) TableName() string {
	return "positions"
}

// OpenPositionStatuses are the statuses under which a position still holds
// sellable bot inventory.
func OpenPositionStatuses() []string {
	return []string{PositionStatusOpen, PositionStatusPartiallyClosed}
}
