package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusPlaced    = "placed"
	OrderStatusPartial   = "partial"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
	OrderStatusFailed    = "failed"
)

const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"
)

const (
	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"
)

// Order is the local record mirroring one exchange order's lifecycle.
// It is created pending at submission time and advanced only by the order
// reconciler; terminal statuses are never revisited.
type Order struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"index" json:"user_id"`
	Pair   string `gorm:"size:20;index" json:"pair"`

	// ExchangeOrderID is nil until the exchange accepts the order.
	ExchangeOrderID *string `gorm:"size:64;index" json:"exchange_order_id,omitempty"`
	// ClientOrderID is generated locally and sent with the placement request.
	ClientOrderID string `gorm:"size:40" json:"client_order_id"`

	Side      string `gorm:"size:10;not null" json:"side"`
	OrderType string `gorm:"size:10;not null;default:limit" json:"order_type"`

	Price        decimal.Decimal `gorm:"type:numeric" json:"price"`
	Amount       decimal.Decimal `gorm:"type:numeric" json:"amount"`
	Cost         decimal.Decimal `gorm:"type:numeric" json:"cost"`
	FilledAmount decimal.Decimal `gorm:"type:numeric" json:"filled_amount"`

	Status string `gorm:"size:50;not null;default:pending;index" json:"status"`

	SignalID *uint `gorm:"index" json:"signal_id,omitempty"`

	// Risk parameters carried along so the reconciler can attach them to the
	// position it creates once the entry order fills.
	StopLoss   *decimal.Decimal `gorm:"type:numeric" json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal `gorm:"type:numeric" json:"take_profit,omitempty"`

	PlacedAt  *time.Time `json:"placed_at,omitempty"`
	FilledAt  *time.Time `json:"filled_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName allows you to control the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}

// IsTerminal reports whether the order has reached a status the reconciler
// must never advance past.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}
