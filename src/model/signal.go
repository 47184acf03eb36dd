package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SignalStatusPending  = "pending"
	SignalStatusApproved = "approved"
	SignalStatusRejected = "rejected"
	SignalStatusExecuted = "executed"
	SignalStatusSkipped  = "skipped"
	SignalStatusExpired  = "expired"
)

const (
	SignalActionBuy  = "buy"
	SignalActionSell = "sell"
	SignalActionHold = "hold"
)

// Signal is an AI-produced trade recommendation with a validity window and an
// approval state. Hold recommendations are never persisted.
type Signal struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"index" json:"user_id"`
	Pair   string `gorm:"size:20;index" json:"pair"`

	Action     string          `gorm:"size:10;not null" json:"action"`
	Confidence decimal.Decimal `gorm:"type:numeric" json:"confidence"`

	EntryPrice  decimal.Decimal `gorm:"type:numeric" json:"entry_price"`
	TargetPrice decimal.Decimal `gorm:"type:numeric" json:"target_price"`
	StopLoss    decimal.Decimal `gorm:"type:numeric" json:"stop_loss"`
	SizePercent int             `json:"size_percent"`

	Rationale string `gorm:"type:text" json:"rationale"`

	Status     string    `gorm:"size:50;not null;default:pending;index" json:"status"`
	ValidUntil time.Time `json:"valid_until"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for signals.
func (Signal) TableName() string {
	return "signals"
}

// ExpiredAt reports whether the signal's validity window has passed.
func (s *Signal) ExpiredAt(now time.Time) bool {
	return !s.ValidUntil.IsZero() && now.After(s.ValidUntil)
}

// IsTerminal reports whether the signal can no longer change state.
func (s *Signal) IsTerminal() bool {
	switch s.Status {
	case SignalStatusExecuted, SignalStatusRejected, SignalStatusExpired, SignalStatusSkipped:
		return true
	}
	return false
}
