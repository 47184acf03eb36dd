package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UserExchange holds one user's exchange access plus the bot settings the
// schedulers evaluate on every tick. Credentials arrive here as typed values;
// key management happens upstream.
type UserExchange struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	UserID     uint `gorm:"not null;index:idx_user_exchange,unique" json:"user_id"`
	ExchangeID uint `gorm:"not null;index:idx_user_exchange,unique" json:"exchange_id"`

	APIKey    string `gorm:"column:api_key;type:text" json:"-"`
	APISecret string `gorm:"column:api_secret;type:text" json:"-"`

	// BotEnabled gates the user in/out of every scheduled cycle.
	BotEnabled bool `gorm:"column:bot_enabled" json:"bot_enabled"`
	// AutoTrade executes approved-quality signals without manual review.
	AutoTrade bool `gorm:"column:auto_trade" json:"auto_trade"`

	// Pairs is a comma separated list of tradable pairs, e.g. "btc_idr,eth_idr".
	Pairs string `gorm:"size:255;default:btc_idr" json:"pairs"`

	MaxOpenPositions int             `gorm:"default:3" json:"max_open_positions"`
	OrderSizePercent int             `gorm:"default:10" json:"order_size_percent"`
	MinConfidence    decimal.Decimal `gorm:"type:numeric" json:"min_confidence"`
	IntervalMinutes  int             `gorm:"default:30" json:"interval_minutes"`
	RiskProfile      string          `gorm:"size:20;default:balanced" json:"risk_profile"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Exchange *Exchange `gorm:"constraint:OnDelete:CASCADE" json:"exchange,omitempty"`
}

func (UserExchange) TableName() string {
	return "user_exchanges"
}

// PairList splits the configured pairs, dropping empty entries.
func (ue *UserExchange) PairList() []string {
	parts := strings.Split(ue.Pairs, ",")
	pairs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			pairs = append(pairs, p)
		}
	}
	return pairs
}

// HasCredentials reports whether exchange calls can be signed for this user.
func (ue *UserExchange) HasCredentials() bool {
	return ue.APIKey != "" && ue.APISecret != ""
}
