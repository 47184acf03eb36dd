package advisor

import (
	"context"

	"github.com/shopspring/decimal"
)

// Advice is the structured recommendation produced by the signal generator.
type Advice struct {
	Action      string          `json:"action"` // buy | sell | hold
	Confidence  decimal.Decimal `json:"confidence"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	TargetPrice decimal.Decimal `json:"target_price"`
	StopLoss    decimal.Decimal `json:"stop_loss"`
	SizePercent int             `json:"size_percent"`
	Rationale   string          `json:"rationale"`
}

// Candle is one OHLC row of the market context shipped with a request.
type Candle struct {
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Request carries the market and risk context for one analysis call.
type Request struct {
	Pair        string          `json:"pair"`
	RiskProfile string          `json:"risk_profile"`
	LastPrice   decimal.Decimal `json:"last_price"`
	Candles     []Candle        `json:"candles,omitempty"`
}

// SignalGenerator produces a recommendation for one pair, or fails. The
// schedulers treat every failure as transient and per-user scoped.
type SignalGenerator interface {
	Generate(ctx context.Context, req Request) (*Advice, error)
}
