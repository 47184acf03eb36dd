package connectors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"botmanager/src/model"
)

// Gateway-side order statuses, as reported by GetOrderStatus. The reconciler
// maps these onto local tracked-order statuses.
const (
	GatewayStatusOpen      = "open"
	GatewayStatusPartial   = "partial"
	GatewayStatusFilled    = "filled"
	GatewayStatusCancelled = "cancelled"
)

// ErrMissingCredentials is returned by the gateway factory when a user has no
// usable API key/secret. Cycles treat it as a per-user skip, never a failure.
var ErrMissingCredentials = errors.New("exchange credentials not configured")

// OrderRequest describes one order to submit to the exchange.
type OrderRequest struct {
	Pair      string
	Side      string // model.OrderSideBuy / model.OrderSideSell
	OrderType string // model.OrderTypeLimit / model.OrderTypeMarket
	Price     decimal.Decimal
	// Amount is the base-asset quantity (used for sells).
	Amount decimal.Decimal
	// QuoteAmount is the quote-currency budget (used for buys).
	QuoteAmount decimal.Decimal
	// ClientOrderID is the locally generated idempotency key.
	ClientOrderID string
}

// OrderAck is the exchange's acceptance of a placed order.
type OrderAck struct {
	ExchangeOrderID string
}

// OrderState is the exchange's authoritative view of one order.
type OrderState struct {
	Status       string // one of the GatewayStatus* constants
	FilledAmount decimal.Decimal
}

// Ticker is a single-pair market snapshot.
type Ticker struct {
	Pair      string
	LastPrice decimal.Decimal
}

// ExchangeGateway is the abstract request/response boundary to an exchange.
// Every call may fail with network/auth/rate-limit errors; callers treat all
// failures as transient and retry only via the next scheduled cycle.
type ExchangeGateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderAck, error)
	CancelOrder(ctx context.Context, pair, exchangeOrderID string) error
	GetOrderStatus(ctx context.Context, pair, exchangeOrderID string) (*OrderState, error)
	GetTicker(ctx context.Context, pair string) (*Ticker, error)
	GetAllTickers(ctx context.Context) (map[string]decimal.Decimal, error)
	GetBalance(ctx context.Context) (map[string]decimal.Decimal, error)
}

// PriceSource supplies one price snapshot per monitor cycle.
type PriceSource interface {
	Prices(ctx context.Context) (map[string]decimal.Decimal, error)
}

// GatewayFactory builds a per-user gateway from the stored exchange settings.
type GatewayFactory func(ue *model.UserExchange) (ExchangeGateway, error)

// DefaultGatewayFactory selects the connector by the exchange name on the
// user's settings row. Indodax is the default when no exchange is linked.
func DefaultGatewayFactory(ue *model.UserExchange) (ExchangeGateway, error) {
	if ue == nil || !ue.HasCredentials() {
		return nil, ErrMissingCredentials
	}

	name := "indodax"
	if ue.Exchange != nil && ue.Exchange.Name != "" {
		name = strings.ToLower(ue.Exchange.Name)
	}

	config := GetConfig()

	switch name {
	case "indodax":
		return NewIndodaxConnector(ue.APIKey, ue.APISecret, config.IndodaxBaseURL), nil
	case "binance":
		return NewBinanceGateway(ue.APIKey, ue.APISecret), nil
	default:
		return nil, fmt.Errorf("exchange %s not supported", name)
	}
}

// SplitPair breaks a pair like "btc_idr" into base and quote currencies.
func SplitPair(pair string) (base, quote string) {
	parts := strings.SplitN(strings.ToLower(pair), "_", 2)
	base = parts[0]
	if len(parts) == 2 {
		quote = parts[1]
	}
	return base, quote
}
