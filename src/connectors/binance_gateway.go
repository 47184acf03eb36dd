package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// BinanceGateway adapts the goex binance client onto the ExchangeGateway
// boundary, for users trading USDT-quoted pairs instead of the default
// IDR exchange.
type BinanceGateway struct {
	api goex.API
}

func NewBinanceGateway(apiKey, apiSecret string) *BinanceGateway {
	apiConfig := &goex.APIConfig{
		HttpClient:   http.DefaultClient,
		Endpoint:     binance.GLOBAL_API_BASE_URL,
		ApiKey:       apiKey,
		ApiSecretKey: apiSecret,
	}
	return &BinanceGateway{api: binance.NewWithConfig(apiConfig)}
}

// WithAPI overrides the underlying goex client. Useful for tests.
func (g *BinanceGateway) WithAPI(api goex.API) *BinanceGateway {
	return &BinanceGateway{api: api}
}

func currencyPair(pair string) goex.CurrencyPair {
	return goex.NewCurrencyPair2(strings.ToUpper(pair))
}

func (g *BinanceGateway) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	pair := currencyPair(req.Pair)
	price := req.Price.String()

	var (
		order *goex.Order
		err   error
	)

	if req.Side == "buy" {
		amount := req.Amount
		if amount.IsZero() && req.Price.IsPositive() {
			amount = req.QuoteAmount.Div(req.Price)
		}
		order, err = g.api.LimitBuy(amount.String(), price, pair)
	} else {
		order, err = g.api.LimitSell(req.Amount.String(), price, pair)
	}

	if err != nil {
		return nil, fmt.Errorf("binance place order failed: %w", err)
	}
	if order == nil || order.OrderID2 == "" {
		return nil, errors.New("binance place order: empty order id")
	}

	logger.WithFields(map[string]interface{}{
		"pair":              req.Pair,
		"side":              req.Side,
		"exchange_order_id": order.OrderID2,
	}).Info("Binance order placed")

	return &OrderAck{ExchangeOrderID: order.OrderID2}, nil
}

func (g *BinanceGateway) CancelOrder(ctx context.Context, pair, exchangeOrderID string) error {
	ok, err := g.api.CancelOrder(exchangeOrderID, currencyPair(pair))
	if err != nil {
		return fmt.Errorf("binance cancel order failed: %w", err)
	}
	if !ok {
		return errors.New("binance cancel order: exchange refused")
	}
	return nil
}

func (g *BinanceGateway) GetOrderStatus(ctx context.Context, pair, exchangeOrderID string) (*OrderState, error) {
	order, err := g.api.GetOneOrder(exchangeOrderID, currencyPair(pair))
	if err != nil {
		return nil, fmt.Errorf("binance get order failed: %w", err)
	}

	state := &OrderState{
		FilledAmount: decimal.NewFromFloat(order.DealAmount),
	}

	switch order.Status {
	case goex.ORDER_FINISH:
		state.Status = GatewayStatusFilled
	case goex.ORDER_PART_FINISH:
		state.Status = GatewayStatusPartial
	case goex.ORDER_CANCEL:
		state.Status = GatewayStatusCancelled
	default:
		state.Status = GatewayStatusOpen
	}

	return state, nil
}

func (g *BinanceGateway) GetTicker(ctx context.Context, pair string) (*Ticker, error) {
	ticker, err := g.api.GetTicker(currencyPair(pair))
	if err != nil {
		return nil, fmt.Errorf("binance ticker failed: %w", err)
	}
	return &Ticker{Pair: pair, LastPrice: decimal.NewFromFloat(ticker.Last)}, nil
}

// GetAllTickers has no single-call equivalent on this client, so it is
// resolved per pair by the callers that know their pair set. An empty map is
// returned rather than an error to keep monitor snapshots uniform.
func (g *BinanceGateway) GetAllTickers(ctx context.Context) (map[string]decimal.Decimal, error) {
	return map[string]decimal.Decimal{}, nil
}

func (g *BinanceGateway) GetBalance(ctx context.Context) (map[string]decimal.Decimal, error) {
	account, err := g.api.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("binance get account failed: %w", err)
	}

	balances := make(map[string]decimal.Decimal, len(account.SubAccounts))
	for currency, sub := range account.SubAccounts {
		balances[strings.ToLower(currency.Symbol)] = decimal.NewFromFloat(sub.Amount)
	}

	return balances, nil
}
