// REST API CLIENT FOR INDODAX SPOT TRADING
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

// tapiResponse wraps every private (TAPI) response.
type tapiResponse struct {
	Success int             `json:"success"`
	Error   string          `json:"error"`
	Return  json.RawMessage `json:"return"`
}

// IndodaxConnector talks to an Indodax-style spot exchange: HMAC-SHA512
// signed form posts on the private endpoint, plain GETs on the public one.
type IndodaxConnector struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func NewIndodaxConnector(apiKey, apiSecret, baseURL string) *IndodaxConnector {
	retryCount := defaultRetryAttempts - 1

	if baseURL == "" {
		baseURL = "https://indodax.com"
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &IndodaxConnector{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		http:      httpClient,
	}
}

func signPayload(payload, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// tapi performs one signed private call. params must not include method or
// timestamp; both are added here.
func (c *IndodaxConnector) tapi(
	ctx context.Context,
	method string,
	params map[string]string,
) (json.RawMessage, error) {

	form := url.Values{}
	form.Set("method", method)
	form.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	for k, v := range params {
		form.Set(k, v)
	}
	payload := form.Encode()

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetHeader("Key", c.apiKey).
		SetHeader("Sign", signPayload(payload, c.apiSecret)).
		SetBody(payload).
		Post("/tapi")

	if err != nil {
		return nil, fmt.Errorf("indodax %s request failed: %w", method, err)
	}

	var wrapper tapiResponse
	if err := json.Unmarshal(resp.Body(), &wrapper); err != nil {
		return nil, fmt.Errorf("indodax %s: invalid response body: %w", method, err)
	}

	if wrapper.Success != 1 {
		if wrapper.Error == "" {
			wrapper.Error = "unknown error"
		}
		return nil, fmt.Errorf("indodax %s rejected: %s", method, wrapper.Error)
	}

	return wrapper.Return, nil
}

// PlaceOrder submits a limit or market order. Buys spend req.QuoteAmount of
// the quote currency; sells offer req.Amount of the base asset.
func (c *IndodaxConnector) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	base, quote := SplitPair(req.Pair)

	params := map[string]string{
		"pair":       req.Pair,
		"type":       req.Side,
		"price":      req.Price.String(),
		"order_type": req.OrderType,
	}
	if req.ClientOrderID != "" {
		params["client_order_id"] = req.ClientOrderID
	}

	if req.Side == "buy" {
		params[quote] = req.QuoteAmount.String()
	} else {
		params[base] = req.Amount.String()
	}

	ret, err := c.tapi(ctx, "trade", params)
	if err != nil {
		return nil, err
	}

	var body struct {
		OrderID json.Number `json:"order_id"`
	}
	if err := json.Unmarshal(ret, &body); err != nil {
		return nil, fmt.Errorf("indodax trade: invalid return payload: %w", err)
	}
	if body.OrderID.String() == "" {
		return nil, errors.New("indodax trade: no order_id in response")
	}

	logger.WithFields(map[string]interface{}{
		"pair":              req.Pair,
		"side":              req.Side,
		"exchange_order_id": body.OrderID.String(),
	}).Info("Indodax order placed")

	return &OrderAck{ExchangeOrderID: body.OrderID.String()}, nil
}

// CancelOrder cancels an open order.
func (c *IndodaxConnector) CancelOrder(ctx context.Context, pair, exchangeOrderID string) error {
	_, err := c.tapi(ctx, "cancelOrder", map[string]string{
		"pair":     pair,
		"order_id": exchangeOrderID,
	})
	return err
}

// GetOrderStatus fetches the authoritative state of one order. Indodax keys
// the ordered/remaining quantities by currency: base units for sells, quote
// units for buys (converted here using the order price).
func (c *IndodaxConnector) GetOrderStatus(ctx context.Context, pair, exchangeOrderID string) (*OrderState, error) {
	ret, err := c.tapi(ctx, "getOrder", map[string]string{
		"pair":     pair,
		"order_id": exchangeOrderID,
	})
	if err != nil {
		return nil, err
	}

	var body struct {
		Order map[string]json.RawMessage `json:"order"`
	}
	if err := json.Unmarshal(ret, &body); err != nil {
		return nil, fmt.Errorf("indodax getOrder: invalid return payload: %w", err)
	}
	if body.Order == nil {
		return nil, errors.New("indodax getOrder: missing order payload")
	}

	status := rawString(body.Order["status"])
	price := rawDecimal(body.Order["price"])
	base, quote := SplitPair(pair)

	ordered := rawDecimal(body.Order["order_"+base])
	remain := rawDecimal(body.Order["remain_"+base])
	if ordered.IsZero() {
		// Buy orders are denominated in the quote currency.
		orderedQuote := rawDecimal(body.Order["order_"+quote])
		remainQuote := rawDecimal(body.Order["remain_"+quote])
		if !orderedQuote.IsZero() && price.IsPositive() {
			ordered = orderedQuote.Div(price)
			remain = remainQuote.Div(price)
		}
	}

	filled := ordered.Sub(remain)
	if filled.IsNegative() {
		filled = decimal.Zero
	}

	state := &OrderState{FilledAmount: filled}

	switch status {
	case "filled", "done":
		state.Status = GatewayStatusFilled
	case "cancelled", "canceled":
		state.Status = GatewayStatusCancelled
	default:
		if filled.IsPositive() && remain.IsPositive() {
			state.Status = GatewayStatusPartial
		} else if !ordered.IsZero() && remain.IsZero() {
			state.Status = GatewayStatusFilled
		} else {
			state.Status = GatewayStatusOpen
		}
	}

	return state, nil
}

// GetTicker fetches the last traded price for one pair (public endpoint).
func (c *IndodaxConnector) GetTicker(ctx context.Context, pair string) (*Ticker, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/api/ticker/" + pair)
	if err != nil {
		return nil, fmt.Errorf("indodax ticker request failed: %w", err)
	}

	var body struct {
		Ticker struct {
			Last json.Number `json:"last"`
		} `json:"ticker"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("indodax ticker: invalid response body: %w", err)
	}

	last, err := decimal.NewFromString(body.Ticker.Last.String())
	if err != nil {
		return nil, fmt.Errorf("indodax ticker: invalid last price %q", body.Ticker.Last.String())
	}

	return &Ticker{Pair: pair, LastPrice: last}, nil
}

// GetAllTickers fetches the full market snapshot in one call (public
// endpoint). The position monitor uses this once per cycle.
func (c *IndodaxConnector) GetAllTickers(ctx context.Context) (map[string]decimal.Decimal, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/api/ticker_all")
	if err != nil {
		return nil, fmt.Errorf("indodax ticker_all request failed: %w", err)
	}

	var body struct {
		Tickers map[string]struct {
			Last json.Number `json:"last"`
		} `json:"tickers"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("indodax ticker_all: invalid response body: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(body.Tickers))
	for pair, t := range body.Tickers {
		last, convErr := decimal.NewFromString(t.Last.String())
		if convErr != nil {
			logger.WithField("pair", pair).
				Warn("Skipping ticker with unparseable last price")
			continue
		}
		prices[pair] = last
	}

	return prices, nil
}

// Prices implements PriceSource on top of GetAllTickers so the connector can
// feed the monitor directly when no websocket stream is configured.
func (c *IndodaxConnector) Prices(ctx context.Context) (map[string]decimal.Decimal, error) {
	return c.GetAllTickers(ctx)
}

// GetBalance fetches per-currency available balances.
func (c *IndodaxConnector) GetBalance(ctx context.Context) (map[string]decimal.Decimal, error) {
	ret, err := c.tapi(ctx, "getInfo", nil)
	if err != nil {
		return nil, err
	}

	var body struct {
		Balance map[string]json.Number `json:"balance"`
	}
	if err := json.Unmarshal(ret, &body); err != nil {
		return nil, fmt.Errorf("indodax getInfo: invalid return payload: %w", err)
	}

	balances := make(map[string]decimal.Decimal, len(body.Balance))
	for cur, raw := range body.Balance {
		amount, convErr := decimal.NewFromString(raw.String())
		if convErr != nil {
			continue
		}
		balances[cur] = amount
	}

	return balances, nil
}

func rawString(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func rawDecimal(raw json.RawMessage) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}
