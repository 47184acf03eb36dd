package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// Client calls the analysis service over HTTP and parses the structured
// recommendation it returns.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL, apiKey string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60 * time.Second).
		SetRetryCount(2).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r != nil && (r.StatusCode() >= 500 || r.StatusCode() == 429)
		})

	if apiKey != "" {
		httpClient.SetAuthToken(apiKey)
	}

	return &Client{http: httpClient}
}

// Generate posts the market/risk context and decodes the recommendation.
func (c *Client) Generate(ctx context.Context, req Request) (*Advice, error) {
	payload := buildPayload(req)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post("/v1/analyze")

	if err != nil {
		return nil, fmt.Errorf("advisor request failed: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("advisor returned status %d", resp.StatusCode())
	}

	var advice Advice
	if err := json.Unmarshal(resp.Body(), &advice); err != nil {
		return nil, fmt.Errorf("advisor: invalid response body: %w", err)
	}

	advice.Action = strings.ToLower(strings.TrimSpace(advice.Action))
	switch advice.Action {
	case "buy", "sell", "hold":
	default:
		return nil, fmt.Errorf("advisor: unknown action %q", advice.Action)
	}

	logger.WithFields(map[string]interface{}{
		"pair":       req.Pair,
		"action":     advice.Action,
		"confidence": advice.Confidence,
	}).Debug("Advisor recommendation received")

	return &advice, nil
}

// buildPayload prepares the request body. When no candle history is supplied,
// a single flat OHLC row is synthesized from the last price so the analysis
// service always receives a market window; this is a data-quality workaround
// on the context, not part of the recommendation contract.
func buildPayload(req Request) Request {
	if len(req.Candles) == 0 && req.LastPrice.IsPositive() {
		req.Candles = []Candle{{
			Open:  req.LastPrice,
			High:  req.LastPrice,
			Low:   req.LastPrice,
			Close: req.LastPrice,
		}}
	}
	return req
}
