package connectors

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	// streamFreshness is how long a streamed price stays usable before the
	// REST fallback takes over for that pair.
	streamFreshness = 30 * time.Second

	reconnectBaseDelay = 2 * time.Second
	reconnectMaxDelay  = 60 * time.Second
)

type streamFrame struct {
	Pair string      `json:"pair"`
	Last json.Number `json:"last"`
}

type streamPrice struct {
	price decimal.Decimal
	seen  time.Time
}

// TickerStream keeps a live last-price map fed by a websocket market feed.
// It implements PriceSource: fresh streamed prices win, and anything stale or
// missing is topped up from the REST fallback source.
type TickerStream struct {
	url      string
	fallback PriceSource

	mu     sync.RWMutex
	prices map[string]streamPrice

	now func() time.Time
}

func NewTickerStream(url string, fallback PriceSource) *TickerStream {
	return &TickerStream{
		url:      url,
		fallback: fallback,
		prices:   make(map[string]streamPrice),
		now:      time.Now,
	}
}

// Run consumes the feed until ctx is cancelled, reconnecting with backoff.
func (s *TickerStream) Run(ctx context.Context) {
	delay := reconnectBaseDelay

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}

		logger.WithError(err).
			WithField("url", s.url).
			Warn("Ticker stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

func (s *TickerStream) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var frame streamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}

		last, convErr := decimal.NewFromString(frame.Last.String())
		if convErr != nil || frame.Pair == "" {
			continue
		}

		s.set(frame.Pair, last)
	}
}

func (s *TickerStream) set(pair string, price decimal.Decimal) {
	s.mu.Lock()
	s.prices[pair] = streamPrice{price: price, seen: s.now()}
	s.mu.Unlock()
}

// Prices returns the current snapshot: fresh streamed prices merged over the
// REST fallback. A fallback failure only matters when the stream has nothing
// fresh to offer.
func (s *TickerStream) Prices(ctx context.Context) (map[string]decimal.Decimal, error) {
	fresh := make(map[string]decimal.Decimal)
	cutoff := s.now().Add(-streamFreshness)

	s.mu.RLock()
	for pair, p := range s.prices {
		if p.seen.After(cutoff) {
			fresh[pair] = p.price
		}
	}
	s.mu.RUnlock()

	if s.fallback == nil {
		return fresh, nil
	}

	rest, err := s.fallback.Prices(ctx)
	if err != nil {
		if len(fresh) > 0 {
			logger.WithError(err).
				Warn("REST price fallback failed, serving streamed prices only")
			return fresh, nil
		}
		return nil, err
	}

	for pair, price := range rest {
		if _, ok := fresh[pair]; !ok {
			fresh[pair] = price
		}
	}

	return fresh, nil
}
