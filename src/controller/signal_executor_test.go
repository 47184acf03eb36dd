package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"botmanager/src/connectors"
	"botmanager/src/model"
	"botmanager/src/repository"
)

type fakeGateway struct {
	balances  map[string]decimal.Decimal
	ticker    decimal.Decimal
	placed    []connectors.OrderRequest
	failPlace error
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, req connectors.OrderRequest) (*connectors.OrderAck, error) {
	if g.failPlace != nil {
		return nil, g.failPlace
	}
	g.placed = append(g.placed, req)
	return &connectors.OrderAck{ExchangeOrderID: "ex-1"}, nil
}

func (g *fakeGateway) CancelOrder(ctx context.Context, pair, exchangeOrderID string) error {
	return nil
}

func (g *fakeGateway) GetOrderStatus(ctx context.Context, pair, exchangeOrderID string) (*connectors.OrderState, error) {
	return &connectors.OrderState{Status: connectors.GatewayStatusOpen}, nil
}

func (g *fakeGateway) GetTicker(ctx context.Context, pair string) (*connectors.Ticker, error) {
	return &connectors.Ticker{Pair: pair, LastPrice: g.ticker}, nil
}

func (g *fakeGateway) GetAllTickers(ctx context.Context) (map[string]decimal.Decimal, error) {
	return map[string]decimal.Decimal{}, nil
}

func (g *fakeGateway) GetBalance(ctx context.Context) (map[string]decimal.Decimal, error) {
	return g.balances, nil
}

type recordedEvent struct {
	UserID uint
	Kind   string
}

type recordingNotifier struct {
	events []recordedEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, userID uint, kind, title, body string) {
	n.events = append(n.events, recordedEvent{UserID: userID, Kind: kind})
}

type executorFixture struct {
	executor  *SignalExecutor
	signals   *repository.SignalRepository
	orders    *repository.OrderRepository
	positions *repository.PositionRepository
	gateway   *fakeGateway
	notifier  *recordingNotifier
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	db := newTestDB(t)
	ctx := context.Background()

	userExchangeRepo := (&repository.UserExchangeRepository{}).WithDB(db)
	if err := db.WithContext(ctx).Create(&model.UserExchange{
		UserID:           1,
		ExchangeID:       1,
		APIKey:           "key",
		APISecret:        "secret",
		BotEnabled:       true,
		Pairs:            "btc_idr",
		MaxOpenPositions: 3,
		OrderSizePercent: 10,
	}).Error; err != nil {
		t.Fatalf("failed to seed user exchange: %v", err)
	}

	gateway := &fakeGateway{
		balances: map[string]decimal.Decimal{"idr": dec("1000")},
		ticker:   dec("100"),
	}
	notifier := &recordingNotifier{}

	signalRepo := (&repository.SignalRepository{}).WithDB(db)
	orderRepo := (&repository.OrderRepository{}).WithDB(db)
	positionRepo := (&repository.PositionRepository{}).WithDB(db)
	manager := NewPositionManager(positionRepo)

	executor := NewSignalExecutor(signalRepo, orderRepo, userExchangeRepo, manager,
		func(ue *model.UserExchange) (connectors.ExchangeGateway, error) {
			return gateway, nil
		}, notifier)

	return &executorFixture{
		executor:  executor,
		signals:   signalRepo,
		orders:    orderRepo,
		positions: positionRepo,
		gateway:   gateway,
		notifier:  notifier,
	}
}

func (f *executorFixture) seedSignal(t *testing.T, signal *model.Signal) *model.Signal {
	t.Helper()
	if signal.ValidUntil.IsZero() {
		signal.ValidUntil = time.Now().Add(time.Hour)
	}
	if err := f.signals.Create(context.Background(), signal); err != nil {
		t.Fatalf("failed to seed signal: %v", err)
	}
	return signal
}

func TestApproveBuySignalPlacesOrder(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	signal := f.seedSignal(t, &model.Signal{
		UserID:     1,
		Pair:       "btc_idr",
		Action:     model.SignalActionBuy,
		Confidence: dec("0.8"),
		EntryPrice: dec("100"),
		Status:     model.SignalStatusPending,
	})

	executed, err := f.executor.ApproveSignal(ctx, signal.ID)
	if err != nil {
		t.Fatalf("unexpected error approving buy signal: %v", err)
	}

	if executed.Status != model.SignalStatusExecuted {
		t.Fatalf("expected executed status, got %s", executed.Status)
	}

	if len(f.gateway.placed) != 1 {
		t.Fatalf("expected exactly one placed order, got %d", len(f.gateway.placed))
	}
	req := f.gateway.placed[0]
	if req.Side != model.OrderSideBuy {
		t.Fatalf("expected buy order, got %s", req.Side)
	}
	// 10% of the 1000 idr balance.
	if !req.QuoteAmount.Equal(dec("100")) {
		t.Fatalf("expected quote budget 100, got %s", req.QuoteAmount)
	}

	orders, err := f.orders.FindActive(ctx)
	if err != nil {
		t.Fatalf("unexpected error listing active orders: %v", err)
	}
	if len(orders) != 1 || orders[0].Status != model.OrderStatusPlaced {
		t.Fatalf("expected one placed order, got %+v", orders)
	}

	// The position is created by the reconciler once the fill is confirmed,
	// never at placement time.
	count, err := f.positions.CountOpenByUser(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error counting positions: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no position before fill confirmation, got %d", count)
	}
}

func TestApproveSignalTwiceRejected(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	signal := f.seedSignal(t, &model.Signal{
		UserID:     1,
		Pair:       "btc_idr",
		Action:     model.SignalActionBuy,
		EntryPrice: dec("100"),
		Status:     model.SignalStatusPending,
	})

	if _, err := f.executor.ApproveSignal(ctx, signal.ID); err != nil {
		t.Fatalf("unexpected error on first approval: %v", err)
	}

	_, err := f.executor.ApproveSignal(ctx, signal.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second approval, got %v", err)
	}

	if len(f.gateway.placed) != 1 {
		t.Fatalf("expected a single placement despite double approval, got %d", len(f.gateway.placed))
	}
}

func TestApproveExpiredSignal(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	signal := f.seedSignal(t, &model.Signal{
		UserID:     1,
		Pair:       "btc_idr",
		Action:     model.SignalActionBuy,
		EntryPrice: dec("100"),
		Status:     model.SignalStatusPending,
		ValidUntil: time.Now().Add(-time.Minute),
	})

	_, err := f.executor.ApproveSignal(ctx, signal.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for expired signal, got %v", err)
	}

	stored, err := f.signals.FindByID(ctx, signal.ID)
	if err != nil {
		t.Fatalf("unexpected error reloading signal: %v", err)
	}
	if stored.Status != model.SignalStatusExpired {
		t.Fatalf("expected lazy expiry to flip status to expired, got %s", stored.Status)
	}
	if len(f.gateway.placed) != 0 {
		t.Fatal("expected no order placement for an expired signal")
	}
}

func TestApproveMissingSignal(t *testing.T) {
	f := newExecutorFixture(t)

	_, err := f.executor.ApproveSignal(context.Background(), 12345)
	if !errors.Is(err, ErrSignalNotFound) {
		t.Fatalf("expected ErrSignalNotFound, got %v", err)
	}
}

func TestApproveSellWithoutHoldings(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	signal := f.seedSignal(t, &model.Signal{
		UserID:     1,
		Pair:       "btc_idr",
		Action:     model.SignalActionSell,
		EntryPrice: dec("100"),
		Status:     model.SignalStatusPending,
	})

	_, err := f.executor.ApproveSignal(ctx, signal.ID)
	if !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("expected ErrInsufficientHoldings, got %v", err)
	}
	if len(f.gateway.placed) != 0 {
		t.Fatal("expected no sell placement without bot holdings")
	}
}

func TestApproveSellClosesOldestPosition(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	manager := NewPositionManager(f.positions)
	opened, err := manager.Open(ctx, OpenParams{
		UserID:     1,
		Pair:       "btc_idr",
		Amount:     dec("2"),
		EntryPrice: dec("90"),
	})
	if err != nil {
		t.Fatalf("failed to open seed position: %v", err)
	}

	signal := f.seedSignal(t, &model.Signal{
		UserID:     1,
		Pair:       "btc_idr",
		Action:     model.SignalActionSell,
		EntryPrice: dec("100"),
		Status:     model.SignalStatusPending,
	})

	if _, err := f.executor.ApproveSignal(ctx, signal.ID); err != nil {
		t.Fatalf("unexpected error executing sell signal: %v", err)
	}

	if len(f.gateway.placed) != 1 || f.gateway.placed[0].Side != model.OrderSideSell {
		t.Fatalf("expected one sell placement, got %+v", f.gateway.placed)
	}
	if !f.gateway.placed[0].Amount.Equal(dec("2")) {
		t.Fatalf("expected the full held amount offered, got %s", f.gateway.placed[0].Amount)
	}

	stored, err := f.positions.FindByID(ctx, opened.ID)
	if err != nil {
		t.Fatalf("unexpected error reloading position: %v", err)
	}
	if stored.Status != model.PositionStatusClosed {
		t.Fatalf("expected position closed by sell signal, got %s", stored.Status)
	}
	if stored.CloseReason == nil || *stored.CloseReason != model.CloseReasonSignal {
		t.Fatalf("expected signal close reason, got %v", stored.CloseReason)
	}
}

func TestRejectSignal(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	signal := f.seedSignal(t, &model.Signal{
		UserID:     1,
		Pair:       "btc_idr",
		Action:     model.SignalActionBuy,
		EntryPrice: dec("100"),
		Status:     model.SignalStatusPending,
	})

	rejected, err := f.executor.RejectSignal(ctx, signal.ID)
	if err != nil {
		t.Fatalf("unexpected error rejecting signal: %v", err)
	}
	if rejected.Status != model.SignalStatusRejected {
		t.Fatalf("expected rejected status, got %s", rejected.Status)
	}

	_, err = f.executor.RejectSignal(ctx, signal.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second rejection, got %v", err)
	}
	if len(f.gateway.placed) != 0 {
		t.Fatal("expected no placements from rejection")
	}
}

func TestBuyPlacementFailureMarksOrderFailed(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)
	f.gateway.failPlace = errors.New("exchange rejected the order")

	signal := f.seedSignal(t, &model.Signal{
		UserID:     1,
		Pair:       "btc_idr",
		Action:     model.SignalActionBuy,
		EntryPrice: dec("100"),
		Status:     model.SignalStatusPending,
	})

	if _, err := f.executor.ApproveSignal(ctx, signal.ID); err == nil {
		t.Fatal("expected placement failure to surface")
	}

	failed, err := f.orders.CountByStatus(ctx, model.OrderStatusFailed)
	if err != nil {
		t.Fatalf("unexpected error counting failed orders: %v", err)
	}
	if failed != 1 {
		t.Fatalf("expected the order marked failed, got %d", failed)
	}

	active, err := f.orders.FindActive(ctx)
	if err != nil {
		t.Fatalf("unexpected error listing active orders: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("failed order must never be polled, got %+v", active)
	}
}
