package controller

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"botmanager/src/model"
	"botmanager/src/repository"
)

// helper to create a new in memory gorm DB and migrate schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in memory db: %v", err)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.Exchange{},
		&model.UserExchange{},
		&model.Order{},
		&model.Position{},
		&model.Signal{},
	); err != nil {
		t.Fatalf("failed to automigrate: %v", err)
	}

	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPositionManagerOpenAndFullClose(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	positionRepo := (&repository.PositionRepository{}).WithDB(db)
	manager := NewPositionManager(positionRepo)

	opened, err := manager.Open(ctx, OpenParams{
		UserID:     1,
		Pair:       "btc_idr",
		Amount:     dec("2"),
		EntryPrice: dec("100"),
	})
	if err != nil {
		t.Fatalf("unexpected error opening position: %v", err)
	}
	if opened.Status != model.PositionStatusOpen {
		t.Fatalf("expected open status, got %s", opened.Status)
	}
	if !opened.Cost.Equal(dec("200")) {
		t.Fatalf("expected cost to default to amount*entry, got %s", opened.Cost)
	}

	closed, err := manager.Close(ctx, opened.ID, dec("110"), nil, model.CloseReasonTakeProfit, nil)
	if err != nil {
		t.Fatalf("unexpected error closing position: %v", err)
	}

	if closed.Status != model.PositionStatusClosed {
		t.Fatalf("expected closed status, got %s", closed.Status)
	}
	if closed.Pnl == nil || !closed.Pnl.Equal(dec("20")) {
		t.Fatalf("expected pnl 20, got %v", closed.Pnl)
	}
	if closed.PnlPercent == nil || !closed.PnlPercent.Equal(dec("10")) {
		t.Fatalf("expected pnl percent 10, got %v", closed.PnlPercent)
	}
	if closed.CloseReason == nil || *closed.CloseReason != model.CloseReasonTakeProfit {
		t.Fatalf("expected take_profit close reason, got %v", closed.CloseReason)
	}
	if closed.ClosedAt == nil {
		t.Fatal("expected closed_at to be set")
	}
}

func TestPositionManagerDoubleCloseRejected(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	positionRepo := (&repository.PositionRepository{}).WithDB(db)
	manager := NewPositionManager(positionRepo)

	opened, err := manager.Open(ctx, OpenParams{
		UserID:     1,
		Pair:       "btc_idr",
		Amount:     dec("1"),
		EntryPrice: dec("100"),
	})
	if err != nil {
		t.Fatalf("unexpected error opening position: %v", err)
	}

	if _, err := manager.Close(ctx, opened.ID, dec("90"), nil, model.CloseReasonStopLoss, nil); err != nil {
		t.Fatalf("unexpected error on first close: %v", err)
	}

	_, err = manager.Close(ctx, opened.ID, dec("95"), nil, model.CloseReasonManual, nil)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second close, got %v", err)
	}
}

func TestPositionManagerCloseMissingPosition(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	manager := NewPositionManager((&repository.PositionRepository{}).WithDB(db))

	_, err := manager.Close(ctx, 999, dec("100"), nil, model.CloseReasonManual, nil)
	if !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("expected ErrPositionNotFound, got %v", err)
	}
}

func TestPositionManagerPartialClose(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	positionRepo := (&repository.PositionRepository{}).WithDB(db)
	manager := NewPositionManager(positionRepo)

	opened, err := manager.Open(ctx, OpenParams{
		UserID:     1,
		Pair:       "btc_idr",
		Amount:     dec("2"),
		EntryPrice: dec("100"),
	})
	if err != nil {
		t.Fatalf("unexpected error opening position: %v", err)
	}

	exitOne := dec("1")
	partial, err := manager.Close(ctx, opened.ID, dec("110"), &exitOne, model.CloseReasonManual, nil)
	if err != nil {
		t.Fatalf("unexpected error on partial close: %v", err)
	}

	if partial.Status != model.PositionStatusPartiallyClosed {
		t.Fatalf("expected partially_closed, got %s", partial.Status)
	}
	if !partial.Amount.Equal(dec("1")) {
		t.Fatalf("expected remaining amount 1, got %s", partial.Amount)
	}
	if partial.Pnl == nil || !partial.Pnl.Equal(dec("10")) {
		t.Fatalf("expected realized pnl 10 after partial exit, got %v", partial.Pnl)
	}
	if partial.PnlPercent == nil || !partial.PnlPercent.Equal(dec("5")) {
		t.Fatalf("expected pnl percent 5 over the full cost, got %v", partial.PnlPercent)
	}

	// Close the remainder; realized P&L accumulates across the two exits.
	final, err := manager.Close(ctx, opened.ID, dec("120"), nil, model.CloseReasonManual, nil)
	if err != nil {
		t.Fatalf("unexpected error closing remainder: %v", err)
	}

	if final.Status != model.PositionStatusClosed {
		t.Fatalf("expected closed, got %s", final.Status)
	}
	if final.Pnl == nil || !final.Pnl.Equal(dec("30")) {
		t.Fatalf("expected accumulated pnl 30, got %v", final.Pnl)
	}
	// Percent describes the same accumulated figure, not just the last exit.
	if final.PnlPercent == nil || !final.PnlPercent.Equal(dec("15")) {
		t.Fatalf("expected pnl percent 15 over the full cost, got %v", final.PnlPercent)
	}
}

func TestPositionManagerExitAmountExceedsHoldings(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	manager := NewPositionManager((&repository.PositionRepository{}).WithDB(db))

	opened, err := manager.Open(ctx, OpenParams{
		UserID:     1,
		Pair:       "btc_idr",
		Amount:     dec("1"),
		EntryPrice: dec("100"),
	})
	if err != nil {
		t.Fatalf("unexpected error opening position: %v", err)
	}

	tooMuch := dec("5")
	_, err = manager.Close(ctx, opened.ID, dec("110"), &tooMuch, model.CloseReasonManual, nil)
	if !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("expected ErrInsufficientHoldings, got %v", err)
	}
}

func TestPositionManagerHoldingsCappedByFilledBuys(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	positionRepo := (&repository.PositionRepository{}).WithDB(db)
	orderRepo := (&repository.OrderRepository{}).WithDB(db)
	manager := NewPositionManager(positionRepo)

	orders := []model.Order{
		{UserID: 1, Pair: "btc_idr", Side: model.OrderSideBuy, OrderType: model.OrderTypeLimit,
			Price: dec("100"), Amount: dec("2"), FilledAmount: dec("2"), Status: model.OrderStatusFilled},
		{UserID: 1, Pair: "btc_idr", Side: model.OrderSideBuy, OrderType: model.OrderTypeLimit,
			Price: dec("105"), Amount: dec("1"), FilledAmount: dec("1"), Status: model.OrderStatusFilled},
		// A sell and an unfilled buy never back holdings.
		{UserID: 1, Pair: "btc_idr", Side: model.OrderSideSell, OrderType: model.OrderTypeLimit,
			Price: dec("110"), Amount: dec("1"), FilledAmount: dec("1"), Status: model.OrderStatusFilled},
		{UserID: 1, Pair: "btc_idr", Side: model.OrderSideBuy, OrderType: model.OrderTypeLimit,
			Price: dec("95"), Amount: dec("4"), Status: model.OrderStatusPlaced},
	}
	for i := range orders {
		if err := orderRepo.Create(ctx, &orders[i]); err != nil {
			t.Fatalf("failed to seed order: %v", err)
		}
	}

	// Positions opened from the two entry fills, one of them half exited.
	seed := []model.Position{
		{UserID: 1, Pair: "btc_idr", Amount: dec("2"), EntryPrice: dec("100"),
			Status: model.PositionStatusOpen, EntryOrderID: &orders[0].ID, OpenedAt: time.Now()},
		{UserID: 1, Pair: "btc_idr", Amount: dec("0.5"), EntryPrice: dec("105"),
			Status: model.PositionStatusPartiallyClosed, EntryOrderID: &orders[1].ID, OpenedAt: time.Now()},
	}
	for i := range seed {
		if err := positionRepo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("failed to seed position: %v", err)
		}
	}

	filled, err := orderRepo.FindFilledBuysByUserAndPair(ctx, 1, "btc_idr")
	if err != nil {
		t.Fatalf("unexpected error fetching filled buys: %v", err)
	}
	if len(filled) != 2 {
		t.Fatalf("expected 2 filled buys, got %d", len(filled))
	}

	bought := decimal.Zero
	for _, o := range filled {
		bought = bought.Add(o.FilledAmount)
	}

	holdings, err := manager.GetBotHoldings(ctx, 1, "btc_idr")
	if err != nil {
		t.Fatalf("unexpected error summing holdings: %v", err)
	}

	// The bot can never offer to sell more than it bought.
	if holdings.GreaterThan(bought) {
		t.Fatalf("holdings %s exceed the %s backed by filled buys", holdings, bought)
	}
	if !holdings.Equal(dec("2.5")) {
		t.Fatalf("expected holdings 2.5, got %s", holdings)
	}
}

func TestPositionManagerBotHoldingsAndFIFO(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	positionRepo := (&repository.PositionRepository{}).WithDB(db)
	manager := NewPositionManager(positionRepo)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	seed := []model.Position{
		{UserID: 1, Pair: "btc_idr", Amount: dec("1"), EntryPrice: dec("100"),
			Status: model.PositionStatusOpen, OpenedAt: base},
		{UserID: 1, Pair: "btc_idr", Amount: dec("2"), EntryPrice: dec("105"),
			Status: model.PositionStatusPartiallyClosed, OpenedAt: base.Add(time.Hour)},
		{UserID: 1, Pair: "btc_idr", Amount: dec("4"), EntryPrice: dec("90"),
			Status: model.PositionStatusClosed, OpenedAt: base.Add(2 * time.Hour)},
		{UserID: 2, Pair: "btc_idr", Amount: dec("8"), EntryPrice: dec("95"),
			Status: model.PositionStatusOpen, OpenedAt: base},
	}
	for i := range seed {
		if err := positionRepo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("failed to seed position: %v", err)
		}
	}

	// Closed positions and other users never count toward holdings.
	holdings, err := manager.GetBotHoldings(ctx, 1, "btc_idr")
	if err != nil {
		t.Fatalf("unexpected error summing holdings: %v", err)
	}
	if !holdings.Equal(dec("3")) {
		t.Fatalf("expected holdings 3, got %s", holdings)
	}

	candidate, err := manager.PickExitCandidate(ctx, 1, "btc_idr")
	if err != nil {
		t.Fatalf("unexpected error picking exit candidate: %v", err)
	}
	if candidate == nil || candidate.ID != seed[0].ID {
		t.Fatalf("expected the oldest open position as exit candidate, got %+v", candidate)
	}

	none, err := manager.PickExitCandidate(ctx, 3, "btc_idr")
	if err != nil {
		t.Fatalf("unexpected error for user without holdings: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil candidate for user without holdings, got %+v", none)
	}
}
