package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"botmanager/src/model"
	"botmanager/src/repository"
)

var hundred = decimal.NewFromInt(100)

// PositionManager owns the position lifecycle: opening on confirmed entry
// fills, closing with realized P&L, and the "bot can only sell what the bot
// bought" ceiling.
type PositionManager struct {
	positions *repository.PositionRepository
}

func NewPositionManager(positions *repository.PositionRepository) *PositionManager {
	return &PositionManager{positions: positions}
}

// OpenParams describes a new position. Cost defaults to amount * entryPrice
// when zero.
type OpenParams struct {
	UserID     uint
	Pair       string
	Amount     decimal.Decimal
	EntryPrice decimal.Decimal
	Cost       decimal.Decimal

	SignalID     *uint
	EntryOrderID *uint
	StopLoss     *decimal.Decimal
	TakeProfit   *decimal.Decimal
}

// Open creates an open position record. No side effects beyond persistence.
func (m *PositionManager) Open(ctx context.Context, params OpenParams) (*model.Position, error) {
	if !params.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: position amount must be positive", ErrInvalidState)
	}

	cost := params.Cost
	if cost.IsZero() {
		cost = params.Amount.Mul(params.EntryPrice)
	}

	position := &model.Position{
		UserID:       params.UserID,
		Pair:         params.Pair,
		Amount:       params.Amount,
		EntryPrice:   params.EntryPrice,
		Cost:         cost,
		StopLoss:     params.StopLoss,
		TakeProfit:   params.TakeProfit,
		Status:       model.PositionStatusOpen,
		SignalID:     params.SignalID,
		EntryOrderID: params.EntryOrderID,
		OpenedAt:     time.Now(),
	}

	if err := m.positions.Create(ctx, position); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"position_id": position.ID,
		"user_id":     position.UserID,
		"pair":        position.Pair,
		"amount":      position.Amount,
		"entry_price": position.EntryPrice,
	}).Info("Position opened")

	return position, nil
}

// Close realizes an exit. exitAmount defaults to the full remaining amount;
// a smaller exit leaves the position partially closed with the remainder
// still tracked. The status transition is a conditional update, so two
// overlapping cycles can both observe an open position but only one of them
// closes it.
func (m *PositionManager) Close(
	ctx context.Context,
	positionID uint,
	exitPrice decimal.Decimal,
	exitAmount *decimal.Decimal,
	reason string,
	exitOrderID *uint,
) (*model.Position, error) {

	position, err := m.positions.FindByID(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, fmt.Errorf("%w: position %d", ErrPositionNotFound, positionID)
	}

	if position.Status == model.PositionStatusClosed {
		return nil, fmt.Errorf("%w: position %d already closed", ErrInvalidState, positionID)
	}

	amount := position.Amount
	if exitAmount != nil {
		amount = *exitAmount
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: exit amount must be positive", ErrInvalidState)
	}
	if amount.GreaterThan(position.Amount) {
		return nil, fmt.Errorf("%w: exit amount %s exceeds held %s",
			ErrInsufficientHoldings, amount, position.Amount)
	}

	pnl := amount.Mul(exitPrice.Sub(position.EntryPrice))
	if position.Pnl != nil {
		// Accumulate realized P&L across partial exits.
		pnl = pnl.Add(*position.Pnl)
	}

	// Percent is denominated against the full original cost so it stays
	// consistent with the accumulated pnl across partial exits.
	var pnlPercent decimal.Decimal
	if position.Cost.IsPositive() {
		pnlPercent = pnl.Div(position.Cost).Mul(hundred)
	}

	remaining := position.Amount.Sub(amount)
	newStatus := model.PositionStatusClosed
	if remaining.IsPositive() {
		newStatus = model.PositionStatusPartiallyClosed
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":       newStatus,
		"exit_price":   exitPrice,
		"exit_amount":  amount,
		"pnl":          pnl,
		"pnl_percent":  pnlPercent,
		"close_reason": reason,
		"closed_at":    &now,
	}
	if exitOrderID != nil {
		updates["exit_order_id"] = *exitOrderID
	}
	if remaining.IsPositive() {
		updates["amount"] = remaining
	}

	matched, err := m.positions.UpdateIfStatus(ctx, positionID, position.Status, updates)
	if err != nil {
		return nil, err
	}
	if !matched {
		// Another cycle won the race; this close must not be re-applied.
		return nil, fmt.Errorf("%w: position %d changed concurrently", ErrInvalidState, positionID)
	}

	logger.WithFields(map[string]interface{}{
		"position_id": positionID,
		"reason":      reason,
		"exit_price":  exitPrice,
		"exit_amount": amount,
		"pnl":         pnl,
		"status":      newStatus,
	}).Info("Position closed")

	return m.positions.FindByID(ctx, positionID)
}

// GetBotHoldings sums the user's open amounts for one pair. This is the hard
// ceiling the system will ever offer to sell, distinct from (and always at
// most) the user's total exchange balance.
func (m *PositionManager) GetBotHoldings(
	ctx context.Context,
	userID uint,
	pair string,
) (decimal.Decimal, error) {

	positions, err := m.positions.FindOpenByUserAndPair(ctx, userID, pair)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.Amount)
	}

	return total, nil
}

// PickExitCandidate selects the oldest open position for a pair (FIFO).
// Returns (nil, nil) when the user holds nothing for that pair.
func (m *PositionManager) PickExitCandidate(
	ctx context.Context,
	userID uint,
	pair string,
) (*model.Position, error) {
	return m.positions.FindOldestOpen(ctx, userID, pair)
}
