package executors

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"botmanager/src/connectors"
	"botmanager/src/controller"
	"botmanager/src/model"
	"botmanager/src/notify"
	"botmanager/src/repository"
	"botmanager/src/risk"
)

// PositionMonitor evaluates exit conditions on every open position against
// one market snapshot per cycle, and executes triggered exits.
type PositionMonitor struct {
	positions     *repository.PositionRepository
	orders        *repository.OrderRepository
	userExchanges *repository.UserExchangeRepository
	manager       *controller.PositionManager
	gatewayFor    connectors.GatewayFactory
	prices        connectors.PriceSource
	notifier      notify.Notifier
}

func NewPositionMonitor(
	positions *repository.PositionRepository,
	orders *repository.OrderRepository,
	userExchanges *repository.UserExchangeRepository,
	manager *controller.PositionManager,
	gatewayFor connectors.GatewayFactory,
	prices connectors.PriceSource,
	notifier notify.Notifier,
) *PositionMonitor {
	return &PositionMonitor{
		positions:     positions,
		orders:        orders,
		userExchanges: userExchanges,
		manager:       manager,
		gatewayFor:    gatewayFor,
		prices:        prices,
		notifier:      notifier,
	}
}

func (m *PositionMonitor) Name() string { return "position_monitor" }

// RunCycle runs one monitoring pass. A snapshot or listing failure aborts
// only this run; per-position failures are recorded and do not touch the
// rest of the batch.
func (m *PositionMonitor) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := NewCycleReport(m.Name())

	snapshot, err := m.prices.Prices(ctx)
	if err != nil {
		return report, fmt.Errorf("fetching price snapshot: %w", err)
	}

	open, err := m.positions.FindAllOpen(ctx)
	if err != nil {
		return report, fmt.Errorf("listing open positions: %w", err)
	}

	// One gateway per user per cycle.
	gateways := make(map[uint]connectors.ExchangeGateway)

	for i := range open {
		position := &open[i]
		key := fmt.Sprintf("position:%d", position.ID)

		price, ok := snapshot[position.Pair]
		if !ok {
			// No stale-price assumption: without a quote we do nothing.
			report.Skip(key, "no price in snapshot")
			continue
		}

		reason := EvaluateExit(position, price)
		if reason == "" {
			report.OK(key, "no exit condition")
			continue
		}

		gateway, gwErr := m.gatewayForUser(ctx, gateways, position.UserID)
		if gwErr != nil {
			if errors.Is(gwErr, connectors.ErrMissingCredentials) {
				logger.WithFields(map[string]interface{}{
					"user_id":     position.UserID,
					"position_id": position.ID,
				}).Warn("Exit triggered but user has no exchange credentials, skipping")
				report.Skip(key, "missing credentials")
				continue
			}
			report.Fail(key, "resolving gateway", gwErr)
			continue
		}

		if err := m.executeExit(ctx, gateway, position, price, reason); err != nil {
			if errors.Is(err, controller.ErrInvalidState) {
				// Another cycle closed it first.
				report.Skip(key, "already closed")
				continue
			}
			report.Fail(key, "executing exit", err)
			continue
		}

		report.OK(key, string(reason))
	}

	report.Log()
	return report, nil
}

// ExitReason names the breached threshold.
type ExitReason string

const (
	ExitStopLoss   ExitReason = model.CloseReasonStopLoss
	ExitTakeProfit ExitReason = model.CloseReasonTakeProfit
)

// EvaluateExit checks a position against the current price. Stop-loss is
// checked before take-profit: if both thresholds are somehow satisfied in the
// same tick, the conservative exit wins.
func EvaluateExit(position *model.Position, price decimal.Decimal) ExitReason {
	if position.StopLoss != nil && price.LessThanOrEqual(*position.StopLoss) {
		return ExitStopLoss
	}
	if position.TakeProfit != nil && price.GreaterThanOrEqual(*position.TakeProfit) {
		return ExitTakeProfit
	}
	return ""
}

func (m *PositionMonitor) gatewayForUser(
	ctx context.Context,
	cache map[uint]connectors.ExchangeGateway,
	userID uint,
) (connectors.ExchangeGateway, error) {

	if gateway, ok := cache[userID]; ok {
		return gateway, nil
	}

	userExchange, err := m.userExchanges.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	gateway, err := m.gatewayFor(userExchange)
	if err != nil {
		return nil, err
	}

	cache[userID] = gateway
	return gateway, nil
}

// executeExit places the sell and closes the position. If the placement
// fails the position stays open for the next cycle.
func (m *PositionMonitor) executeExit(
	ctx context.Context,
	gateway connectors.ExchangeGateway,
	position *model.Position,
	price decimal.Decimal,
	reason ExitReason,
) error {

	// The exchange only accepts whole coin units on exits.
	amount := risk.FloorAmount(position.Amount)
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount below exchange minimum", controller.ErrInsufficientHoldings)
	}

	order := &model.Order{
		UserID:        position.UserID,
		Pair:          position.Pair,
		ClientOrderID: uuid.NewString(),
		Side:          model.OrderSideSell,
		OrderType:     model.OrderTypeLimit,
		Price:         price,
		Amount:        amount,
		Cost:          amount.Mul(price),
		Status:        model.OrderStatusPending,
	}

	if err := m.orders.Create(ctx, order); err != nil {
		return err
	}

	ack, err := gateway.PlaceOrder(ctx, connectors.OrderRequest{
		Pair:          position.Pair,
		Side:          model.OrderSideSell,
		OrderType:     model.OrderTypeLimit,
		Price:         price,
		Amount:        amount,
		ClientOrderID: order.ClientOrderID,
	})
	if err != nil {
		if markErr := m.orders.MarkFailed(ctx, order.ID); markErr != nil {
			logger.WithError(markErr).
				WithField("order_id", order.ID).
				Error("Failed to mark exit order as failed")
		}
		return fmt.Errorf("placing exit order: %w", err)
	}

	if err := m.orders.MarkPlaced(ctx, order.ID, ack.ExchangeOrderID); err != nil {
		return err
	}

	exitAmount := amount
	closed, err := m.manager.Close(ctx, position.ID, price, &exitAmount,
		string(reason), &order.ID)
	if err != nil {
		return err
	}

	title := "Take profit hit"
	if reason == ExitStopLoss {
		title = "Stop loss hit"
	}

	m.notifier.Notify(ctx, position.UserID, notify.KindPositionClosed,
		title,
		fmt.Sprintf("Closed %s %s at %s (P&L %s)",
			exitAmount, position.Pair, price, pnlString(closed)))

	return nil
}

func pnlString(position *model.Position) string {
	if position == nil || position.Pnl == nil {
		return "n/a"
	}
	return position.Pnl.String()
}
