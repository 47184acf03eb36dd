package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"botmanager/src/connectors"
	"botmanager/src/model"
	"botmanager/src/notify"
	"botmanager/src/repository"
	"botmanager/src/risk"
)

// SignalExecutor turns an approved signal into exchange orders. Manual
// approval through the API and the scheduler's autonomous mode share this
// single path.
type SignalExecutor struct {
	signals       *repository.SignalRepository
	orders        *repository.OrderRepository
	userExchanges *repository.UserExchangeRepository
	manager       *PositionManager
	gatewayFor    connectors.GatewayFactory
	notifier      notify.Notifier

	now func() time.Time
}

func NewSignalExecutor(
	signals *repository.SignalRepository,
	orders *repository.OrderRepository,
	userExchanges *repository.UserExchangeRepository,
	manager *PositionManager,
	gatewayFor connectors.GatewayFactory,
	notifier notify.Notifier,
) *SignalExecutor {
	return &SignalExecutor{
		signals:       signals,
		orders:        orders,
		userExchanges: userExchanges,
		manager:       manager,
		gatewayFor:    gatewayFor,
		notifier:      notifier,
		now:           time.Now,
	}
}

// ApproveSignal approves a pending signal and executes it. The pending ->
// approved transition is conditional, so a signal can be approved at most
// once no matter how many callers race on it. Placement failures surface to
// the caller; the signal stays approved with its order marked failed.
func (e *SignalExecutor) ApproveSignal(ctx context.Context, signalID uint) (*model.Signal, error) {
	signal, err := e.loadActionable(ctx, signalID)
	if err != nil {
		return nil, err
	}

	moved, err := e.signals.UpdateStatusIf(ctx, signalID,
		model.SignalStatusPending, model.SignalStatusApproved)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, fmt.Errorf("%w: signal %d is not pending", ErrInvalidState, signalID)
	}

	if err := e.execute(ctx, signal); err != nil {
		return nil, err
	}

	if _, err := e.signals.UpdateStatusIf(ctx, signalID,
		model.SignalStatusApproved, model.SignalStatusExecuted); err != nil {
		return nil, err
	}

	e.notifier.Notify(ctx, signal.UserID, notify.KindSignalExecuted,
		"Signal executed",
		fmt.Sprintf("%s %s signal executed", signal.Pair, signal.Action))

	return e.signals.FindByID(ctx, signalID)
}

// RejectSignal rejects a pending signal.
func (e *SignalExecutor) RejectSignal(ctx context.Context, signalID uint) (*model.Signal, error) {
	if _, err := e.loadActionable(ctx, signalID); err != nil {
		return nil, err
	}

	moved, err := e.signals.UpdateStatusIf(ctx, signalID,
		model.SignalStatusPending, model.SignalStatusRejected)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, fmt.Errorf("%w: signal %d is not pending", ErrInvalidState, signalID)
	}

	return e.signals.FindByID(ctx, signalID)
}

// loadActionable fetches a signal and applies lazy expiry: a pending signal
// past its validity deadline flips to expired on access.
func (e *SignalExecutor) loadActionable(ctx context.Context, signalID uint) (*model.Signal, error) {
	signal, err := e.signals.FindByID(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if signal == nil {
		return nil, fmt.Errorf("%w: signal %d", ErrSignalNotFound, signalID)
	}

	if signal.Status == model.SignalStatusPending && signal.ExpiredAt(e.now()) {
		if _, err := e.signals.UpdateStatusIf(ctx, signalID,
			model.SignalStatusPending, model.SignalStatusExpired); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: signal %d expired", ErrInvalidState, signalID)
	}

	if signal.Status != model.SignalStatusPending {
		return nil, fmt.Errorf("%w: signal %d is %s", ErrInvalidState, signalID, signal.Status)
	}

	return signal, nil
}

func (e *SignalExecutor) execute(ctx context.Context, signal *model.Signal) error {
	userExchange, err := e.userExchanges.FindByUserID(ctx, signal.UserID)
	if err != nil {
		return err
	}

	gateway, err := e.gatewayFor(userExchange)
	if err != nil {
		return err
	}

	switch signal.Action {
	case model.SignalActionBuy:
		return e.executeBuy(ctx, signal, userExchange, gateway)
	case model.SignalActionSell:
		return e.executeSell(ctx, signal, gateway)
	default:
		return fmt.Errorf("%w: signal action %q is not executable", ErrInvalidState, signal.Action)
	}
}

// executeBuy sizes the entry from the quote balance and places it. The
// position itself is created later, by the reconciler, once the exchange
// confirms the fill.
func (e *SignalExecutor) executeBuy(
	ctx context.Context,
	signal *model.Signal,
	userExchange *model.UserExchange,
	gateway connectors.ExchangeGateway,
) error {

	balances, err := gateway.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetching balance: %w", err)
	}

	_, quoteCurrency := connectors.SplitPair(signal.Pair)
	available := balances[quoteCurrency]

	sizePercent := signal.SizePercent
	if sizePercent <= 0 {
		sizePercent = userExchange.OrderSizePercent
	}

	quote := risk.QuoteBudget(available, sizePercent)
	if !quote.IsPositive() {
		return fmt.Errorf("%w: no %s available for %s",
			ErrInvalidState, quoteCurrency, signal.Pair)
	}

	price := signal.EntryPrice
	if !price.IsPositive() {
		ticker, tickerErr := gateway.GetTicker(ctx, signal.Pair)
		if tickerErr != nil {
			return fmt.Errorf("resolving entry price: %w", tickerErr)
		}
		price = ticker.LastPrice
	}

	amount := risk.AmountFromQuote(quote, price)

	order := &model.Order{
		UserID:        signal.UserID,
		Pair:          signal.Pair,
		ClientOrderID: uuid.NewString(),
		Side:          model.OrderSideBuy,
		OrderType:     model.OrderTypeLimit,
		Price:         price,
		Amount:        amount,
		Cost:          quote,
		Status:        model.OrderStatusPending,
		SignalID:      &signal.ID,
	}
	if signal.StopLoss.IsPositive() {
		sl := signal.StopLoss
		order.StopLoss = &sl
	}
	if signal.TargetPrice.IsPositive() {
		tp := signal.TargetPrice
		order.TakeProfit = &tp
	}

	if err := e.orders.Create(ctx, order); err != nil {
		return err
	}

	ack, err := gateway.PlaceOrder(ctx, connectors.OrderRequest{
		Pair:          signal.Pair,
		Side:          model.OrderSideBuy,
		OrderType:     model.OrderTypeLimit,
		Price:         price,
		QuoteAmount:   quote,
		ClientOrderID: order.ClientOrderID,
	})
	if err != nil {
		if markErr := e.orders.MarkFailed(ctx, order.ID); markErr != nil {
			logger.WithError(markErr).
				WithField("order_id", order.ID).
				Error("Failed to mark order as failed after rejected placement")
		}
		return fmt.Errorf("placing buy order: %w", err)
	}

	return e.orders.MarkPlaced(ctx, order.ID, ack.ExchangeOrderID)
}

// executeSell exits the oldest bot position for the pair, capped by what the
// bot actually holds.
func (e *SignalExecutor) executeSell(
	ctx context.Context,
	signal *model.Signal,
	gateway connectors.ExchangeGateway,
) error {

	holdings, err := e.manager.GetBotHoldings(ctx, signal.UserID, signal.Pair)
	if err != nil {
		return err
	}
	if !holdings.IsPositive() {
		return fmt.Errorf("%w: nothing held for %s", ErrInsufficientHoldings, signal.Pair)
	}

	position, err := e.manager.PickExitCandidate(ctx, signal.UserID, signal.Pair)
	if err != nil {
		return err
	}
	if position == nil {
		return fmt.Errorf("%w: nothing held for %s", ErrInsufficientHoldings, signal.Pair)
	}

	amount := risk.FloorAmount(position.Amount)
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s holding below exchange minimum",
			ErrInsufficientHoldings, signal.Pair)
	}

	price := signal.EntryPrice
	if !price.IsPositive() {
		ticker, tickerErr := gateway.GetTicker(ctx, signal.Pair)
		if tickerErr != nil {
			return fmt.Errorf("resolving exit price: %w", tickerErr)
		}
		price = ticker.LastPrice
	}

	order := &model.Order{
		UserID:        signal.UserID,
		Pair:          signal.Pair,
		ClientOrderID: uuid.NewString(),
		Side:          model.OrderSideSell,
		OrderType:     model.OrderTypeLimit,
		Price:         price,
		Amount:        amount,
		Cost:          amount.Mul(price),
		Status:        model.OrderStatusPending,
		SignalID:      &signal.ID,
	}

	if err := e.orders.Create(ctx, order); err != nil {
		return err
	}

	ack, err := gateway.PlaceOrder(ctx, connectors.OrderRequest{
		Pair:          signal.Pair,
		Side:          model.OrderSideSell,
		OrderType:     model.OrderTypeLimit,
		Price:         price,
		Amount:        amount,
		ClientOrderID: order.ClientOrderID,
	})
	if err != nil {
		if markErr := e.orders.MarkFailed(ctx, order.ID); markErr != nil {
			logger.WithError(markErr).
				WithField("order_id", order.ID).
				Error("Failed to mark order as failed after rejected placement")
		}
		return fmt.Errorf("placing sell order: %w", err)
	}

	if err := e.orders.MarkPlaced(ctx, order.ID, ack.ExchangeOrderID); err != nil {
		return err
	}

	exitAmount := amount
	if _, err := e.manager.Close(ctx, position.ID, price, &exitAmount,
		model.CloseReasonSignal, &order.ID); err != nil {
		return err
	}

	e.notifier.Notify(ctx, signal.UserID, notify.KindPositionClosed,
		"Position closed",
		fmt.Sprintf("Sold %s %s at %s on signal", amount, signal.Pair, price))

	return nil
}
