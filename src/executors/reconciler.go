package executors

import (
	"context"
	"errors"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"botmanager/src/connectors"
	"botmanager/src/controller"
	"botmanager/src/model"
	"botmanager/src/notify"
	"botmanager/src/repository"
)

// OrderReconciler polls the exchange for every locally tracked non-terminal
// order and advances local state to match. The reconciliation attempt is
// at-least-once; position creation is at-most-once via the entry-order
// existence check.
type OrderReconciler struct {
	orders        *repository.OrderRepository
	positions     *repository.PositionRepository
	signals       *repository.SignalRepository
	userExchanges *repository.UserExchangeRepository
	manager       *controller.PositionManager
	gatewayFor    connectors.GatewayFactory
	notifier      notify.Notifier
}

func NewOrderReconciler(
	orders *repository.OrderRepository,
	positions *repository.PositionRepository,
	signals *repository.SignalRepository,
	userExchanges *repository.UserExchangeRepository,
	manager *controller.PositionManager,
	gatewayFor connectors.GatewayFactory,
	notifier notify.Notifier,
) *OrderReconciler {
	return &OrderReconciler{
		orders:        orders,
		positions:     positions,
		signals:       signals,
		userExchanges: userExchanges,
		manager:       manager,
		gatewayFor:    gatewayFor,
		notifier:      notifier,
	}
}

func (r *OrderReconciler) Name() string { return "order_reconciler" }

// RunCycle reconciles every active order. Errors on one order never abort
// the rest of the batch.
func (r *OrderReconciler) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := NewCycleReport(r.Name())

	active, err := r.orders.FindActive(ctx)
	if err != nil {
		return report, fmt.Errorf("listing active orders: %w", err)
	}

	gateways := make(map[uint]connectors.ExchangeGateway)

	for i := range active {
		order := &active[i]
		key := fmt.Sprintf("order:%d", order.ID)

		gateway, gwErr := r.gatewayForUser(ctx, gateways, order.UserID)
		if gwErr != nil {
			if errors.Is(gwErr, connectors.ErrMissingCredentials) {
				report.Skip(key, "missing credentials")
				continue
			}
			report.Fail(key, "resolving gateway", gwErr)
			continue
		}

		if err := r.reconcileOrder(ctx, gateway, order, report, key); err != nil {
			report.Fail(key, "reconciling order", err)
		}
	}

	report.Log()
	return report, nil
}

func (r *OrderReconciler) gatewayForUser(
	ctx context.Context,
	cache map[uint]connectors.ExchangeGateway,
	userID uint,
) (connectors.ExchangeGateway, error) {

	if gateway, ok := cache[userID]; ok {
		return gateway, nil
	}

	userExchange, err := r.userExchanges.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	gateway, err := r.gatewayFor(userExchange)
	if err != nil {
		return nil, err
	}

	cache[userID] = gateway
	return gateway, nil
}

func (r *OrderReconciler) reconcileOrder(
	ctx context.Context,
	gateway connectors.ExchangeGateway,
	order *model.Order,
	report *CycleReport,
	key string,
) error {

	state, err := gateway.GetOrderStatus(ctx, order.Pair, *order.ExchangeOrderID)
	if err != nil {
		return fmt.Errorf("querying exchange: %w", err)
	}

	newStatus := MapGatewayStatus(state.Status)
	if newStatus == order.Status {
		report.Skip(key, "status unchanged")
		return nil
	}
	if orderStatusRank(newStatus) < orderStatusRank(order.Status) {
		// An unrecognized or stale exchange report never moves an order
		// backwards along the lifecycle.
		report.Skip(key, "stale exchange status")
		return nil
	}

	switch newStatus {
	case model.OrderStatusFilled:
		filled := state.FilledAmount
		if filled.IsZero() {
			filled = order.Amount
		}
		if err := r.orders.MarkFilled(ctx, order.ID, filled); err != nil {
			return err
		}
		if order.Side == model.OrderSideBuy {
			if err := r.handleFilledBuy(ctx, order, report, key); err != nil {
				return err
			}
			return nil
		}
		report.OK(key, "filled")
	default:
		filled := state.FilledAmount
		if filled.IsZero() {
			// A report without fill data must not erase fills already recorded.
			filled = order.FilledAmount
		}
		if err := r.orders.UpdateFill(ctx, order.ID, newStatus, filled); err != nil {
			return err
		}
		report.OK(key, newStatus)
	}

	return nil
}

// MapGatewayStatus maps the exchange's order status onto the local tracked
// order status. Anything unrecognized leaves the order placed.
func MapGatewayStatus(gatewayStatus string) string {
	switch gatewayStatus {
	case connectors.GatewayStatusFilled:
		return model.OrderStatusFilled
	case connectors.GatewayStatusPartial:
		return model.OrderStatusPartial
	case connectors.GatewayStatusCancelled:
		return model.OrderStatusCancelled
	default:
		return model.OrderStatusPlaced
	}
}

// orderStatusRank orders the tracked statuses along the lifecycle. The
// reconciler only ever advances an order, never demotes it.
func orderStatusRank(status string) int {
	switch status {
	case model.OrderStatusPending:
		return 0
	case model.OrderStatusPlaced:
		return 1
	case model.OrderStatusPartial:
		return 2
	case model.OrderStatusFilled, model.OrderStatusCancelled, model.OrderStatusFailed:
		return 3
	}
	return 0
}

// handleFilledBuy creates the position for a confirmed entry fill, exactly
// once. This step may be re-entered after a crash or an overlapping cycle,
// so it first checks whether a position already references the order.
func (r *OrderReconciler) handleFilledBuy(
	ctx context.Context,
	order *model.Order,
	report *CycleReport,
	key string,
) error {

	existing, err := r.positions.FindByEntryOrderID(ctx, order.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		logger.WithFields(map[string]interface{}{
			"order_id":    order.ID,
			"position_id": existing.ID,
		}).Debug("Position already exists for filled order, skipping creation")
		report.Skip(key, "position already exists")
		return nil
	}

	amount := order.FilledAmount
	if amount.IsZero() {
		amount = order.Amount
	}

	position, err := r.manager.Open(ctx, controller.OpenParams{
		UserID:       order.UserID,
		Pair:         order.Pair,
		Amount:       amount,
		EntryPrice:   order.Price,
		Cost:         order.Cost,
		SignalID:     order.SignalID,
		EntryOrderID: &order.ID,
		StopLoss:     order.StopLoss,
		TakeProfit:   order.TakeProfit,
	})
	if err != nil {
		return fmt.Errorf("opening position: %w", err)
	}

	if order.SignalID != nil {
		// The signal may be pending (autonomous flow) or approved (manual
		// flow); either way it is executed now. Conditional transitions keep
		// replays harmless.
		for _, from := range []string{model.SignalStatusPending, model.SignalStatusApproved} {
			moved, sigErr := r.signals.UpdateStatusIf(ctx, *order.SignalID,
				from, model.SignalStatusExecuted)
			if sigErr != nil {
				logger.WithError(sigErr).
					WithField("signal_id", *order.SignalID).
					Warn("Failed to mark signal as executed")
				break
			}
			if moved {
				break
			}
		}
	}

	r.notifier.Notify(ctx, order.UserID, notify.KindOrderFilled,
		"Buy order filled",
		fmt.Sprintf("Bought %s %s at %s", position.Amount, order.Pair, order.Price))

	report.OK(key, "position created")
	return nil
}
