package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"botmanager/src/database"
	"botmanager/src/model"
)

// OrderRepository handles read/write operations for tracked orders.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main database.
func NewOrderRepository() *OrderRepository {
	logger.WithField("component", "OrderRepository").
		Debug("Creating new OrderRepository with MainDB")

	return &OrderRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new tracked order into the database.
func (r *OrderRepository) Create(
	ctx context.Context,
	order *model.Order,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":    "OrderRepository",
		"op":      "Create",
		"user_id": order.UserID,
		"pair":    order.Pair,
		"side":    order.Side,
		"amount":  order.Amount,
	}).Debug("Creating new order")

	err := r.db.WithContext(ctx).Create(order).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create order")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Create",
		"order_id": order.ID,
	}).Info("Order created successfully")

	return nil
}

// FindByID fetches a single order by its primary ID.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")

		return nil, err
	}

	return &order, nil
}

// FindActive fetches every non-terminal order that already has an exchange
// order id assigned. These are the orders the reconciler polls.
func (r *OrderRepository) FindActive(
	ctx context.Context,
) ([]model.Order, error) {

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("status IN ? AND exchange_order_id IS NOT NULL",
			[]string{model.OrderStatusPlaced, model.OrderStatusPartial}).
		Order("id ASC").
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to fetch active orders")

		return nil, err
	}

	return orders, nil
}

// FindFilledBuysByUserAndPair fetches the user's filled buy orders for one
// pair, oldest first.
func (r *OrderRepository) FindFilledBuysByUserAndPair(
	ctx context.Context,
	userID uint,
	pair string,
) ([]model.Order, error) {

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND pair = ? AND side = ? AND status = ?",
			userID, pair, model.OrderSideBuy, model.OrderStatusFilled).
		Order("id ASC").
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "OrderRepository",
			"op":      "FindFilledBuysByUserAndPair",
			"user_id": userID,
			"pair":    pair,
		}).WithError(err).Error("Failed to fetch filled buy orders")

		return nil, err
	}

	return orders, nil
}

// MarkPlaced records the exchange acceptance of a pending order.
func (r *OrderRepository) MarkPlaced(
	ctx context.Context,
	id uint,
	exchangeOrderID string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":              "OrderRepository",
		"op":                "MarkPlaced",
		"order_id":          id,
		"exchange_order_id": exchangeOrderID,
	}).Debug("Marking order as placed")

	now := time.Now()

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":            model.OrderStatusPlaced,
			"exchange_order_id": exchangeOrderID,
			"placed_at":         &now,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "MarkPlaced",
			"order_id": id,
		}).WithError(err).Error("Failed to mark order as placed")

		return err
	}

	return nil
}

// MarkFilled records a confirmed full fill.
func (r *OrderRepository) MarkFilled(
	ctx context.Context,
	id uint,
	filledAmount decimal.Decimal,
) error {

	now := time.Now()

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.OrderStatusFilled,
			"filled_amount": filledAmount,
			"filled_at":     &now,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "MarkFilled",
			"order_id": id,
		}).WithError(err).Error("Failed to mark order as filled")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "MarkFilled",
		"order_id": id,
	}).Info("Order marked as filled")

	return nil
}

// MarkFailed records a placement failure so the order is never polled.
func (r *OrderRepository) MarkFailed(
	ctx context.Context,
	id uint,
) error {

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Update("status", model.OrderStatusFailed).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "MarkFailed",
			"order_id": id,
		}).WithError(err).Error("Failed to mark order as failed")

		return err
	}

	return nil
}

// UpdateFill persists a reconciled status plus the filled amount reported by
// the exchange.
func (r *OrderRepository) UpdateFill(
	ctx context.Context,
	id uint,
	status string,
	filledAmount decimal.Decimal,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "UpdateFill",
		"order_id": id,
		"status":   status,
	}).Debug("Updating order fill state")

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"filled_amount": filledAmount,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "UpdateFill",
			"order_id": id,
			"status":   status,
		}).WithError(err).Error("Failed to update order fill state")

		return err
	}

	return nil
}

// CountByStatus counts orders in any of the given statuses, for dashboarding.
func (r *OrderRepository) CountByStatus(
	ctx context.Context,
	statuses ...string,
) (int64, error) {

	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("status IN ?", statuses).
		Count(&count).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "CountByStatus",
			"statuses": statuses,
		}).WithError(err).Error("Failed to count orders by status")

		return 0, err
	}

	return count, nil
}
