package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"botmanager/src/database"
	"botmanager/src/model"
)

// PositionRepository handles read/write operations for bot positions.
// Positions are never deleted; closing is a status transition.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main database.
func NewPositionRepository() *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Debug("Creating new PositionRepository with MainDB")

	return &PositionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts a new position into the database.
func (r *PositionRepository) Create(
	ctx context.Context,
	position *model.Position,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":    "PositionRepository",
		"op":      "Create",
		"user_id": position.UserID,
		"pair":    position.Pair,
		"amount":  position.Amount,
	}).Debug("Creating new position")

	err := r.db.WithContext(ctx).Create(position).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create position")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Create",
		"position_id": position.ID,
	}).Info("Position created successfully")

	return nil
}

// FindByID fetches a single position by its primary ID.
// Returns (nil, nil) if the position is not found.
func (r *PositionRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Position, error) {

	var position model.Position

	err := r.db.WithContext(ctx).First(&position, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch position by ID")

		return nil, err
	}

	return &position, nil
}

// FindAllOpen fetches every position across all users that still holds bot
// inventory. Used by the position monitor once per cycle.
func (r *PositionRepository) FindAllOpen(
	ctx context.Context,
) ([]model.Position, error) {

	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("status IN ?", model.OpenPositionStatuses()).
		Order("opened_at ASC").
		Find(&positions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "FindAllOpen",
		}).WithError(err).Error("Failed to fetch open positions")

		return nil, err
	}

	return positions, nil
}

// FindOpenByUserAndPair fetches the user's open positions for one pair,
// oldest first.
func (r *PositionRepository) FindOpenByUserAndPair(
	ctx context.Context,
	userID uint,
	pair string,
) ([]model.Position, error) {

	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND pair = ? AND status IN ?", userID, pair, model.OpenPositionStatuses()).
		Order("opened_at ASC").
		Find(&positions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "FindOpenByUserAndPair",
			"user_id": userID,
			"pair":    pair,
		}).WithError(err).Error("Failed to fetch open positions by user and pair")

		return nil, err
	}

	return positions, nil
}

// FindOldestOpen fetches the user's oldest open position for a pair (FIFO
// exit candidate). Returns (nil, nil) if none exists.
func (r *PositionRepository) FindOldestOpen(
	ctx context.Context,
	userID uint,
	pair string,
) (*model.Position, error) {

	var position model.Position

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND pair = ? AND status IN ?", userID, pair, model.OpenPositionStatuses()).
		Order("opened_at ASC").
		First(&position).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "FindOldestOpen",
			"user_id": userID,
			"pair":    pair,
		}).WithError(err).Error("Failed to fetch oldest open position")

		return nil, err
	}

	return &position, nil
}

// FindByEntryOrderID fetches the position created for a given entry order.
// Returns (nil, nil) if none exists. This is the idempotency guard the order
// reconciler relies on before creating a position for a filled buy.
func (r *PositionRepository) FindByEntryOrderID(
	ctx context.Context,
	orderID uint,
) (*model.Position, error) {

	var position model.Position

	err := r.db.WithContext(ctx).
		Where("entry_order_id = ?", orderID).
		First(&position).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "PositionRepository",
			"op":       "FindByEntryOrderID",
			"order_id": orderID,
		}).WithError(err).Error("Failed to fetch position by entry order ID")

		return nil, err
	}

	return &position, nil
}

// CountOpenByUser counts the user's open positions across all pairs.
func (r *PositionRepository) CountOpenByUser(
	ctx context.Context,
	userID uint,
) (int64, error) {

	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("user_id = ? AND status IN ?", userID, model.OpenPositionStatuses()).
		Count(&count).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "CountOpenByUser",
			"user_id": userID,
		}).WithError(err).Error("Failed to count open positions")

		return 0, err
	}

	return count, nil
}

// CountAllOpen counts open positions across all users, for dashboarding.
func (r *PositionRepository) CountAllOpen(
	ctx context.Context,
) (int64, error) {

	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("status IN ?", model.OpenPositionStatuses()).
		Count(&count).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "CountAllOpen",
		}).WithError(err).Error("Failed to count open positions")

		return 0, err
	}

	return count, nil
}

// UpdateIfStatus applies updates only while the position is still in
// fromStatus, and reports whether a row actually changed. Concurrent cycles
// race on the same position; the losing writer sees matched == false and must
// not re-apply its side effects.
func (r *PositionRepository) UpdateIfStatus(
	ctx context.Context,
	id uint,
	fromStatus string,
	updates map[string]interface{},
) (bool, error) {

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "UpdateIfStatus",
		"position_id": id,
		"from_status": fromStatus,
	}).Debug("Applying conditional position update")

	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "UpdateIfStatus",
			"position_id": id,
			"from_status": fromStatus,
		}).WithError(res.Error).Error("Failed to apply conditional position update")

		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}
