package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"botmanager/src/database"
	"botmanager/src/model"
)

// SignalRepository handles read/write operations for trade signals.
type SignalRepository struct {
	db *gorm.DB
}

// NewSignalRepository creates a new repository instance using the main database.
func NewSignalRepository() *SignalRepository {
	logger.WithField("component", "SignalRepository").
		Debug("Creating new SignalRepository with MainDB")

	return &SignalRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Create inserts a new signal. Hold recommendations must never reach this
// method; callers drop them before persistence.
func (r *SignalRepository) Create(
	ctx context.Context,
	signal *model.Signal,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":       "SignalRepository",
		"op":         "Create",
		"user_id":    signal.UserID,
		"pair":       signal.Pair,
		"action":     signal.Action,
		"confidence": signal.Confidence,
	}).Debug("Creating new signal")

	err := r.db.WithContext(ctx).Create(signal).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create signal")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "SignalRepository",
		"op":        "Create",
		"signal_id": signal.ID,
		"status":    signal.Status,
	}).Info("Signal created successfully")

	return nil
}

// FindByID fetches a single signal by its primary ID.
// Returns (nil, nil) if the signal is not found.
func (r *SignalRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Signal, error) {

	var signal model.Signal

	err := r.db.WithContext(ctx).First(&signal, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch signal by ID")

		return nil, err
	}

	return &signal, nil
}

// FindPendingByUser fetches the user's pending signals, newest first.
func (r *SignalRepository) FindPendingByUser(
	ctx context.Context,
	userID uint,
) ([]model.Signal, error) {

	var signals []model.Signal

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.SignalStatusPending).
		Order("id DESC").
		Find(&signals).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "SignalRepository",
			"op":      "FindPendingByUser",
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch pending signals")

		return nil, err
	}

	return signals, nil
}

// CountPending counts pending signals across all users, for dashboarding.
func (r *SignalRepository) CountPending(
	ctx context.Context,
) (int64, error) {

	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Where("status = ?", model.SignalStatusPending).
		Count(&count).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "CountPending",
		}).WithError(err).Error("Failed to count pending signals")

		return 0, err
	}

	return count, nil
}

// UpdateStatusIf moves a signal from one status to another only if it is
// still in the expected status, and reports whether the transition happened.
// Approval, rejection, execution and expiry all funnel through this guard so
// a signal can be approved or executed at most once.
func (r *SignalRepository) UpdateStatusIf(
	ctx context.Context,
	id uint,
	fromStatus string,
	toStatus string,
) (bool, error) {

	logger.WithFields(map[string]interface{}{
		"repo":        "SignalRepository",
		"op":          "UpdateStatusIf",
		"signal_id":   id,
		"from_status": fromStatus,
		"to_status":   toStatus,
	}).Debug("Applying conditional signal status transition")

	res := r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Update("status", toStatus)

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "SignalRepository",
			"op":        "UpdateStatusIf",
			"signal_id": id,
		}).WithError(res.Error).Error("Failed to apply signal status transition")

		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}
