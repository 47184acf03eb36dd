package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"botmanager/src/database"
	"botmanager/src/model"
)

// UserExchangeRepository handles read operations for per-user exchange access
// and bot settings.
type UserExchangeRepository struct {
	db *gorm.DB
}

// NewUserExchangeRepository creates a new repository instance using the main database.
func NewUserExchangeRepository() *UserExchangeRepository {
	logger.WithField("component", "UserExchangeRepository").
		Debug("Creating new UserExchangeRepository with MainDB")

	return &UserExchangeRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *UserExchangeRepository) WithDB(db *gorm.DB) *UserExchangeRepository {
	return &UserExchangeRepository{db: db}
}

// FindActive fetches every user-exchange row with the bot enabled. These are
// the users the signal scheduler evaluates each tick.
func (r *UserExchangeRepository) FindActive(
	ctx context.Context,
) ([]model.UserExchange, error) {

	var rows []model.UserExchange

	err := r.db.WithContext(ctx).
		Preload("Exchange").
		Where("bot_enabled = ?", true).
		Order("user_id ASC").
		Find(&rows).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "UserExchangeRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to fetch active user exchanges")

		return nil, err
	}

	return rows, nil
}

// FindByUserID fetches the user's exchange settings.
// Returns (nil, nil) if the user has no exchange configured.
func (r *UserExchangeRepository) FindByUserID(
	ctx context.Context,
	userID uint,
) (*model.UserExchange, error) {

	var row model.UserExchange

	err := r.db.WithContext(ctx).
		Preload("Exchange").
		Where("user_id = ?", userID).
		First(&row).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":    "UserExchangeRepository",
			"op":      "FindByUserID",
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch user exchange by user ID")

		return nil, err
	}

	return &row, nil
}
