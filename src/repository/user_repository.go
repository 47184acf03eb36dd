package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"botmanager/src/database"
	"botmanager/src/model"
)

// UserRepository handles read operations for users.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new repository instance using the main database.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *UserRepository) WithDB(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID fetches a single user by its primary ID.
// Returns (nil, nil) if the user is not found.
func (r *UserRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.User, error) {

	var user model.User

	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "UserRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch user by ID")

		return nil, err
	}

	return &user, nil
}
