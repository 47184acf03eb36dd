package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"botmanager/src/database"
	"botmanager/src/model"
)

// ExceptionRepository persists background failures for later inspection.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance using the main database.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Create inserts a captured exception. Failures here are only logged; an
// exception writer must never take down the workflow it is reporting on.
func (r *ExceptionRepository) Create(
	ctx context.Context,
	exc *model.Exception,
) error {

	err := r.db.WithContext(ctx).Create(exc).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "ExceptionRepository",
			"op":     "Create",
			"module": exc.Module,
			"method": exc.Method,
		}).WithError(err).Error("Failed to persist exception")

		return err
	}

	return nil
}
