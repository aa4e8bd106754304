package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tair/course-payments/internal/payment/domain"
)

// GormIdempotencyRepository stores processed operation keys. Marking inside
// the same transaction as the effect makes the effect happen at most once.
type GormIdempotencyRepository struct {
	db *gorm.DB
}

func NewGormIdempotencyRepository(db *gorm.DB) *GormIdempotencyRepository {
	return &GormIdempotencyRepository{db: db}
}

func (r *GormIdempotencyRepository) IsProcessed(ctx context.Context, key string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ProcessedOperation{}).
		Where("operation_key = ?", key).
		Count(&count).Error
	return count > 0, err
}

func (r *GormIdempotencyRepository) MarkProcessed(ctx context.Context, key, result string) error {
	err := r.db.WithContext(ctx).Create(&domain.ProcessedOperation{
		OperationKey: key,
		Result:       result,
	}).Error
	if isDuplicate(err) {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyProcessed, key)
	}
	return err
}
