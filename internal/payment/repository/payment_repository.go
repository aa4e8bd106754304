package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tair/course-payments/internal/payment/domain"
)

type GormPaymentRepository struct {
	db *gorm.DB
}

func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *GormPaymentRepository) FindByID(ctx context.Context, id uint) (*domain.Payment, error) {
	var payment domain.Payment
	err := r.db.WithContext(ctx).First(&payment, id).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("payment %d", id))
	}
	return &payment, nil
}

func (r *GormPaymentRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Payment, error) {
	var payment domain.Payment
	err := r.db.WithContext(ctx).Where("external_payment_id = ?", externalID).First(&payment).Error
	if err != nil {
		return nil, notFound(err, "payment "+externalID)
	}
	return &payment, nil
}

// FindByIdempotencyKey returns the latest payment of method created under key
func (r *GormPaymentRepository) FindByIdempotencyKey(ctx context.Context, key string, method domain.PaymentMethod) (*domain.Payment, error) {
	var payment domain.Payment
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ? AND method = ?", key, method).
		Order("id DESC").
		First(&payment).Error
	if err != nil {
		return nil, notFound(err, "payment with idempotency key "+key)
	}
	return &payment, nil
}

func (r *GormPaymentRepository) FindByUserID(ctx context.Context, userID uint, limit, offset int) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Limit(limit).Offset(offset).
		Order("created_at DESC, id DESC").
		Find(&payments).Error
	return payments, err
}

func (r *GormPaymentRepository) FindAll(ctx context.Context, filter domain.PaymentFilter, limit, offset int) ([]domain.Payment, error) {
	q := r.db.WithContext(ctx)
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.CourseID != nil {
		q = q.Where("course_id = ?", *filter.CourseID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Purpose != "" {
		q = q.Where("purpose_kind = ?", filter.Purpose)
	}

	var payments []domain.Payment
	err := q.Limit(limit).Offset(offset).
		Order("created_at DESC, id DESC").
		Find(&payments).Error
	return payments, err
}

func (r *GormPaymentRepository) Transition(ctx context.Context, id uint, from, to domain.PaymentStatus, at time.Time) error {
	if err := domain.ValidatePaymentTransition(from, to); err != nil {
		return err
	}

	updates := map[string]interface{}{"status": to}
	if to == domain.StatusCompleted {
		updates["completed_at"] = at
	}

	res := r.db.WithContext(ctx).Model(&domain.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: payment %d is no longer %s", domain.ErrInvalidTransition, id, from)
	}
	return nil
}
