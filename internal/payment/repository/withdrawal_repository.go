package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tair/course-payments/internal/payment/domain"
)

type GormWithdrawalRepository struct {
	db *gorm.DB
}

func NewGormWithdrawalRepository(db *gorm.DB) *GormWithdrawalRepository {
	return &GormWithdrawalRepository{db: db}
}

func (r *GormWithdrawalRepository) Create(ctx context.Context, req *domain.WithdrawalRequest) error {
	err := r.db.WithContext(ctx).Create(req).Error
	if isDuplicate(err) {
		return fmt.Errorf("%w: withdrawal request", domain.ErrAlreadyProcessed)
	}
	return err
}

func (r *GormWithdrawalRepository) FindByID(ctx context.Context, id uint) (*domain.WithdrawalRequest, error) {
	var req domain.WithdrawalRequest
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("withdrawal %d", id))
	}
	return &req, nil
}

func (r *GormWithdrawalRepository) FindByIdempotencyKey(ctx context.Context, userID uint, key string) (*domain.WithdrawalRequest, error) {
	var req domain.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&req).Error
	if err != nil {
		return nil, notFound(err, "withdrawal with key "+key)
	}
	return &req, nil
}

func (r *GormWithdrawalRepository) FindByExternalPayoutID(ctx context.Context, externalID string) (*domain.WithdrawalRequest, error) {
	var req domain.WithdrawalRequest
	err := r.db.WithContext(ctx).Where("external_payout_id = ?", externalID).First(&req).Error
	if err != nil {
		return nil, notFound(err, "withdrawal for payout "+externalID)
	}
	return &req, nil
}

func (r *GormWithdrawalRepository) FindByUserID(ctx context.Context, userID uint, limit, offset int) ([]domain.WithdrawalRequest, error) {
	var reqs []domain.WithdrawalRequest
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&reqs).Error
	return reqs, err
}

func (r *GormWithdrawalRepository) FindByStatus(ctx context.Context, status domain.WithdrawalStatus, limit, offset int) ([]domain.WithdrawalRequest, error) {
	var reqs []domain.WithdrawalRequest
	err := r.db.WithContext(ctx).Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Limit(limit).Offset(offset).
		Find(&reqs).Error
	return reqs, err
}

func (r *GormWithdrawalRepository) Transition(ctx context.Context, id uint, from, to domain.WithdrawalStatus, upd domain.WithdrawalUpdate) error {
	if !domain.CanTransitionWithdrawal(from, to) {
		return fmt.Errorf("%w: withdrawal %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	updates := map[string]interface{}{"status": to}
	if upd.ExternalPayoutID != nil {
		updates["external_payout_id"] = *upd.ExternalPayoutID
	}
	if upd.ErrorMessage != "" {
		updates["error_message"] = upd.ErrorMessage
	}
	switch to {
	case domain.WithdrawalCompleted:
		updates["processed_at"] = upd.At
	case domain.WithdrawalFailed:
		updates["failed_at"] = upd.At
	}

	res := r.db.WithContext(ctx).Model(&domain.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: withdrawal %d is no longer %s", domain.ErrInvalidTransition, id, from)
	}
	return nil
}

func (r *GormWithdrawalRepository) SetExternalPayoutID(ctx context.Context, id uint, externalID string) error {
	return r.db.WithContext(ctx).Model(&domain.WithdrawalRequest{}).
		Where("id = ?", id).
		Update("external_payout_id", externalID).Error
}
