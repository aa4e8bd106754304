package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tair/course-payments/internal/payment/domain"
)

type GormPromocodeRepository struct {
	db *gorm.DB
}

func NewGormPromocodeRepository(db *gorm.DB) *GormPromocodeRepository {
	return &GormPromocodeRepository{db: db}
}

func (r *GormPromocodeRepository) Create(ctx context.Context, promo *domain.Promocode) error {
	promo.Code = domain.NormalizeCode(promo.Code)
	err := r.db.WithContext(ctx).Create(promo).Error
	if isDuplicate(err) {
		return domain.Validationf("promocode %q already exists", promo.Code)
	}
	return err
}

func (r *GormPromocodeRepository) FindByCode(ctx context.Context, code string) (*domain.Promocode, error) {
	var promo domain.Promocode
	err := r.db.WithContext(ctx).Where("code = ?", domain.NormalizeCode(code)).First(&promo).Error
	if err != nil {
		return nil, notFound(err, "promocode "+code)
	}
	return &promo, nil
}

func (r *GormPromocodeRepository) FindByID(ctx context.Context, id uint) (*domain.Promocode, error) {
	var promo domain.Promocode
	if err := r.db.WithContext(ctx).First(&promo, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("promocode %d", id))
	}
	return &promo, nil
}

func (r *GormPromocodeRepository) HasRedemption(ctx context.Context, promocodeID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.PromocodeRedemption{}).
		Where("promocode_id = ? AND user_id = ?", promocodeID, userID).
		Count(&count).Error
	return count > 0, err
}

// Redeem takes one activation with a conditional increment, then records the
// redemption. A second redemption by the same user hits the unique index and
// returns ErrDuplicateRedemption; run it in a transaction so the increment is
// undone with it.
func (r *GormPromocodeRepository) Redeem(ctx context.Context, promocodeID, userID uint, paymentID *uint) error {
	db := r.db.WithContext(ctx)

	res := db.Model(&domain.Promocode{}).
		Where("id = ? AND is_active = ? AND current_activations < max_activations", promocodeID, true).
		Update("current_activations", gorm.Expr("current_activations + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: activation limit reached", domain.ErrPromocodeUnavailable)
	}

	err := db.Create(&domain.PromocodeRedemption{
		PromocodeID: promocodeID,
		UserID:      userID,
		PaymentID:   paymentID,
	}).Error
	if isDuplicate(err) {
		return fmt.Errorf("%w: promocode %d user %d", domain.ErrDuplicateRedemption, promocodeID, userID)
	}
	return err
}
