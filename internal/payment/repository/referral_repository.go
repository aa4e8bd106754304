package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tair/course-payments/internal/payment/domain"
)

type GormReferralRepository struct {
	db *gorm.DB
}

func NewGormReferralRepository(db *gorm.DB) *GormReferralRepository {
	return &GormReferralRepository{db: db}
}

func (r *GormReferralRepository) FindByReferredID(ctx context.Context, referredID uint) (*domain.Referral, error) {
	var ref domain.Referral
	err := r.db.WithContext(ctx).Where("referred_id = ?", referredID).First(&ref).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("referrer of user %d", referredID))
	}
	return &ref, nil
}

// CreateIfAbsent relies on the unique referred_id index: the first write wins
func (r *GormReferralRepository) CreateIfAbsent(ctx context.Context, referral *domain.Referral) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "referred_id"}}, DoNothing: true}).
		Create(referral)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormReferralRepository) AddEarned(ctx context.Context, referralID uint, amount int64) error {
	return r.db.WithContext(ctx).Model(&domain.Referral{}).
		Where("id = ?", referralID).
		Update("referrer_earned", gorm.Expr("referrer_earned + ?", amount)).Error
}

func (r *GormReferralRepository) FindCode(ctx context.Context, code string) (*domain.ReferralCode, error) {
	var rc domain.ReferralCode
	err := r.db.WithContext(ctx).Where("code = ?", domain.NormalizeCode(code)).First(&rc).Error
	if err != nil {
		return nil, notFound(err, "referral code "+code)
	}
	return &rc, nil
}

func (r *GormReferralRepository) FindCodeByOwner(ctx context.Context, ownerID uint) (*domain.ReferralCode, error) {
	var rc domain.ReferralCode
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&rc).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("referral code of user %d", ownerID))
	}
	return &rc, nil
}

func (r *GormReferralRepository) IncrementCodeUsage(ctx context.Context, codeID uint) error {
	return r.db.WithContext(ctx).Model(&domain.ReferralCode{}).
		Where("id = ?", codeID).
		Update("usage_count", gorm.Expr("usage_count + 1")).Error
}

// UpsertPartnerCode grants partner status to code.OwnerID. An existing code
// keeps its text and takes the new commission percent.
func (r *GormReferralRepository) UpsertPartnerCode(ctx context.Context, code *domain.ReferralCode) (*domain.ReferralCode, error) {
	code.Code = domain.NormalizeCode(code.Code)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"commission_percent", "is_active", "updated_at"}),
		}).
		Create(code).Error
	if err != nil {
		if isDuplicate(err) {
			return nil, domain.Validationf("referral code %q is taken", code.Code)
		}
		return nil, err
	}
	return r.FindCodeByOwner(ctx, code.OwnerID)
}

func (r *GormReferralRepository) Stats(ctx context.Context, referrerID uint) (*domain.ReferralStats, error) {
	stats := &domain.ReferralStats{}
	if rc, err := r.FindCodeByOwner(ctx, referrerID); err == nil {
		stats.Code = rc.Code
		stats.CommissionPercent = rc.CommissionPercent
	}

	type row struct {
		Total  int64
		Active int64
		Earned int64
	}
	var agg row
	err := r.db.WithContext(ctx).Model(&domain.Referral{}).
		Select("COUNT(*) AS total, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS active, "+
			"COALESCE(SUM(referrer_earned), 0) AS earned", domain.ReferralActive).
		Where("referrer_id = ?", referrerID).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	stats.TotalReferrals = agg.Total
	stats.ActiveReferrals = agg.Active
	stats.TotalEarnedMinor = agg.Earned
	return stats, nil
}
