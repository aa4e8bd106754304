package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tair/course-payments/internal/payment/domain"
)

// GormLedgerRepository keeps balances and ledger entries. Every balance change
// is one conditional UPDATE evaluated by the database; it is never computed
// in application memory. Callers wrap Credit/Debit in a transaction so the
// entry append commits or rolls back with the balance change.
type GormLedgerRepository struct {
	db *gorm.DB
}

func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

func (r *GormLedgerRepository) Credit(ctx context.Context, userID uint, amount int64, entries ...domain.LedgerEntry) (*domain.Balance, error) {
	if err := domain.ValidatePosting(userID, amount, true, entries); err != nil {
		return nil, err
	}

	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.Balance{UserID: userID}).Error; err != nil {
		return nil, fmt.Errorf("failed to open balance: %w", err)
	}

	earned, withdrawn := domain.TotalsDelta(entries)
	res := db.Model(&domain.Balance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":         gorm.Expr("balance + ?", amount),
			"total_earned":    gorm.Expr("total_earned + ?", earned),
			"total_withdrawn": gorm.Expr("total_withdrawn + ?", withdrawn),
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to credit balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("failed to credit balance: no balance row for user %d", userID)
	}

	if err := r.appendEntries(db, entries); err != nil {
		return nil, err
	}
	return r.load(db, userID)
}

func (r *GormLedgerRepository) Debit(ctx context.Context, userID uint, amount int64, entries ...domain.LedgerEntry) (*domain.Balance, error) {
	if err := domain.ValidatePosting(userID, amount, false, entries); err != nil {
		return nil, err
	}

	db := r.db.WithContext(ctx)
	earned, withdrawn := domain.TotalsDelta(entries)
	res := db.Model(&domain.Balance{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance":         gorm.Expr("balance - ?", amount),
			"total_earned":    gorm.Expr("total_earned + ?", earned),
			"total_withdrawn": gorm.Expr("total_withdrawn + ?", withdrawn),
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: user %d cannot cover %d", domain.ErrInsufficientFunds, userID, amount)
	}

	if err := r.appendEntries(db, entries); err != nil {
		return nil, err
	}
	return r.load(db, userID)
}

func (r *GormLedgerRepository) GetBalance(ctx context.Context, userID uint) (*domain.Balance, error) {
	bal, err := r.load(r.db.WithContext(ctx), userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.Balance{UserID: userID}, nil
	}
	return bal, err
}

func (r *GormLedgerRepository) ListEntries(ctx context.Context, userID uint, includeSystem bool, limit, offset int) ([]domain.LedgerEntry, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if !includeSystem {
		q = q.Where("is_system = ?", false)
	}

	var entries []domain.LedgerEntry
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&entries).Error
	return entries, err
}

// DerivedBalance sums the user's entries: earned - spent - withdrawn + refund
func (r *GormLedgerRepository) DerivedBalance(ctx context.Context, userID uint) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Select("COALESCE(SUM(CASE WHEN type IN (?, ?) THEN amount_minor ELSE -amount_minor END), 0)",
			domain.EntryEarned, domain.EntryRefund).
		Where("user_id = ?", userID).
		Scan(&sum).Error
	return sum, err
}

func (r *GormLedgerRepository) appendEntries(db *gorm.DB, entries []domain.LedgerEntry) error {
	if err := db.Create(&entries).Error; err != nil {
		return fmt.Errorf("failed to append ledger entries: %w", err)
	}
	return nil
}

func (r *GormLedgerRepository) load(db *gorm.DB, userID uint) (*domain.Balance, error) {
	var bal domain.Balance
	if err := db.Where("user_id = ?", userID).First(&bal).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("balance of user %d", userID))
	}
	return &bal, nil
}
