package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tair/course-payments/internal/payment/domain"
)

// NewGormRepositories binds every repository to db.
// Pass a transaction handle to get a transaction-scoped bundle.
func NewGormRepositories(db *gorm.DB) domain.Repositories {
	return domain.Repositories{
		Payments:    NewPaymentRepositoryWithTracing(NewGormPaymentRepository(db)),
		Ledger:      NewLedgerRepositoryWithTracing(NewGormLedgerRepository(db)),
		Withdrawals: NewWithdrawalRepositoryWithTracing(NewGormWithdrawalRepository(db)),
		Referrals:   NewGormReferralRepository(db),
		Promocodes:  NewGormPromocodeRepository(db),
		Enrollments: NewGormEnrollmentRepository(db),
		Courses:     NewGormCourseRepository(db),
		Idempotency: NewGormIdempotencyRepository(db),
		Tx:          NewGormTxManager(db),
	}
}

// GormTxManager runs units of work in a gorm transaction.
// On a handle that is already a transaction gorm nests with a savepoint.
type GormTxManager struct {
	db *gorm.DB
}

func NewGormTxManager(db *gorm.DB) *GormTxManager {
	return &GormTxManager{db: db}
}

func (m *GormTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewGormRepositories(tx))
	})
}

// AutoMigrate creates or updates every table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(domain.AllModels()...)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, what)
	}
	return err
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
