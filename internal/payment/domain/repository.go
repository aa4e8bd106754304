package domain

import (
	"context"
	"time"
)

// PaymentRepository defines the contract for payment data access
type PaymentRepository interface {
	Create(ctx context.Context, payment *Payment) error
	FindByID(ctx context.Context, id uint) (*Payment, error)
	FindByExternalID(ctx context.Context, externalID string) (*Payment, error)
	FindByIdempotencyKey(ctx context.Context, key string, method PaymentMethod) (*Payment, error)
	FindByUserID(ctx context.Context, userID uint, limit, offset int) ([]Payment, error)
	FindAll(ctx context.Context, filter PaymentFilter, limit, offset int) ([]Payment, error)
	// Transition moves a payment from -> to with a conditional update
	Transition(ctx context.Context, id uint, from, to PaymentStatus, at time.Time) error
}

// LedgerRepository is the ledger store. Credit and Debit update the balance
// with a single conditional statement and append entries in the same unit.
type LedgerRepository interface {
	Credit(ctx context.Context, userID uint, amount int64, entries ...LedgerEntry) (*Balance, error)
	Debit(ctx context.Context, userID uint, amount int64, entries ...LedgerEntry) (*Balance, error)
	GetBalance(ctx context.Context, userID uint) (*Balance, error)
	ListEntries(ctx context.Context, userID uint, includeSystem bool, limit, offset int) ([]LedgerEntry, error)
	DerivedBalance(ctx context.Context, userID uint) (int64, error)
}

// WithdrawalUpdate carries the fields written with a withdrawal transition
type WithdrawalUpdate struct {
	ExternalPayoutID *string
	ErrorMessage     string
	At               time.Time
}

// WithdrawalRepository defines the contract for withdrawal data access
type WithdrawalRepository interface {
	Create(ctx context.Context, req *WithdrawalRequest) error
	FindByID(ctx context.Context, id uint) (*WithdrawalRequest, error)
	FindByIdempotencyKey(ctx context.Context, userID uint, key string) (*WithdrawalRequest, error)
	FindByExternalPayoutID(ctx context.Context, externalID string) (*WithdrawalRequest, error)
	FindByUserID(ctx context.Context, userID uint, limit, offset int) ([]WithdrawalRequest, error)
	FindByStatus(ctx context.Context, status WithdrawalStatus, limit, offset int) ([]WithdrawalRequest, error)
	// Transition moves the request to `to` only if it is currently in `from`
	Transition(ctx context.Context, id uint, from WithdrawalStatus, to WithdrawalStatus, upd WithdrawalUpdate) error
	SetExternalPayoutID(ctx context.Context, id uint, externalID string) error
}

// ReferralRepository defines the contract for referral data access
type ReferralRepository interface {
	FindByReferredID(ctx context.Context, referredID uint) (*Referral, error)
	// CreateIfAbsent inserts unless the referred user already has a referrer
	CreateIfAbsent(ctx context.Context, referral *Referral) (bool, error)
	AddEarned(ctx context.Context, referralID uint, amount int64) error
	FindCode(ctx context.Context, code string) (*ReferralCode, error)
	FindCodeByOwner(ctx context.Context, ownerID uint) (*ReferralCode, error)
	IncrementCodeUsage(ctx context.Context, codeID uint) error
	UpsertPartnerCode(ctx context.Context, code *ReferralCode) (*ReferralCode, error)
	Stats(ctx context.Context, referrerID uint) (*ReferralStats, error)
}

// PromocodeRepository defines the contract for promocode data access
type PromocodeRepository interface {
	Create(ctx context.Context, promo *Promocode) error
	FindByCode(ctx context.Context, code string) (*Promocode, error)
	FindByID(ctx context.Context, id uint) (*Promocode, error)
	HasRedemption(ctx context.Context, promocodeID, userID uint) (bool, error)
	// Redeem consumes one activation and records the redemption
	Redeem(ctx context.Context, promocodeID, userID uint, paymentID *uint) error
}

// EnrollmentRepository is the enrollment provider
type EnrollmentRepository interface {
	Upsert(ctx context.Context, enrollment *Enrollment) error
	// Replace overwrites the access level, downgrades included
	Replace(ctx context.Context, enrollment *Enrollment) error
	Revoke(ctx context.Context, userID, courseID uint) error
	Find(ctx context.Context, userID, courseID uint) (*Enrollment, error)
}

// CourseRepository is the read side of the course catalog
type CourseRepository interface {
	FindByID(ctx context.Context, id uint) (*Course, error)
}

// IdempotencyGuard de-duplicates externally triggered operations
type IdempotencyGuard interface {
	IsProcessed(ctx context.Context, key string) (bool, error)
	// MarkProcessed returns ErrAlreadyProcessed when key was marked before
	MarkProcessed(ctx context.Context, key, result string) error
}

// Repositories bundles the repositories bound to one database handle.
// Inside WithinTx every member shares the transaction.
type Repositories struct {
	Payments    PaymentRepository
	Ledger      LedgerRepository
	Withdrawals WithdrawalRepository
	Referrals   ReferralRepository
	Promocodes  PromocodeRepository
	Enrollments EnrollmentRepository
	Courses     CourseRepository
	Idempotency IdempotencyGuard
	Tx          TxManager
}

// TxManager runs fn atomically. Nested calls run in a savepoint.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
