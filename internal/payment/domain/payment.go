package domain

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// PaymentStatus is a state of the payment state machine
type PaymentStatus string

// Payment statuses
const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
	StatusFailed    PaymentStatus = "failed"
	StatusRefunded  PaymentStatus = "refunded"
)

// PurposeKind says what a payment buys
type PurposeKind string

const (
	PurposeCoursePurchase PurposeKind = "course_purchase"
	PurposeBalanceTopup   PurposeKind = "balance_topup"
	PurposeFinalModules   PurposeKind = "final_modules"
	PurposePromotion      PurposeKind = "promotion"
)

// PaymentMethod is how the user pays
type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodWallet       PaymentMethod = "wallet"
	MethodSBP          PaymentMethod = "sbp"
	// MethodBalance pays from the internal balance and never reaches the gateway
	MethodBalance PaymentMethod = "balance"
)

// Payment represents one attempt to charge a user or top up a balance
type Payment struct {
	ID                uint              `json:"id" gorm:"primaryKey"`
	UserID            uint              `json:"user_id" gorm:"not null;index"`
	CourseID          *uint             `json:"course_id,omitempty" gorm:"index"`
	AmountMinor       int64             `json:"amount_minor" gorm:"not null"`
	Currency          string            `json:"currency" gorm:"size:3;not null"`
	Method            PaymentMethod     `json:"method" gorm:"size:32;not null"`
	Status            PaymentStatus     `json:"status" gorm:"size:16;not null;default:'pending';index"`
	PurposeKind       PurposeKind       `json:"purpose_kind" gorm:"size:32;not null"`
	IsFullAccess      bool              `json:"is_full_access" gorm:"not null;default:false"`
	ExternalPaymentID *string           `json:"external_payment_id,omitempty" gorm:"size:64;uniqueIndex"`
	IdempotencyKey    string            `json:"-" gorm:"size:64;index"`
	ConfirmationURL   string            `json:"confirmation_url,omitempty"`
	PromocodeID       *uint             `json:"promocode_id,omitempty"`
	ReceiptContact    string            `json:"-" gorm:"size:255"`
	Metadata          datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
}

// TableName specifies the table name
func (Payment) TableName() string {
	return "payments"
}

// PaymentFilter narrows admin payment listings; zero fields match all
type PaymentFilter struct {
	UserID   uint
	CourseID *uint
	Status   PaymentStatus
	Purpose  PurposeKind
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusRefunded},
}

// CanTransitionPayment reports whether from -> to is a legal payment transition
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidatePaymentTransition returns ErrInvalidTransition for illegal moves
func ValidatePaymentTransition(from, to PaymentStatus) error {
	if !CanTransitionPayment(from, to) {
		return fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsValidPaymentStatus checks the status belongs to the state machine
func IsValidPaymentStatus(s PaymentStatus) bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// IsValidPurpose checks the purpose kind
func IsValidPurpose(p PurposeKind) bool {
	switch p {
	case PurposeCoursePurchase, PurposeBalanceTopup, PurposeFinalModules, PurposePromotion:
		return true
	}
	return false
}

// IsValidPaymentMethod checks the payment method
func IsValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodWallet, MethodSBP, MethodBalance:
		return true
	}
	return false
}

// RequiresCourse reports whether the purpose needs a resolvable course
func (p PurposeKind) RequiresCourse() bool {
	return p == PurposeCoursePurchase || p == PurposeFinalModules
}

// GrantsEnrollment reports whether completion of this purpose enrolls the buyer
func (p PurposeKind) GrantsEnrollment() bool {
	return p != PurposeBalanceTopup
}

// EarnsReferralCommission reports whether the referrer gets a cut of this purpose
func (p PurposeKind) EarnsReferralCommission() bool {
	return p != PurposeBalanceTopup
}

// ReferenceID renders the payment id for ledger references
func (p *Payment) ReferenceID() string {
	return fmt.Sprintf("%d", p.ID)
}
