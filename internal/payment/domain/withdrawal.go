package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"gorm.io/datatypes"
)

// WithdrawalStatus is a state of the withdrawal state machine
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalFailed     WithdrawalStatus = "failed"
)

// WithdrawalMethod is where the money goes
type WithdrawalMethod string

const (
	WithdrawalCard    WithdrawalMethod = "card"
	WithdrawalSBP     WithdrawalMethod = "sbp"
	WithdrawalEWallet WithdrawalMethod = "ewallet"
)

// Destination holds the payout target; required fields depend on the method
type Destination struct {
	CardNumber string `json:"card_number,omitempty" gorm:"size:32"`
	Phone      string `json:"phone,omitempty" gorm:"size:20"`
	BankID     string `json:"bank_id,omitempty" gorm:"size:32"`
	WalletID   string `json:"wallet_id,omitempty" gorm:"size:64"`
}

// WithdrawalRequest moves ledger balance to an external destination.
// The full pre-commission amount is debited when the request is created.
type WithdrawalRequest struct {
	ID               uint              `json:"id" gorm:"primaryKey"`
	UserID           uint              `json:"user_id" gorm:"not null;index;uniqueIndex:idx_withdrawal_idempotency,priority:1"`
	AmountMinor      int64             `json:"amount_minor" gorm:"not null"`
	Method           WithdrawalMethod  `json:"method" gorm:"size:16;not null"`
	Destination      Destination       `json:"destination" gorm:"embedded;embeddedPrefix:dest_"`
	Status           WithdrawalStatus  `json:"status" gorm:"size:16;not null;index"`
	IsInstant        bool              `json:"is_instant" gorm:"not null;default:false"`
	ExternalPayoutID *string           `json:"external_payout_id,omitempty" gorm:"size:64;uniqueIndex"`
	IdempotencyKey   *string           `json:"-" gorm:"size:64;uniqueIndex:idx_withdrawal_idempotency,priority:2"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	ProcessedAt      *time.Time        `json:"processed_at,omitempty"`
	FailedAt         *time.Time        `json:"failed_at,omitempty"`
}

// TableName specifies the table name
func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}

// Metadata keys
const (
	MetaOriginalAmount    = "original_amount"
	MetaCommissionAmount  = "commission_amount"
	MetaCommissionPercent = "commission_percent"
)

var withdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalPending:    {WithdrawalProcessing, WithdrawalFailed},
	WithdrawalProcessing: {WithdrawalCompleted, WithdrawalFailed},
}

// CanTransitionWithdrawal reports whether from -> to is legal
func CanTransitionWithdrawal(from, to WithdrawalStatus) bool {
	for _, next := range withdrawalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalFailed
}

// OriginalAmount returns the reserved pre-commission amount
func (w *WithdrawalRequest) OriginalAmount() int64 {
	return metaInt(w.Metadata, MetaOriginalAmount, w.AmountMinor)
}

// CommissionAmount returns the commission retained by the system
func (w *WithdrawalRequest) CommissionAmount() int64 {
	return metaInt(w.Metadata, MetaCommissionAmount, 0)
}

// ReferenceID renders the request id for ledger and gateway references
func (w *WithdrawalRequest) ReferenceID() string {
	return fmt.Sprintf("%d", w.ID)
}

// metaInt reads an integer back from JSON metadata, which decodes numbers as float64
func metaInt(m datatypes.JSONMap, key string, def int64) int64 {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return def
}

// WithdrawalQuote is the split of a withdrawal amount
type WithdrawalQuote struct {
	OriginalMinor   int64
	CommissionMinor int64
	PayableMinor    int64
}

// QuoteWithdrawal splits amount into commission and payable parts.
// Commission uses integer truncation, the same rule as referral commission.
func QuoteWithdrawal(amount int64, isInstant bool, commissionPercent int64) WithdrawalQuote {
	q := WithdrawalQuote{OriginalMinor: amount}
	if isInstant {
		q.CommissionMinor = PercentOf(amount, commissionPercent)
	}
	q.PayableMinor = amount - q.CommissionMinor
	return q
}

// PercentOf returns percent% of amount rounded toward zero
func PercentOf(amount, percent int64) int64 {
	return amount * percent / 100
}

// ValidateDestination checks that the fields required by method are present
func ValidateDestination(method WithdrawalMethod, d Destination) error {
	switch method {
	case WithdrawalCard:
		digits := onlyDigits(d.CardNumber)
		if len(digits) < 13 || len(digits) > 19 {
			return fmt.Errorf("%w: card number is required", ErrValidation)
		}
	case WithdrawalSBP:
		if len(onlyDigits(d.Phone)) < 10 {
			return fmt.Errorf("%w: phone number is required for SBP", ErrValidation)
		}
		if strings.TrimSpace(d.BankID) == "" {
			return fmt.Errorf("%w: bank is required for SBP", ErrValidation)
		}
	case WithdrawalEWallet:
		if strings.TrimSpace(d.WalletID) == "" {
			return fmt.Errorf("%w: wallet id is required", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unsupported withdrawal method %q", ErrValidation, method)
	}
	return nil
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
