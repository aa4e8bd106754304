package domain

import (
	"fmt"
	"time"
)

// EntryType is the direction class of a ledger entry
type EntryType string

const (
	EntryEarned    EntryType = "earned"
	EntrySpent     EntryType = "spent"
	EntryWithdrawn EntryType = "withdrawn"
	EntryRefund    EntryType = "refund"
)

// Ledger reference types
const (
	RefBalanceTopup         = "balance_topup"
	RefGatewayCharge        = "gateway_charge"
	RefCoursePurchase       = "course_purchase"
	RefReferralCommission   = "referral_commission"
	RefWithdrawal           = "withdrawal"
	RefWithdrawalCommission = "withdrawal_commission"
	RefWithdrawalReversal   = "withdrawal_reversal"
	RefGatewayRefund        = "gateway_refund"
	RefPurchaseRefund       = "purchase_refund"
	RefManualAdjustment     = "manual_adjustment"
)

// LedgerEntry is an immutable record of a single balance movement.
// AmountMinor is always positive; the sign comes from Type.
type LedgerEntry struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	UserID        uint      `json:"user_id" gorm:"not null;index"`
	Type          EntryType `json:"type" gorm:"size:16;not null"`
	AmountMinor   int64     `json:"amount_minor" gorm:"not null"`
	ReferenceType string    `json:"reference_type" gorm:"size:32;not null;index:idx_ledger_reference,priority:1"`
	ReferenceID   string    `json:"reference_id" gorm:"size:64;not null;index:idx_ledger_reference,priority:2"`
	Description   string    `json:"description,omitempty"`
	IsSystem      bool      `json:"-" gorm:"not null;default:false"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName specifies the table name
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// SignedAmount returns the entry's effect on the balance
func (e LedgerEntry) SignedAmount() int64 {
	switch e.Type {
	case EntryEarned, EntryRefund:
		return e.AmountMinor
	case EntrySpent, EntryWithdrawn:
		return -e.AmountMinor
	}
	return 0
}

// IsCredit reports whether the entry increases the balance
func (e LedgerEntry) IsCredit() bool {
	return e.Type == EntryEarned || e.Type == EntryRefund
}

// Balance is the per-user spendable balance; derived from ledger entries
type Balance struct {
	UserID         uint      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	Balance        int64     `json:"balance" gorm:"not null;default:0"`
	TotalEarned    int64     `json:"total_earned" gorm:"not null;default:0"`
	TotalWithdrawn int64     `json:"total_withdrawn" gorm:"not null;default:0"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (Balance) TableName() string {
	return "balances"
}

// ValidatePosting checks that entries are positive, match the direction and sum to amount
func ValidatePosting(userID uint, amount int64, credit bool, entries []LedgerEntry) error {
	if amount <= 0 {
		return fmt.Errorf("%w: ledger amount must be positive", ErrValidation)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: posting without ledger entries", ErrValidation)
	}

	var sum int64
	for _, e := range entries {
		if e.AmountMinor <= 0 {
			return fmt.Errorf("%w: ledger entry amount must be positive", ErrValidation)
		}
		if e.UserID != userID {
			return fmt.Errorf("%w: ledger entry for user %d posted to user %d", ErrValidation, e.UserID, userID)
		}
		if e.IsCredit() != credit {
			return fmt.Errorf("%w: %s entry in wrong posting direction", ErrValidation, e.Type)
		}
		sum += e.AmountMinor
	}
	if sum != amount {
		return fmt.Errorf("%w: entries sum to %d, posting is %d", ErrValidation, sum, amount)
	}
	return nil
}

// TotalsDelta returns how entries move TotalEarned and TotalWithdrawn
func TotalsDelta(entries []LedgerEntry) (earned, withdrawn int64) {
	for _, e := range entries {
		switch {
		case e.Type == EntryEarned && e.ReferenceType != RefGatewayCharge:
			earned += e.AmountMinor
		case e.Type == EntryWithdrawn && e.ReferenceType == RefWithdrawal:
			withdrawn += e.AmountMinor
		case e.Type == EntryRefund && e.ReferenceType == RefWithdrawalReversal:
			withdrawn -= e.AmountMinor
		}
	}
	return earned, withdrawn
}
