package domain

import (
	"strings"
	"time"
)

// ReferralStatus of a referrer/referred association
type ReferralStatus string

const (
	ReferralActive  ReferralStatus = "active"
	ReferralRevoked ReferralStatus = "revoked"
)

// Referral links a referred user to exactly one referrer (first write wins)
type Referral struct {
	ID                uint           `json:"id" gorm:"primaryKey"`
	ReferrerID        uint           `json:"referrer_id" gorm:"not null;index"`
	ReferredID        uint           `json:"referred_id" gorm:"not null;uniqueIndex"`
	Code              string         `json:"code" gorm:"size:32;not null"`
	Status            ReferralStatus `json:"status" gorm:"size:16;not null;default:'active'"`
	CommissionPercent int64          `json:"commission_percent" gorm:"not null"`
	ReferrerEarned    int64          `json:"referrer_earned" gorm:"not null;default:0"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TableName specifies the table name
func (Referral) TableName() string {
	return "referrals"
}

// ReferralCode is a partner's shareable code; owning one is partner status
type ReferralCode struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	Code              string    `json:"code" gorm:"size:32;not null;uniqueIndex"`
	OwnerID           uint      `json:"owner_id" gorm:"not null;uniqueIndex"`
	CommissionPercent int64     `json:"commission_percent" gorm:"not null"`
	UsageCount        int64     `json:"usage_count" gorm:"not null;default:0"`
	IsActive          bool      `json:"is_active" gorm:"not null"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (ReferralCode) TableName() string {
	return "referral_codes"
}

// ReferralStats summarizes a referrer's program
type ReferralStats struct {
	Code              string `json:"code,omitempty"`
	CommissionPercent int64  `json:"commission_percent"`
	TotalReferrals    int64  `json:"total_referrals"`
	ActiveReferrals   int64  `json:"active_referrals"`
	TotalEarnedMinor  int64  `json:"total_earned_minor"`
}

// NormalizeCode makes referral and promo codes case-insensitive
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
