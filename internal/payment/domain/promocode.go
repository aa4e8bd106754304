package domain

import (
	"fmt"
	"time"
)

// PromocodeKind selects what applying a code does
type PromocodeKind string

const (
	PromoDiscount       PromocodeKind = "discount"
	PromoReferralAccess PromocodeKind = "referral_access"
)

// Promocode is a discount or eligibility rule. Code is stored lower-cased.
type Promocode struct {
	ID                  uint          `json:"id" gorm:"primaryKey"`
	Code                string        `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Kind                PromocodeKind `json:"kind" gorm:"size:32;not null"`
	DiscountPercent     int64         `json:"discount_percent" gorm:"not null;default:0"`
	DiscountAmountMinor int64         `json:"discount_amount_minor" gorm:"not null;default:0"`
	CommissionPercent   int64         `json:"commission_percent" gorm:"not null;default:0"`
	MaxActivations      int64         `json:"max_activations" gorm:"not null"`
	CurrentActivations  int64         `json:"current_activations" gorm:"not null;default:0"`
	ValidFrom           *time.Time    `json:"valid_from,omitempty"`
	ValidUntil          *time.Time    `json:"valid_until,omitempty"`
	IsActive            bool          `json:"is_active" gorm:"not null"`
	CourseID            *uint         `json:"course_id,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// TableName specifies the table name
func (Promocode) TableName() string {
	return "promocodes"
}

// PromocodeRedemption records that a user consumed a code
type PromocodeRedemption struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	PromocodeID uint      `json:"promocode_id" gorm:"not null;uniqueIndex:idx_promocode_user,priority:1"`
	UserID      uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_promocode_user,priority:2"`
	PaymentID   *uint     `json:"payment_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name
func (PromocodeRedemption) TableName() string {
	return "promocode_redemptions"
}

// CheckUsable validates everything except prior redemption, which needs the store
func (p *Promocode) CheckUsable(now time.Time, courseID *uint) error {
	if !p.IsActive {
		return fmt.Errorf("%w: code is not active", ErrPromocodeUnavailable)
	}
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return fmt.Errorf("%w: code is not valid yet", ErrPromocodeUnavailable)
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return fmt.Errorf("%w: code has expired", ErrPromocodeUnavailable)
	}
	if p.CurrentActivations >= p.MaxActivations {
		return fmt.Errorf("%w: activation limit reached", ErrPromocodeUnavailable)
	}
	if p.CourseID != nil {
		if courseID == nil || *courseID != *p.CourseID {
			return fmt.Errorf("%w: code is not valid for this course", ErrPromocodeUnavailable)
		}
	}
	return nil
}

// DiscountFor returns the discount on price; never more than price
func (p *Promocode) DiscountFor(price int64) int64 {
	if p.Kind != PromoDiscount || price <= 0 {
		return 0
	}
	discount := PercentOf(price, p.DiscountPercent) + p.DiscountAmountMinor
	if discount > price {
		discount = price
	}
	return discount
}

// PromocodeQuote is the preview returned for discount codes
type PromocodeQuote struct {
	PromocodeID         uint          `json:"promocode_id"`
	Code                string        `json:"code"`
	Kind                PromocodeKind `json:"kind"`
	DiscountPercent     int64         `json:"discount_percent"`
	DiscountAmountMinor int64         `json:"discount_amount_minor"`
	PriceMinor          int64         `json:"price_minor,omitempty"`
	FinalPriceMinor     int64         `json:"final_price_minor,omitempty"`
	PartnerCode         string        `json:"partner_code,omitempty"`
	CommissionPercent   int64         `json:"commission_percent,omitempty"`
}
