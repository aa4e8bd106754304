package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/pkg/logger"
)

// ApplyPromocodeCommand represents the command to apply a promocode
type ApplyPromocodeCommand struct {
	UserID   uint
	Code     string
	CourseID *uint
}

// PromocodeEvaluator validates codes and applies them.
// Discount codes are only previewed here; they are consumed when the
// payment referencing them completes.
type PromocodeEvaluator struct {
	repos                    domain.Repositories
	defaultCommissionPercent int64
	now                      func() time.Time
}

// NewPromocodeEvaluator creates a new promocode evaluator
func NewPromocodeEvaluator(repos domain.Repositories, defaultCommissionPercent int64) *PromocodeEvaluator {
	return &PromocodeEvaluator{
		repos:                    repos,
		defaultCommissionPercent: defaultCommissionPercent,
		now:                      time.Now,
	}
}

// Handle executes the apply promocode command
func (e *PromocodeEvaluator) Handle(ctx context.Context, cmd ApplyPromocodeCommand) (*domain.PromocodeQuote, error) {
	if cmd.UserID == 0 {
		return nil, domain.Validationf("user_id is required")
	}

	promo, err := e.validate(ctx, cmd.UserID, cmd.Code, cmd.CourseID)
	if err != nil {
		return nil, err
	}

	switch promo.Kind {
	case domain.PromoReferralAccess:
		return e.grantPartner(ctx, cmd.UserID, promo)
	case domain.PromoDiscount:
		var price int64
		if cmd.CourseID != nil {
			course, err := e.repos.Courses.FindByID(ctx, *cmd.CourseID)
			if err != nil {
				return nil, err
			}
			price = course.PriceMinor
		}
		return discountQuote(promo, price), nil
	}
	return nil, fmt.Errorf("%w: unknown promocode kind %q", domain.ErrPromocodeUnavailable, promo.Kind)
}

// Preview validates a discount code against price without consuming it
func (e *PromocodeEvaluator) Preview(ctx context.Context, userID uint, code string, courseID *uint, price int64) (*domain.Promocode, *domain.PromocodeQuote, error) {
	promo, err := e.validate(ctx, userID, code, courseID)
	if err != nil {
		return nil, nil, err
	}
	if promo.Kind != domain.PromoDiscount {
		return nil, nil, fmt.Errorf("%w: code %q is not a discount code", domain.ErrPromocodeUnavailable, promo.Code)
	}
	return promo, discountQuote(promo, price), nil
}

func (e *PromocodeEvaluator) validate(ctx context.Context, userID uint, code string, courseID *uint) (*domain.Promocode, error) {
	if strings.TrimSpace(code) == "" {
		return nil, domain.Validationf("code is required")
	}

	promo, err := e.repos.Promocodes.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown code", domain.ErrPromocodeUnavailable)
		}
		return nil, err
	}
	if err := promo.CheckUsable(e.now(), courseID); err != nil {
		return nil, err
	}

	used, err := e.repos.Promocodes.HasRedemption(ctx, promo.ID, userID)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateRedemption, promo.Code)
	}
	return promo, nil
}

// grantPartner consumes the activation and grants partner status in one transaction
func (e *PromocodeEvaluator) grantPartner(ctx context.Context, userID uint, promo *domain.Promocode) (*domain.PromocodeQuote, error) {
	percent := promo.CommissionPercent
	if percent <= 0 {
		percent = e.defaultCommissionPercent
	}

	var partner *domain.ReferralCode
	err := e.repos.Tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Promocodes.Redeem(ctx, promo.ID, userID, nil); err != nil {
			return err
		}
		code, err := repos.Referrals.UpsertPartnerCode(ctx, &domain.ReferralCode{
			Code:              newPartnerCode(),
			OwnerID:           userID,
			CommissionPercent: percent,
			IsActive:          true,
		})
		if err != nil {
			return err
		}
		partner = code
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx).
		Uint("user_id", userID).
		Str("promocode", promo.Code).
		Str("partner_code", partner.Code).
		Int64("commission_percent", partner.CommissionPercent).
		Msg("Referral partner status granted")

	return &domain.PromocodeQuote{
		PromocodeID:       promo.ID,
		Code:              promo.Code,
		Kind:              promo.Kind,
		PartnerCode:       partner.Code,
		CommissionPercent: partner.CommissionPercent,
	}, nil
}

func discountQuote(promo *domain.Promocode, price int64) *domain.PromocodeQuote {
	q := &domain.PromocodeQuote{
		PromocodeID:         promo.ID,
		Code:                promo.Code,
		Kind:                promo.Kind,
		DiscountPercent:     promo.DiscountPercent,
		DiscountAmountMinor: promo.DiscountAmountMinor,
	}
	if price > 0 {
		q.PriceMinor = price
		q.FinalPriceMinor = price - promo.DiscountFor(price)
	}
	return q
}

func newPartnerCode() string {
	return "ref" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
