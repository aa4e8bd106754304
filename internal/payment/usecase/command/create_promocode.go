package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tair/course-payments/internal/payment/domain"
)

// CreatePromocodeCommand represents the command to create a promocode
type CreatePromocodeCommand struct {
	Code                string
	Kind                domain.PromocodeKind
	DiscountPercent     int64
	DiscountAmountMinor int64
	CommissionPercent   int64
	MaxActivations      int64
	ValidFrom           *time.Time
	ValidUntil          *time.Time
	CourseID            *uint
}

// CreatePromocodeHandler handles create promocode command
type CreatePromocodeHandler struct {
	repo domain.PromocodeRepository
}

// NewCreatePromocodeHandler creates a new create promocode handler
func NewCreatePromocodeHandler(repo domain.PromocodeRepository) *CreatePromocodeHandler {
	return &CreatePromocodeHandler{repo: repo}
}

// Handle executes the create promocode command
func (h *CreatePromocodeHandler) Handle(ctx context.Context, cmd CreatePromocodeCommand) (*domain.Promocode, error) {
	code := domain.NormalizeCode(cmd.Code)
	if code == "" || len(code) > 64 || strings.ContainsAny(code, " \t") {
		return nil, domain.Validationf("code must be 1-64 characters without spaces")
	}
	if cmd.MaxActivations <= 0 {
		return nil, domain.Validationf("max_activations must be greater than 0")
	}
	if cmd.ValidFrom != nil && cmd.ValidUntil != nil && cmd.ValidUntil.Before(*cmd.ValidFrom) {
		return nil, domain.Validationf("valid_until is before valid_from")
	}

	switch cmd.Kind {
	case domain.PromoDiscount:
		if cmd.DiscountPercent < 0 || cmd.DiscountPercent > 100 || cmd.DiscountAmountMinor < 0 {
			return nil, domain.Validationf("discount must be within 0-100%% and non-negative")
		}
		if cmd.DiscountPercent == 0 && cmd.DiscountAmountMinor == 0 {
			return nil, domain.Validationf("discount code needs discount_percent or discount_amount_minor")
		}
	case domain.PromoReferralAccess:
		if cmd.CommissionPercent < 0 || cmd.CommissionPercent > 100 {
			return nil, domain.Validationf("commission_percent must be within 0-100")
		}
	default:
		return nil, domain.Validationf("unknown promocode kind %q", cmd.Kind)
	}

	promo := &domain.Promocode{
		Code:                code,
		Kind:                cmd.Kind,
		DiscountPercent:     cmd.DiscountPercent,
		DiscountAmountMinor: cmd.DiscountAmountMinor,
		CommissionPercent:   cmd.CommissionPercent,
		MaxActivations:      cmd.MaxActivations,
		ValidFrom:           cmd.ValidFrom,
		ValidUntil:          cmd.ValidUntil,
		IsActive:            true,
		CourseID:            cmd.CourseID,
	}
	if err := h.repo.Create(ctx, promo); err != nil {
		return nil, fmt.Errorf("failed to create promocode: %w", err)
	}
	return promo, nil
}
