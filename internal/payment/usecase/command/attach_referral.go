package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/pkg/logger"
)

// AttachReferralCommand represents the command to attach a referral code
type AttachReferralCommand struct {
	ReferredID uint
	Code       string
}

// AttachReferralResult reports the referral the user ends up with
type AttachReferralResult struct {
	Referral *domain.Referral `json:"referral"`
	Attached bool             `json:"attached"`
}

// AttachReferralHandler handles attach referral command
type AttachReferralHandler struct {
	repos domain.Repositories
}

// NewAttachReferralHandler creates a new attach referral handler
func NewAttachReferralHandler(repos domain.Repositories) *AttachReferralHandler {
	return &AttachReferralHandler{repos: repos}
}

// Handle executes the attach referral command. The first referrer wins:
// a user who already has one keeps it and the call is a no-op.
func (h *AttachReferralHandler) Handle(ctx context.Context, cmd AttachReferralCommand) (*AttachReferralResult, error) {
	if cmd.ReferredID == 0 {
		return nil, domain.Validationf("user_id is required")
	}
	if strings.TrimSpace(cmd.Code) == "" {
		return nil, domain.Validationf("code is required")
	}

	existing, err := h.repos.Referrals.FindByReferredID(ctx, cmd.ReferredID)
	if err == nil {
		return &AttachReferralResult{Referral: existing}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	code, err := h.repos.Referrals.FindCode(ctx, cmd.Code)
	if err != nil {
		return nil, err
	}
	if !code.IsActive {
		return nil, fmt.Errorf("%w: referral code is not active", domain.ErrNotFound)
	}
	if code.OwnerID == cmd.ReferredID {
		return nil, domain.ErrSelfReferral
	}

	referral := &domain.Referral{
		ReferrerID:        code.OwnerID,
		ReferredID:        cmd.ReferredID,
		Code:              code.Code,
		Status:            domain.ReferralActive,
		CommissionPercent: code.CommissionPercent,
	}

	var inserted bool
	err = h.repos.Tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		ok, err := repos.Referrals.CreateIfAbsent(ctx, referral)
		if err != nil || !ok {
			return err
		}
		inserted = true
		return repos.Referrals.IncrementCodeUsage(ctx, code.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach referral: %w", err)
	}

	if !inserted {
		// a concurrent attach won
		current, err := h.repos.Referrals.FindByReferredID(ctx, cmd.ReferredID)
		if err != nil {
			return nil, err
		}
		return &AttachReferralResult{Referral: current}, nil
	}

	logger.Info(ctx).
		Uint("referrer_id", referral.ReferrerID).
		Uint("referred_id", referral.ReferredID).
		Str("code", referral.Code).
		Msg("Referral attached")
	return &AttachReferralResult{Referral: referral, Attached: true}, nil
}
