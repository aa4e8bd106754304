package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/pkg/logger"
)

// ReferralEngine credits referrers when the users they referred buy something
type ReferralEngine struct{}

// NewReferralEngine creates a new referral engine
func NewReferralEngine() *ReferralEngine {
	return &ReferralEngine{}
}

// OnPurchaseCompleted credits the referrer of referredID with its commission
// share of amount. It runs on repos of the caller's transaction and returns
// the credited commission; 0 when the buyer has no active referrer.
func (e *ReferralEngine) OnPurchaseCompleted(ctx context.Context, repos domain.Repositories, referredID uint, amount int64, paymentID uint) (int64, error) {
	ref, err := repos.Referrals.FindByReferredID(ctx, referredID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if ref.Status != domain.ReferralActive || ref.ReferrerID == referredID {
		return 0, nil
	}

	commission := domain.PercentOf(amount, ref.CommissionPercent)
	if commission <= 0 {
		return 0, nil
	}

	_, err = repos.Ledger.Credit(ctx, ref.ReferrerID, commission, domain.LedgerEntry{
		UserID:        ref.ReferrerID,
		Type:          domain.EntryEarned,
		AmountMinor:   commission,
		ReferenceType: domain.RefReferralCommission,
		ReferenceID:   fmt.Sprintf("%d", paymentID),
		Description:   fmt.Sprintf("Referral commission %d%% for payment #%d", ref.CommissionPercent, paymentID),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to credit referral commission: %w", err)
	}
	if err := repos.Referrals.AddEarned(ctx, ref.ID, commission); err != nil {
		return 0, fmt.Errorf("failed to update referrer earnings: %w", err)
	}

	logger.Info(ctx).
		Uint("referrer_id", ref.ReferrerID).
		Uint("referred_id", referredID).
		Uint("payment_id", paymentID).
		Int64("commission", commission).
		Msg("Referral commission credited")
	return commission, nil
}

// creditBestEffort runs OnPurchaseCompleted in a savepoint so a failure rolls
// back only the commission, never the purchase.
func (e *ReferralEngine) creditBestEffort(ctx context.Context, repos domain.Repositories, p *domain.Payment) {
	if !p.PurposeKind.EarnsReferralCommission() {
		return
	}
	err := repos.Tx.WithinTx(ctx, func(ctx context.Context, sp domain.Repositories) error {
		_, err := e.OnPurchaseCompleted(ctx, sp, p.UserID, p.AmountMinor, p.ID)
		return err
	})
	if err != nil {
		logger.Error(ctx).Err(err).
			Uint("payment_id", p.ID).
			Uint("user_id", p.UserID).
			Msg("Referral commission skipped, needs manual reconciliation")
	}
}
