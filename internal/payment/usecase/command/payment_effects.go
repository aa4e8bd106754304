package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/pkg/logger"
)

// PaymentEffects applies the ledger and access consequences of a payment
// reaching completed or refunded. Callers run it inside the transaction that
// performs the status transition, so effects happen exactly once.
type PaymentEffects struct {
	referrals *ReferralEngine
}

// NewPaymentEffects creates a new effects applier
func NewPaymentEffects(referrals *ReferralEngine) *PaymentEffects {
	return &PaymentEffects{referrals: referrals}
}

// Complete books a completed payment. Gateway-funded purchases pass the
// charge through the ledger (system earned, then spent) so the balance is
// unchanged; balance-funded purchases debit the balance.
func (e *PaymentEffects) Complete(ctx context.Context, repos domain.Repositories, p *domain.Payment) error {
	ref := p.ReferenceID()

	if p.PurposeKind == domain.PurposeBalanceTopup {
		if p.Method == domain.MethodBalance {
			return domain.Validationf("balance top-up cannot be paid from balance")
		}
		_, err := repos.Ledger.Credit(ctx, p.UserID, p.AmountMinor, domain.LedgerEntry{
			UserID:        p.UserID,
			Type:          domain.EntryEarned,
			AmountMinor:   p.AmountMinor,
			ReferenceType: domain.RefBalanceTopup,
			ReferenceID:   ref,
			Description:   "Balance top-up",
		})
		return err
	}

	if p.Method != domain.MethodBalance {
		_, err := repos.Ledger.Credit(ctx, p.UserID, p.AmountMinor, domain.LedgerEntry{
			UserID:        p.UserID,
			Type:          domain.EntryEarned,
			AmountMinor:   p.AmountMinor,
			ReferenceType: domain.RefGatewayCharge,
			ReferenceID:   ref,
			Description:   "Gateway charge",
			IsSystem:      true,
		})
		if err != nil {
			return err
		}
	}
	_, err := repos.Ledger.Debit(ctx, p.UserID, p.AmountMinor, domain.LedgerEntry{
		UserID:        p.UserID,
		Type:          domain.EntrySpent,
		AmountMinor:   p.AmountMinor,
		ReferenceType: domain.RefCoursePurchase,
		ReferenceID:   ref,
		Description:   purchaseDescription(p),
	})
	if err != nil {
		return err
	}

	if p.PurposeKind.GrantsEnrollment() && p.CourseID != nil {
		paymentID := p.ID
		err := repos.Enrollments.Upsert(ctx, &domain.Enrollment{
			UserID:       p.UserID,
			CourseID:     *p.CourseID,
			IsFullAccess: p.IsFullAccess,
			PaymentID:    &paymentID,
		})
		if err != nil {
			return fmt.Errorf("failed to grant enrollment: %w", err)
		}
	}

	if p.PromocodeID != nil {
		e.redeemBestEffort(ctx, repos, p)
	}
	e.referrals.creditBestEffort(ctx, repos, p)
	return nil
}

// Refund books a refunded payment and revokes the access it granted.
// A gateway refund returns cash to the card: a purchase refund is a refund
// entry matched by a system withdrawal; a top-up refund takes the money back
// from the balance.
func (e *PaymentEffects) Refund(ctx context.Context, repos domain.Repositories, p *domain.Payment) error {
	ref := p.ReferenceID()

	if p.PurposeKind == domain.PurposeBalanceTopup {
		_, err := repos.Ledger.Debit(ctx, p.UserID, p.AmountMinor, domain.LedgerEntry{
			UserID:        p.UserID,
			Type:          domain.EntryWithdrawn,
			AmountMinor:   p.AmountMinor,
			ReferenceType: domain.RefGatewayRefund,
			ReferenceID:   ref,
			Description:   "Top-up refunded to payment method",
		})
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return fmt.Errorf("%w: top-up %d refunded but balance already spent: %v",
				domain.ErrReconciliationRequired, p.ID, err)
		}
		return err
	}

	_, err := repos.Ledger.Credit(ctx, p.UserID, p.AmountMinor, domain.LedgerEntry{
		UserID:        p.UserID,
		Type:          domain.EntryRefund,
		AmountMinor:   p.AmountMinor,
		ReferenceType: domain.RefPurchaseRefund,
		ReferenceID:   ref,
		Description:   "Refund: " + purchaseDescription(p),
	})
	if err != nil {
		return err
	}
	if p.Method != domain.MethodBalance {
		_, err = repos.Ledger.Debit(ctx, p.UserID, p.AmountMinor, domain.LedgerEntry{
			UserID:        p.UserID,
			Type:          domain.EntryWithdrawn,
			AmountMinor:   p.AmountMinor,
			ReferenceType: domain.RefGatewayRefund,
			ReferenceID:   ref,
			Description:   "Refund returned to payment method",
			IsSystem:      true,
		})
		if err != nil {
			return err
		}
	}

	if p.CourseID != nil && p.PurposeKind.GrantsEnrollment() {
		if err := e.revokeAccess(ctx, repos, p); err != nil {
			return fmt.Errorf("failed to revoke enrollment: %w", err)
		}
	}
	return nil
}

// revokeAccess withdraws what p granted. Access paid for by another completed
// payment for the same course is kept at the level that payment bought.
func (e *PaymentEffects) revokeAccess(ctx context.Context, repos domain.Repositories, p *domain.Payment) error {
	others, err := repos.Payments.FindAll(ctx, domain.PaymentFilter{
		UserID:   p.UserID,
		CourseID: p.CourseID,
		Status:   domain.StatusCompleted,
	}, 100, 0)
	if err != nil {
		return err
	}

	var keep *domain.Payment
	for i := range others {
		o := &others[i]
		if o.ID == p.ID || !o.PurposeKind.GrantsEnrollment() {
			continue
		}
		if keep == nil || (o.IsFullAccess && !keep.IsFullAccess) {
			keep = o
		}
	}
	if keep == nil {
		return repos.Enrollments.Revoke(ctx, p.UserID, *p.CourseID)
	}

	paymentID := keep.ID
	return repos.Enrollments.Replace(ctx, &domain.Enrollment{
		UserID:       p.UserID,
		CourseID:     *p.CourseID,
		IsFullAccess: keep.IsFullAccess,
		PaymentID:    &paymentID,
	})
}

func (e *PaymentEffects) redeemBestEffort(ctx context.Context, repos domain.Repositories, p *domain.Payment) {
	paymentID := p.ID
	err := repos.Tx.WithinTx(ctx, func(ctx context.Context, sp domain.Repositories) error {
		return sp.Promocodes.Redeem(ctx, *p.PromocodeID, p.UserID, &paymentID)
	})
	if err != nil {
		logger.Warn(ctx).Err(err).
			Uint("payment_id", p.ID).
			Uint("promocode_id", *p.PromocodeID).
			Msg("Promocode redemption skipped on completed payment")
	}
}

func purchaseDescription(p *domain.Payment) string {
	switch p.PurposeKind {
	case domain.PurposeFinalModules:
		return fmt.Sprintf("Final modules of course #%d", derefUint(p.CourseID))
	case domain.PurposePromotion:
		return "Promotion"
	}
	if p.CourseID != nil {
		return fmt.Sprintf("Course #%d", *p.CourseID)
	}
	return "Purchase"
}

func derefUint(v *uint) uint {
	if v == nil {
		return 0
	}
	return *v
}
