package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/testutil"
)

// Previewing a code consumes nothing; the completed purchase does
func TestPromocode_AbandonedCheckoutKeepsActivation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	course := testutil.SeedCourse(t, h.db, 100000, 30000)

	promo, err := h.newPromo.Handle(ctx, CreatePromocodeCommand{
		Code: "ONCE", Kind: domain.PromoDiscount, DiscountPercent: 20, MaxActivations: 1,
	})
	require.NoError(t, err)

	quote, err := h.promos.Handle(ctx, ApplyPromocodeCommand{UserID: 1, Code: "once", CourseID: &course.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(100000), quote.PriceMinor)
	assert.Equal(t, int64(80000), quote.FinalPriceMinor)

	res, err := h.create.Handle(ctx, CreatePaymentCommand{
		UserID: 1, Purpose: domain.PurposeCoursePurchase, AmountMinor: 80000, CourseID: &course.ID,
		Method: domain.MethodCard, ReceiptContact: "buyer@example.com", Promocode: "ONCE",
	})
	require.NoError(t, err)

	stored, err := h.repos.Promocodes.FindByID(ctx, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.CurrentActivations)

	h.succeed(t, *h.payment(t, res.PaymentID).ExternalPaymentID, 80000)

	stored, err = h.repos.Promocodes.FindByID(ctx, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.CurrentActivations)

	_, err = h.promos.Handle(ctx, ApplyPromocodeCommand{UserID: 1, Code: "once", CourseID: &course.ID})
	assert.ErrorIs(t, err, domain.ErrDuplicateRedemption)
	_, err = h.promos.Handle(ctx, ApplyPromocodeCommand{UserID: 2, Code: "once", CourseID: &course.ID})
	assert.ErrorIs(t, err, domain.ErrPromocodeUnavailable)
}

func TestPromocode_RedemptionFailureKeepsPurchase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	course := testutil.SeedCourse(t, h.db, 100000, 30000)
	_, err := h.newPromo.Handle(ctx, CreatePromocodeCommand{
		Code: "race", Kind: domain.PromoDiscount, DiscountAmountMinor: 10000, MaxActivations: 1,
	})
	require.NoError(t, err)

	cmd := CreatePaymentCommand{
		Purpose: domain.PurposeCoursePurchase, AmountMinor: 90000, CourseID: &course.ID,
		Method: domain.MethodCard, ReceiptContact: "buyer@example.com", Promocode: "race",
	}
	cmd.UserID = 1
	first, err := h.create.Handle(ctx, cmd)
	require.NoError(t, err)
	cmd.UserID = 2
	second, err := h.create.Handle(ctx, cmd)
	require.NoError(t, err)

	h.succeed(t, *h.payment(t, first.PaymentID).ExternalPaymentID, 90000)
	h.succeed(t, *h.payment(t, second.PaymentID).ExternalPaymentID, 90000)

	assert.Equal(t, domain.StatusCompleted, h.payment(t, second.PaymentID).Status)
	_, err = h.repos.Enrollments.Find(ctx, 2, course.ID)
	assert.NoError(t, err)

	promo, err := h.repos.Promocodes.FindByCode(ctx, "race")
	require.NoError(t, err)
	assert.Equal(t, int64(1), promo.CurrentActivations)
}

func TestPromocode_ReferralAccessGrantsPartnerStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.newPromo.Handle(ctx, CreatePromocodeCommand{
		Code: "partner", Kind: domain.PromoReferralAccess, MaxActivations: 100,
	})
	require.NoError(t, err)

	quote, err := h.promos.Handle(ctx, ApplyPromocodeCommand{UserID: 7, Code: "PARTNER"})
	require.NoError(t, err)
	assert.NotEmpty(t, quote.PartnerCode)
	assert.Equal(t, int64(10), quote.CommissionPercent, "falls back to the default commission")

	code, err := h.repos.Referrals.FindCodeByOwner(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, quote.PartnerCode, code.Code)

	_, err = h.promos.Handle(ctx, ApplyPromocodeCommand{UserID: 7, Code: "partner"})
	assert.ErrorIs(t, err, domain.ErrDuplicateRedemption)
}

func TestCreatePromocode_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.newPromo.Handle(ctx, CreatePromocodeCommand{Code: "a b", Kind: domain.PromoDiscount, DiscountPercent: 10, MaxActivations: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.newPromo.Handle(ctx, CreatePromocodeCommand{Code: "zero", Kind: domain.PromoDiscount, MaxActivations: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.newPromo.Handle(ctx, CreatePromocodeCommand{Code: "nolimit", Kind: domain.PromoDiscount, DiscountPercent: 10})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.newPromo.Handle(ctx, CreatePromocodeCommand{Code: "odd", Kind: "cashback", MaxActivations: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
