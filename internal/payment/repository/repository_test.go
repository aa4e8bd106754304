package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/testutil"
)

func TestIdempotency_MarkTwice(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()

	done, err := repos.Idempotency.IsProcessed(ctx, "gateway:payment.succeeded:pay_1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, repos.Idempotency.MarkProcessed(ctx, "gateway:payment.succeeded:pay_1", "payment.succeeded"))
	err = repos.Idempotency.MarkProcessed(ctx, "gateway:payment.succeeded:pay_1", "payment.succeeded")
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	done, err = repos.Idempotency.IsProcessed(ctx, "gateway:payment.succeeded:pay_1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestIdempotency_RolledBackMarkIsForgotten(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()

	err := repos.Tx.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if err := tx.Idempotency.MarkProcessed(ctx, "k", "r"); err != nil {
			return err
		}
		return domain.ErrReconciliationRequired
	})
	require.ErrorIs(t, err, domain.ErrReconciliationRequired)

	done, err := repos.Idempotency.IsProcessed(ctx, "k")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestPayment_ConditionalTransition(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()

	externalID := "pay_1"
	p := &domain.Payment{
		UserID:            1,
		AmountMinor:       1000,
		Currency:          "RUB",
		Method:            domain.MethodCard,
		Status:            domain.StatusPending,
		PurposeKind:       domain.PurposeBalanceTopup,
		ExternalPaymentID: &externalID,
	}
	require.NoError(t, repos.Payments.Create(ctx, p))

	require.NoError(t, repos.Payments.Transition(ctx, p.ID, domain.StatusPending, domain.StatusCompleted, time.Now()))

	// a second writer that still believes the payment is pending loses
	err := repos.Payments.Transition(ctx, p.ID, domain.StatusPending, domain.StatusFailed, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = repos.Payments.Transition(ctx, p.ID, domain.StatusCompleted, domain.StatusPending, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := repos.Payments.FindByExternalID(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	_, err = repos.Payments.FindByID(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWithdrawal_TransitionAndKeys(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()

	key := "wd-1"
	req := &domain.WithdrawalRequest{
		UserID:         1,
		AmountMinor:    50000,
		Method:         domain.WithdrawalCard,
		Destination:    domain.Destination{CardNumber: "4111111111111111"},
		Status:         domain.WithdrawalPending,
		IdempotencyKey: &key,
	}
	require.NoError(t, repos.Withdrawals.Create(ctx, req))

	dup := *req
	dup.ID = 0
	assert.ErrorIs(t, repos.Withdrawals.Create(ctx, &dup), domain.ErrAlreadyProcessed)

	found, err := repos.Withdrawals.FindByIdempotencyKey(ctx, 1, key)
	require.NoError(t, err)
	assert.Equal(t, req.ID, found.ID)

	payoutID := "po_1"
	require.NoError(t, repos.Withdrawals.Transition(ctx, req.ID, domain.WithdrawalPending, domain.WithdrawalProcessing, domain.WithdrawalUpdate{At: time.Now()}))
	require.NoError(t, repos.Withdrawals.Transition(ctx, req.ID, domain.WithdrawalProcessing, domain.WithdrawalCompleted,
		domain.WithdrawalUpdate{ExternalPayoutID: &payoutID, At: time.Now()}))

	err = repos.Withdrawals.Transition(ctx, req.ID, domain.WithdrawalProcessing, domain.WithdrawalFailed, domain.WithdrawalUpdate{At: time.Now()})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = repos.Withdrawals.Transition(ctx, req.ID, domain.WithdrawalCompleted, domain.WithdrawalFailed, domain.WithdrawalUpdate{At: time.Now()})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := repos.Withdrawals.FindByExternalPayoutID(ctx, payoutID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalCompleted, got.Status)
	assert.NotNil(t, got.ProcessedAt)
}

func TestPromocode_RedeemOncePerUser(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()

	promo := &domain.Promocode{Code: "SUMMER", Kind: domain.PromoDiscount, DiscountPercent: 10, MaxActivations: 5, IsActive: true}
	require.NoError(t, repos.Promocodes.Create(ctx, promo))
	assert.Equal(t, "summer", promo.Code)

	redeem := func(userID uint) error {
		return repos.Tx.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
			return tx.Promocodes.Redeem(ctx, promo.ID, userID, nil)
		})
	}

	require.NoError(t, redeem(1))
	assert.ErrorIs(t, redeem(1), domain.ErrDuplicateRedemption)

	got, err := repos.Promocodes.FindByCode(ctx, "Summer")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.CurrentActivations, "the duplicate's increment is rolled back")

	used, err := repos.Promocodes.HasRedemption(ctx, promo.ID, 1)
	require.NoError(t, err)
	assert.True(t, used)
}

func TestPromocode_ActivationLimit(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()

	promo := &domain.Promocode{Code: "one", Kind: domain.PromoDiscount, DiscountPercent: 10, MaxActivations: 1, IsActive: true}
	require.NoError(t, repos.Promocodes.Create(ctx, promo))

	require.NoError(t, repos.Promocodes.Redeem(ctx, promo.ID, 1, nil))
	assert.ErrorIs(t, repos.Promocodes.Redeem(ctx, promo.ID, 2, nil), domain.ErrPromocodeUnavailable)

	dup := &domain.Promocode{Code: "ONE", Kind: domain.PromoDiscount, MaxActivations: 1, IsActive: true}
	assert.ErrorIs(t, repos.Promocodes.Create(ctx, dup), domain.ErrValidation)
}

func TestReferral_FirstReferrerWins(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()

	first := &domain.Referral{ReferrerID: 10, ReferredID: 1, Code: "a", Status: domain.ReferralActive, CommissionPercent: 10}
	ok, err := repos.Referrals.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, ok)

	second := &domain.Referral{ReferrerID: 20, ReferredID: 1, Code: "b", Status: domain.ReferralActive, CommissionPercent: 30}
	ok, err = repos.Referrals.CreateIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repos.Referrals.FindByReferredID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint(10), got.ReferrerID)

	require.NoError(t, repos.Referrals.AddEarned(ctx, got.ID, 500))
	_, err = repos.Referrals.UpsertPartnerCode(ctx, &domain.ReferralCode{Code: "REF10", OwnerID: 10, CommissionPercent: 10, IsActive: true})
	require.NoError(t, err)

	stats, err := repos.Referrals.Stats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "ref10", stats.Code)
	assert.Equal(t, int64(1), stats.TotalReferrals)
	assert.Equal(t, int64(1), stats.ActiveReferrals)
	assert.Equal(t, int64(500), stats.TotalEarnedMinor)
}

func TestReferral_UpsertPartnerCodeKeepsCode(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()

	code, err := repos.Referrals.UpsertPartnerCode(ctx, &domain.ReferralCode{Code: "first", OwnerID: 3, CommissionPercent: 10, IsActive: true})
	require.NoError(t, err)

	again, err := repos.Referrals.UpsertPartnerCode(ctx, &domain.ReferralCode{Code: "second", OwnerID: 3, CommissionPercent: 25, IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, code.ID, again.ID)
	assert.Equal(t, "first", again.Code)
	assert.Equal(t, int64(25), again.CommissionPercent)
}

func TestEnrollment_UpsertNeverDowngrades(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()

	require.NoError(t, repos.Enrollments.Upsert(ctx, &domain.Enrollment{UserID: 1, CourseID: 7, IsFullAccess: true}))
	require.NoError(t, repos.Enrollments.Upsert(ctx, &domain.Enrollment{UserID: 1, CourseID: 7, IsFullAccess: false}))

	got, err := repos.Enrollments.Find(ctx, 1, 7)
	require.NoError(t, err)
	assert.True(t, got.IsFullAccess)

	require.NoError(t, repos.Enrollments.Revoke(ctx, 1, 7))
	_, err = repos.Enrollments.Find(ctx, 1, 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnrollment_ReplaceDowngrades(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()

	first, second := uint(1), uint(2)
	require.NoError(t, repos.Enrollments.Upsert(ctx, &domain.Enrollment{UserID: 1, CourseID: 7, IsFullAccess: true, PaymentID: &first}))
	require.NoError(t, repos.Enrollments.Replace(ctx, &domain.Enrollment{UserID: 1, CourseID: 7, IsFullAccess: false, PaymentID: &second}))

	got, err := repos.Enrollments.Find(ctx, 1, 7)
	require.NoError(t, err)
	assert.False(t, got.IsFullAccess)
	require.NotNil(t, got.PaymentID)
	assert.Equal(t, second, *got.PaymentID)
}

func TestPayment_FindByIdempotencyKey(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()

	for _, method := range []domain.PaymentMethod{domain.MethodCard, domain.MethodBalance} {
		require.NoError(t, repos.Payments.Create(ctx, &domain.Payment{
			UserID:         1,
			AmountMinor:    1000,
			Currency:       "RUB",
			Method:         method,
			Status:         domain.StatusPending,
			PurposeKind:    domain.PurposePromotion,
			IdempotencyKey: "key-1",
		}))
	}

	got, err := repos.Payments.FindByIdempotencyKey(ctx, "key-1", domain.MethodBalance)
	require.NoError(t, err)
	assert.Equal(t, domain.MethodBalance, got.Method)

	_, err = repos.Payments.FindByIdempotencyKey(ctx, "key-2", domain.MethodBalance)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
