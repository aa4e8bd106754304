package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/metrics"
	"github.com/tair/course-payments/internal/payment/testutil"
)

func TestCreatePayment_GatewayCharge(t *testing.T) {
	h := newHarness(t)
	course := testutil.SeedCourse(t, h.db, 100000, 30000)

	res, err := h.create.Handle(context.Background(), CreatePaymentCommand{
		UserID:         1,
		Purpose:        domain.PurposeCoursePurchase,
		AmountMinor:    100000,
		CourseID:       &course.ID,
		Method:         domain.MethodCard,
		ReceiptContact: "buyer@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, res.Status)
	assert.True(t, res.IsFullAccess)
	assert.NotEmpty(t, res.ConfirmationURL)

	charge := h.gw.LastCharge()
	assert.Equal(t, int64(100000), charge.AmountMinor)
	assert.Equal(t, "RUB", charge.Currency)
	assert.Equal(t, "1", charge.Metadata["user_id"])
	assert.Equal(t, "course_purchase", charge.Metadata["purpose_kind"])
	assert.Equal(t, "true", charge.Metadata["is_full_access"])
	assert.LessOrEqual(t, len(h.gw.ChargeKeys[0]), 64)

	p := h.payment(t, res.PaymentID)
	assert.Equal(t, domain.StatusPending, p.Status)
	assert.Equal(t, int64(0), h.balance(t, 1), "nothing is booked before the gateway confirms")
}

func TestCreatePayment_PartialPaymentIsNotFullAccess(t *testing.T) {
	h := newHarness(t)
	course := testutil.SeedCourse(t, h.db, 100000, 30000)

	cmd := CreatePaymentCommand{
		UserID:         1,
		Purpose:        domain.PurposeCoursePurchase,
		AmountMinor:    50000,
		CourseID:       &course.ID,
		Method:         domain.MethodSBP,
		ReceiptContact: "+79001234567",
	}
	res, err := h.create.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, res.IsFullAccess)

	cmd.UserID = 2
	cmd.FullAccessOverride = true
	res, err = h.create.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, res.IsFullAccess)
}

func TestCreatePayment_RetryReusesCharge(t *testing.T) {
	h := newHarness(t)

	first, _ := h.topup(t, 1, 50000)
	second, _ := h.topup(t, 1, 50000)

	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, h.gw.ChargeKeys[0], h.gw.ChargeKeys[1])

	payments, err := h.repos.Payments.FindByUserID(context.Background(), 1, 10, 0)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestCreatePayment_GatewayUnavailable(t *testing.T) {
	h := newHarness(t)
	h.gw.ChargeErr = errors.New("dial tcp: i/o timeout")

	_, err := h.create.Handle(context.Background(), CreatePaymentCommand{
		UserID:         1,
		Purpose:        domain.PurposeBalanceTopup,
		AmountMinor:    50000,
		Method:         domain.MethodWallet,
		ReceiptContact: "buyer@example.com",
	})
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Contains(t, domain.UserMessage(err, domain.MethodWallet), "Wallet payments")

	payments, err := h.repos.Payments.FindAll(context.Background(), domain.PaymentFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

// A charge the gateway accepted but the database lost must reach an operator
func TestCreatePayment_PersistFailureAfterCharge(t *testing.T) {
	h := newHarness(t)
	reg := prometheus.NewRegistry()
	h.create.metrics = metrics.New(reg)
	h.gw.OnCharge = func(domain.ChargeRequest) {
		require.NoError(t, h.db.Migrator().DropTable(&domain.Payment{}))
	}

	_, err := h.create.Handle(context.Background(), CreatePaymentCommand{
		UserID:         1,
		Purpose:        domain.PurposeBalanceTopup,
		AmountMinor:    50000,
		Method:         domain.MethodCard,
		ReceiptContact: "buyer@example.com",
	})
	require.ErrorIs(t, err, domain.ErrReconciliationRequired)
	assert.Contains(t, err.Error(), "pay_1")
	require.Len(t, h.gw.Charges, 1)

	require.Len(t, h.pub.Events, 1)
	alert := h.pub.Events[0]
	assert.Equal(t, domain.EventTypeReconciliationRequired, alert.Type)
	assert.Equal(t, domain.TopicLedgerAlerts, alert.Topic)
	assert.Equal(t, "payment_persist", alert.Payload["operation"])
	assert.Equal(t, "pay_1", alert.Payload["reference"])
	assert.Equal(t, h.gw.ChargeKeys[0], alert.Payload["idempotency_key"])

	n, err := promtestutil.GatherAndCount(reg, "ledger_reconciliation_required_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreatePayment_Validation(t *testing.T) {
	h := newHarness(t)
	course := testutil.SeedCourse(t, h.db, 100000, 30000)

	tests := map[string]CreatePaymentCommand{
		"no user":          {Purpose: domain.PurposeBalanceTopup, AmountMinor: 1000, Method: domain.MethodCard, ReceiptContact: "a@b.c"},
		"below minimum":    {UserID: 1, Purpose: domain.PurposeBalanceTopup, AmountMinor: 99, Method: domain.MethodCard, ReceiptContact: "a@b.c"},
		"unknown purpose":  {UserID: 1, Purpose: "gift", AmountMinor: 1000, Method: domain.MethodCard, ReceiptContact: "a@b.c"},
		"unknown method":   {UserID: 1, Purpose: domain.PurposeBalanceTopup, AmountMinor: 1000, Method: "cash", ReceiptContact: "a@b.c"},
		"no receipt":       {UserID: 1, Purpose: domain.PurposeBalanceTopup, AmountMinor: 1000, Method: domain.MethodCard},
		"topup by balance": {UserID: 1, Purpose: domain.PurposeBalanceTopup, AmountMinor: 1000, Method: domain.MethodBalance},
		"topup of course":  {UserID: 1, Purpose: domain.PurposeBalanceTopup, AmountMinor: 1000, Method: domain.MethodCard, ReceiptContact: "a@b.c", CourseID: &course.ID},
		"missing course":   {UserID: 1, Purpose: domain.PurposeCoursePurchase, AmountMinor: 1000, Method: domain.MethodCard, ReceiptContact: "a@b.c"},
		"unknown course":   {UserID: 1, Purpose: domain.PurposeFinalModules, AmountMinor: 1000, Method: domain.MethodCard, ReceiptContact: "a@b.c", CourseID: uintPtr(999)},
	}
	for name, cmd := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := h.create.Handle(context.Background(), cmd)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, h.gw.Charges, "invalid requests never reach the gateway")
}

func TestCreatePayment_FromBalance(t *testing.T) {
	h := newHarness(t)
	course := testutil.SeedCourse(t, h.db, 100000, 30000)
	testutil.SeedBalance(t, h.repos, 1, 150000)

	res, err := h.create.Handle(context.Background(), CreatePaymentCommand{
		UserID:      1,
		Purpose:     domain.PurposeCoursePurchase,
		AmountMinor: 100000,
		CourseID:    &course.ID,
		Method:      domain.MethodBalance,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Empty(t, h.gw.Charges)

	assert.Equal(t, int64(50000), h.balance(t, 1))
	testutil.RequireLedgerConsistent(t, h.repos, 1)

	enrollment, err := h.repos.Enrollments.Find(context.Background(), 1, course.ID)
	require.NoError(t, err)
	assert.True(t, enrollment.IsFullAccess)
	assert.Equal(t, []string{domain.EventTypePaymentCompleted}, h.pub.Types())
}

// A repeated balance purchase answers with the first payment and debits once
func TestCreatePayment_FromBalanceRetry(t *testing.T) {
	h := newHarness(t)
	course := testutil.SeedCourse(t, h.db, 100000, 30000)
	testutil.SeedBalance(t, h.repos, 1, 150000)

	cmd := CreatePaymentCommand{
		UserID:      1,
		Purpose:     domain.PurposeCoursePurchase,
		AmountMinor: 100000,
		CourseID:    &course.ID,
		Method:      domain.MethodBalance,
	}
	first, err := h.create.Handle(context.Background(), cmd)
	require.NoError(t, err)
	second, err := h.create.Handle(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, domain.StatusCompleted, second.Status)
	assert.Equal(t, first.IsFullAccess, second.IsFullAccess)

	assert.Equal(t, int64(50000), h.balance(t, 1))
	testutil.RequireLedgerConsistent(t, h.repos, 1)
	payments, err := h.repos.Payments.FindByUserID(context.Background(), 1, 10, 0)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Equal(t, []string{domain.EventTypePaymentCompleted}, h.pub.Types())
}

func TestCreatePayment_FromBalanceInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	course := testutil.SeedCourse(t, h.db, 100000, 30000)
	testutil.SeedBalance(t, h.repos, 1, 40000)

	_, err := h.create.Handle(context.Background(), CreatePaymentCommand{
		UserID:      1,
		Purpose:     domain.PurposeCoursePurchase,
		AmountMinor: 100000,
		CourseID:    &course.ID,
		Method:      domain.MethodBalance,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, int64(40000), h.balance(t, 1))
	payments, err := h.repos.Payments.FindByUserID(context.Background(), 1, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, payments, "the payment row rolls back with the debit")

	_, err = h.repos.Enrollments.Find(context.Background(), 1, course.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreatePayment_PromocodeDiscountDecidesFullAccess(t *testing.T) {
	h := newHarness(t)
	course := testutil.SeedCourse(t, h.db, 100000, 30000)
	_, err := h.newPromo.Handle(context.Background(), CreatePromocodeCommand{
		Code: "HALF", Kind: domain.PromoDiscount, DiscountPercent: 50, MaxActivations: 10,
	})
	require.NoError(t, err)

	res, err := h.create.Handle(context.Background(), CreatePaymentCommand{
		UserID:         1,
		Purpose:        domain.PurposeCoursePurchase,
		AmountMinor:    50000,
		CourseID:       &course.ID,
		Method:         domain.MethodCard,
		ReceiptContact: "buyer@example.com",
		Promocode:      "half",
	})
	require.NoError(t, err)
	assert.True(t, res.IsFullAccess, "the discounted price was paid in full")

	p := h.payment(t, res.PaymentID)
	require.NotNil(t, p.PromocodeID)
	assert.NotEmpty(t, h.gw.LastCharge().Metadata["promocode_id"])
}

func TestChargeIdempotencyKey(t *testing.T) {
	course := uint(7)
	a := ChargeIdempotencyKey(domain.PurposeCoursePurchase, 1, &course, fixedNow, 10*time.Minute)
	b := ChargeIdempotencyKey(domain.PurposeCoursePurchase, 1, &course, fixedNow.Add(time.Minute), 10*time.Minute)
	c := ChargeIdempotencyKey(domain.PurposeCoursePurchase, 2, &course, fixedNow, 10*time.Minute)
	d := ChargeIdempotencyKey(domain.PurposeCoursePurchase, 1, &course, fixedNow.Add(10*time.Minute), 10*time.Minute)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Len(t, a, 64)
}
