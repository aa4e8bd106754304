package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tair/course-payments/internal/payment/config"
	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/testutil"
)

var fixedNow = time.Date(2026, 5, 4, 10, 3, 0, 0, time.UTC)

type harness struct {
	repos domain.Repositories
	db    *gorm.DB
	gw    *testutil.FakeGateway
	pub   *testutil.Publisher
	rules config.BusinessConfig

	create      *CreatePaymentHandler
	events      *HandleGatewayEventHandler
	withdrawals *WithdrawalManager
	update      *UpdateStatusHandler
	attach      *AttachReferralHandler
	promos      *PromocodeEvaluator
	newPromo    *CreatePromocodeHandler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repos, db := testutil.NewRepositories(t)
	gw := testutil.NewFakeGateway()
	pub := &testutil.Publisher{}
	rules := config.BusinessConfig{
		Currency:                    "RUB",
		MinPaymentMinor:             100,
		MinWithdrawalMinor:          50000,
		InstantWithdrawalCommission: 3,
		DefaultReferralCommission:   10,
		ChargeKeyWindow:             10 * time.Minute,
	}

	effects := NewPaymentEffects(NewReferralEngine())
	promos := NewPromocodeEvaluator(repos, rules.DefaultReferralCommission)
	promos.now = func() time.Time { return fixedNow }
	withdrawals := NewWithdrawalManager(repos, gw, pub, nil, rules)

	create := NewCreatePaymentHandler(repos, gw, promos, effects, pub, nil, rules)
	create.now = func() time.Time { return fixedNow }

	return &harness{
		repos:       repos,
		db:          db,
		gw:          gw,
		pub:         pub,
		rules:       rules,
		create:      create,
		events:      NewHandleGatewayEventHandler(repos, nil, effects, withdrawals, pub, nil, rules.Currency),
		withdrawals: withdrawals,
		update:      NewUpdateStatusHandler(repos, effects, pub, nil),
		attach:      NewAttachReferralHandler(repos),
		promos:      promos,
		newPromo:    NewCreatePromocodeHandler(repos.Promocodes),
	}
}

func (h *harness) balance(t *testing.T, userID uint) int64 {
	t.Helper()
	bal, err := h.repos.Ledger.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return bal.Balance
}

func (h *harness) entries(t *testing.T, userID uint) []domain.LedgerEntry {
	t.Helper()
	entries, err := h.repos.Ledger.ListEntries(context.Background(), userID, true, 100, 0)
	require.NoError(t, err)
	return entries
}

func (h *harness) payment(t *testing.T, id uint) *domain.Payment {
	t.Helper()
	p, err := h.repos.Payments.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

// topup creates a pending card top-up and returns its external id
func (h *harness) topup(t *testing.T, userID uint, amount int64) (*CreatePaymentResult, string) {
	t.Helper()
	res, err := h.create.Handle(context.Background(), CreatePaymentCommand{
		UserID:         userID,
		Purpose:        domain.PurposeBalanceTopup,
		AmountMinor:    amount,
		Method:         domain.MethodCard,
		ReceiptContact: "buyer@example.com",
	})
	require.NoError(t, err)
	return res, *h.payment(t, res.PaymentID).ExternalPaymentID
}

func (h *harness) succeed(t *testing.T, externalID string, amount int64) *GatewayEventResult {
	t.Helper()
	res, err := h.events.Handle(context.Background(), domain.GatewayEvent{
		Type:        domain.EventPaymentSucceeded,
		ExternalID:  externalID,
		AmountMinor: amount,
	})
	require.NoError(t, err)
	return res
}

func cardDestination() domain.Destination {
	return domain.Destination{CardNumber: "4111111111111111"}
}

func uintPtr(v uint) *uint { return &v }
