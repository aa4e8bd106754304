package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/testutil"
)

func instantWithdrawal(userID uint, amount int64) CreateWithdrawalCommand {
	return CreateWithdrawalCommand{
		UserID:      userID,
		AmountMinor: amount,
		Method:      domain.WithdrawalCard,
		Destination: cardDestination(),
		IsInstant:   true,
	}
}

// A declined instant payout returns the whole reservation, commission included
func TestWithdrawal_InstantPayoutFailureRestoresBalance(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBalance(t, h.repos, 1, 100000)
	h.gw.PayoutErr = errors.New("destination card blocked")

	req, err := h.withdrawals.Create(context.Background(), instantWithdrawal(1, 100000))
	require.ErrorIs(t, err, domain.ErrPayoutFailed)
	require.NotNil(t, req)

	assert.Equal(t, domain.WithdrawalFailed, req.Status)
	assert.Equal(t, int64(97000), req.AmountMinor)
	assert.Equal(t, int64(100000), req.OriginalAmount())
	assert.Equal(t, int64(3000), req.CommissionAmount())

	require.Len(t, h.gw.Payouts, 1)
	assert.Equal(t, int64(97000), h.gw.Payouts[0].AmountMinor)

	assert.Equal(t, int64(100000), h.balance(t, 1))
	testutil.RequireLedgerConsistent(t, h.repos, 1)

	stored, err := h.repos.Withdrawals.FindByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "destination card blocked")
	assert.NotNil(t, stored.FailedAt)

	var withdrawn, refunded int64
	for _, e := range h.entries(t, 1) {
		switch e.Type {
		case domain.EntryWithdrawn, domain.EntrySpent:
			withdrawn += e.AmountMinor
		case domain.EntryRefund:
			refunded += e.AmountMinor
		}
	}
	assert.Equal(t, int64(100000), withdrawn)
	assert.Equal(t, int64(100000), refunded)

	bal, err := h.repos.Ledger.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.TotalWithdrawn)
	assert.Equal(t, []string{domain.EventTypeWithdrawalFailed}, h.pub.Types())
}

func TestWithdrawal_InstantPayoutSucceeds(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBalance(t, h.repos, 1, 150000)

	req, err := h.withdrawals.Create(context.Background(), instantWithdrawal(1, 100000))
	require.NoError(t, err)

	assert.Equal(t, domain.WithdrawalCompleted, req.Status)
	require.NotNil(t, req.ExternalPayoutID)
	assert.Equal(t, "withdrawal-"+req.ReferenceID(), h.gw.PayoutKeys[0])
	assert.Equal(t, req.ReferenceID(), h.gw.Payouts[0].Metadata["withdrawal_id"])

	assert.Equal(t, int64(50000), h.balance(t, 1))
	testutil.RequireLedgerConsistent(t, h.repos, 1)

	bal, err := h.repos.Ledger.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(97000), bal.TotalWithdrawn)
}

func TestWithdrawal_InsufficientFunds(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBalance(t, h.repos, 1, 60000)

	_, err := h.withdrawals.Create(context.Background(), instantWithdrawal(1, 70000))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, int64(60000), h.balance(t, 1))
	assert.Empty(t, h.gw.Payouts)

	reqs, err := h.repos.Withdrawals.FindByUserID(context.Background(), 1, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, reqs, "the request rolls back with the failed reservation")
}

func TestWithdrawal_Validation(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBalance(t, h.repos, 1, 1000000)

	tests := map[string]CreateWithdrawalCommand{
		"below minimum":          {UserID: 1, AmountMinor: 49999, Method: domain.WithdrawalCard, Destination: cardDestination()},
		"below after commission": instantWithdrawal(1, 51000),
		"bad destination":        {UserID: 1, AmountMinor: 60000, Method: domain.WithdrawalSBP, Destination: domain.Destination{Phone: "123"}},
		"long key":               {UserID: 1, AmountMinor: 60000, Method: domain.WithdrawalCard, Destination: cardDestination(), IdempotencyKey: strings.Repeat("k", 65)},
	}
	for name, cmd := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := h.withdrawals.Create(context.Background(), cmd)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Equal(t, int64(1000000), h.balance(t, 1))
}

func TestWithdrawal_IdempotencyKey(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBalance(t, h.repos, 1, 200000)

	cmd := CreateWithdrawalCommand{
		UserID:         1,
		AmountMinor:    60000,
		Method:         domain.WithdrawalEWallet,
		Destination:    domain.Destination{WalletID: "41001"},
		IdempotencyKey: "client-retry-1",
	}
	first, err := h.withdrawals.Create(context.Background(), cmd)
	require.NoError(t, err)
	second, err := h.withdrawals.Create(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.WithdrawalPending, second.Status)
	assert.Equal(t, int64(140000), h.balance(t, 1))
}

func TestWithdrawal_ProcessAndReject(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBalance(t, h.repos, 1, 200000)
	ctx := context.Background()

	cmd := CreateWithdrawalCommand{UserID: 1, AmountMinor: 60000, Method: domain.WithdrawalCard, Destination: cardDestination()}
	a, err := h.withdrawals.Create(ctx, cmd)
	require.NoError(t, err)
	b, err := h.withdrawals.Create(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, int64(80000), h.balance(t, 1))
	assert.Empty(t, h.gw.Payouts, "standard requests wait for an administrator")

	done, err := h.withdrawals.Process(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalCompleted, done.Status)

	rejected, err := h.withdrawals.Reject(ctx, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalFailed, rejected.Status)
	assert.Equal(t, "rejected by administrator", rejected.ErrorMessage)
	assert.Equal(t, int64(140000), h.balance(t, 1))

	_, err = h.withdrawals.Process(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.withdrawals.Reject(ctx, a.ID, "late")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.Equal(t, int64(140000), h.balance(t, 1))
	testutil.RequireLedgerConsistent(t, h.repos, 1)
}

func TestWithdrawal_PendingPayoutCompletedByWebhook(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBalance(t, h.repos, 1, 100000)
	h.gw.PayoutStatus = domain.PayoutPending

	req, err := h.withdrawals.Create(context.Background(), instantWithdrawal(1, 100000))
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalProcessing, req.Status)
	require.NotNil(t, req.ExternalPayoutID)

	ev := domain.GatewayEvent{Type: domain.EventPayoutSucceeded, ExternalID: *req.ExternalPayoutID}
	out, err := h.events.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out.Outcome)
	assert.Equal(t, string(domain.WithdrawalCompleted), out.Status)

	out, err = h.events.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out.Outcome)

	assert.Equal(t, int64(0), h.balance(t, 1))
	assert.Equal(t, []string{domain.EventTypeWithdrawalCompleted}, h.pub.Types())
}

func TestWithdrawal_PayoutCanceledByWebhook(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBalance(t, h.repos, 1, 100000)
	h.gw.PayoutStatus = domain.PayoutPending

	req, err := h.withdrawals.Create(context.Background(), instantWithdrawal(1, 100000))
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.balance(t, 1))

	ev := domain.GatewayEvent{
		Type:       domain.EventPayoutCanceled,
		ExternalID: *req.ExternalPayoutID,
		Metadata:   map[string]string{"reason": "insufficient_funds_on_shop"},
	}
	out, err := h.events.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out.Outcome)

	_, err = h.events.Handle(context.Background(), ev)
	require.NoError(t, err)

	stored, err := h.repos.Withdrawals.FindByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalFailed, stored.Status)
	assert.Equal(t, "insufficient_funds_on_shop", stored.ErrorMessage)

	assert.Equal(t, int64(100000), h.balance(t, 1))
	testutil.RequireLedgerConsistent(t, h.repos, 1)

	// success after cancellation cannot be applied automatically
	_, err = h.events.Handle(context.Background(), domain.GatewayEvent{Type: domain.EventPayoutSucceeded, ExternalID: *req.ExternalPayoutID})
	assert.ErrorIs(t, err, domain.ErrReconciliationRequired)
}

func TestWithdrawal_WebhookBeforePayoutIDStored(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBalance(t, h.repos, 1, 100000)

	req, err := h.withdrawals.Create(context.Background(), CreateWithdrawalCommand{
		UserID: 1, AmountMinor: 60000, Method: domain.WithdrawalCard, Destination: cardDestination(),
	})
	require.NoError(t, err)
	require.NoError(t, h.repos.Withdrawals.Transition(context.Background(), req.ID, domain.WithdrawalPending, domain.WithdrawalProcessing,
		domain.WithdrawalUpdate{At: fixedNow}))

	out, err := h.events.Handle(context.Background(), domain.GatewayEvent{
		Type:       domain.EventPayoutSucceeded,
		ExternalID: "po_early",
		Metadata:   map[string]string{"withdrawal_id": req.ReferenceID()},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out.Outcome)

	stored, err := h.repos.Withdrawals.FindByExternalPayoutID(context.Background(), "po_early")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalCompleted, stored.Status)
}

// A failed compensation leaves the reservation in place and alerts an operator
func TestWithdrawal_CompensationFailureRaisesAlert(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBalance(t, h.repos, 1, 100000)
	h.gw.PayoutErr = errors.New("destination card blocked")
	h.gw.OnPayout = func(domain.PayoutRequest) {
		require.NoError(t, h.db.Migrator().DropTable(&domain.LedgerEntry{}))
	}

	req, err := h.withdrawals.Create(context.Background(), instantWithdrawal(1, 100000))
	require.ErrorIs(t, err, domain.ErrReconciliationRequired)
	require.NotNil(t, req)

	stored, err := h.repos.Withdrawals.FindByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalProcessing, stored.Status, "the failed compensation rolls back as a whole")
	assert.Equal(t, int64(0), h.balance(t, 1))

	require.Equal(t, []string{domain.EventTypeReconciliationRequired}, h.pub.Types())
	alert := h.pub.Events[0]
	assert.Equal(t, domain.TopicLedgerAlerts, alert.Topic)
	assert.Equal(t, "withdrawal_compensation", alert.Payload["operation"])
	assert.Equal(t, req.ReferenceID(), alert.Payload["reference"])
}

// A timed out payout may exist at the gateway, so nothing is returned yet
func TestWithdrawal_PayoutTimeoutKeepsReservation(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBalance(t, h.repos, 1, 100000)
	h.gw.PayoutErr = fmt.Errorf("%w: request failed: context deadline exceeded", domain.ErrGatewayUnavailable)

	req, err := h.withdrawals.Create(context.Background(), instantWithdrawal(1, 100000))
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalProcessing, req.Status)
	assert.Nil(t, req.ExternalPayoutID)
	assert.Equal(t, int64(0), h.balance(t, 1))
	assert.Empty(t, h.pub.Types())

	out, err := h.events.Handle(context.Background(), domain.GatewayEvent{
		Type:       domain.EventPayoutSucceeded,
		ExternalID: "po_late",
		Metadata:   map[string]string{"withdrawal_id": req.ReferenceID()},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out.Outcome)

	stored, err := h.repos.Withdrawals.FindByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalCompleted, stored.Status)
	assert.Equal(t, int64(0), h.balance(t, 1))
	testutil.RequireLedgerConsistent(t, h.repos, 1)
}

func TestWithdrawal_ProcessRetriesUnconfirmedPayout(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBalance(t, h.repos, 1, 100000)
	h.gw.PayoutErr = context.DeadlineExceeded

	req, err := h.withdrawals.Create(context.Background(), instantWithdrawal(1, 100000))
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalProcessing, req.Status)

	h.gw.PayoutErr = nil
	done, err := h.withdrawals.Process(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalCompleted, done.Status)

	require.Len(t, h.gw.PayoutKeys, 2)
	assert.Equal(t, h.gw.PayoutKeys[0], h.gw.PayoutKeys[1], "the retry reuses the gateway idempotency key")

	// a settled request is not paid out again
	_, err = h.withdrawals.Process(context.Background(), req.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Len(t, h.gw.Payouts, 2)
}

// The cancellation webhook can compensate before the synchronous error returns
func TestWithdrawal_PayoutErrorAfterCancellationWebhook(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBalance(t, h.repos, 1, 100000)
	h.gw.PayoutErr = errors.New("payout canceled: insufficient_funds")
	h.gw.OnPayout = func(req domain.PayoutRequest) {
		_, err := h.events.Handle(context.Background(), domain.GatewayEvent{
			Type:       domain.EventPayoutCanceled,
			ExternalID: "po_fast",
			Metadata:   map[string]string{"withdrawal_id": req.Metadata["withdrawal_id"], "reason": "insufficient_funds"},
		})
		require.NoError(t, err)
	}

	req, err := h.withdrawals.Create(context.Background(), instantWithdrawal(1, 100000))
	require.ErrorIs(t, err, domain.ErrPayoutFailed)
	assert.NotErrorIs(t, err, domain.ErrReconciliationRequired)
	assert.Equal(t, domain.WithdrawalFailed, req.Status)

	assert.Equal(t, int64(100000), h.balance(t, 1))
	testutil.RequireLedgerConsistent(t, h.repos, 1)
	assert.Equal(t, []string{domain.EventTypeWithdrawalFailed}, h.pub.Types(), "compensated and announced once")
}

// An open circuit never reached the gateway, so the reservation goes back
func TestWithdrawal_CircuitOpenIsCompensated(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBalance(t, h.repos, 1, 100000)
	h.gw.PayoutErr = domain.ErrCircuitOpen

	req, err := h.withdrawals.Create(context.Background(), instantWithdrawal(1, 100000))
	require.ErrorIs(t, err, domain.ErrPayoutFailed)
	assert.Equal(t, domain.WithdrawalFailed, req.Status)
	assert.Equal(t, int64(100000), h.balance(t, 1))
	testutil.RequireLedgerConsistent(t, h.repos, 1)
}
