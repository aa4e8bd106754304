package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/metrics"
	"github.com/tair/course-payments/pkg/logger"
)

// Gateway event outcomes
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
)

// GatewayEventResult reports what handling an event did
type GatewayEventResult struct {
	Outcome string `json:"outcome"`
	Status  string `json:"status,omitempty"`
}

// HandleGatewayEventHandler reconciles gateway notifications with payments.
// Every event is guarded by the key gateway:<event>:<external id>, marked in
// the same transaction as its effects.
type HandleGatewayEventHandler struct {
	repos     domain.Repositories
	guard     domain.IdempotencyGuard
	effects   *PaymentEffects
	payouts   *WithdrawalManager
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	currency  string
	now       func() time.Time
}

// NewHandleGatewayEventHandler creates a new gateway event handler.
// guard is the fast-path cache in front of the durable key table.
func NewHandleGatewayEventHandler(
	repos domain.Repositories,
	guard domain.IdempotencyGuard,
	effects *PaymentEffects,
	payouts *WithdrawalManager,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
	currency string,
) *HandleGatewayEventHandler {
	if guard == nil {
		guard = repos.Idempotency
	}
	return &HandleGatewayEventHandler{
		repos:     repos,
		guard:     guard,
		effects:   effects,
		payouts:   payouts,
		publisher: publisher,
		metrics:   m,
		currency:  currency,
		now:       time.Now,
	}
}

// Handle executes the gateway event.
// ErrAlreadyProcessed never escapes: a duplicate is a successful no-op.
func (h *HandleGatewayEventHandler) Handle(ctx context.Context, ev domain.GatewayEvent) (*GatewayEventResult, error) {
	if ev.ExternalID == "" {
		return nil, domain.Validationf("external_id is required")
	}
	switch ev.Type {
	case domain.EventPaymentSucceeded, domain.EventPaymentCanceled, domain.EventRefundSucceeded,
		domain.EventPayoutSucceeded, domain.EventPayoutCanceled:
	default:
		h.metrics.GatewayEvent(ev.Type, OutcomeIgnored)
		logger.Warn(ctx).Str("event_type", ev.Type).Str("external_id", ev.ExternalID).Msg("Unsupported gateway event ignored")
		return &GatewayEventResult{Outcome: OutcomeIgnored}, nil
	}

	key := ev.OperationKey()
	if done, err := h.guard.IsProcessed(ctx, key); err == nil && done {
		h.metrics.GatewayEvent(ev.Type, OutcomeDuplicate)
		return &GatewayEventResult{Outcome: OutcomeDuplicate}, nil
	}

	if ev.IsPayoutEvent() {
		res, err := h.payouts.HandlePayoutEvent(ctx, ev)
		if err == nil {
			_ = h.guard.MarkProcessed(ctx, key, ev.Type)
		}
		return res, err
	}

	var (
		payment *domain.Payment
		outcome = OutcomeIgnored
	)
	err := h.repos.Tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Idempotency.MarkProcessed(ctx, key, ev.Type); err != nil {
			return err
		}

		p, err := h.loadPayment(ctx, repos, ev)
		if err != nil {
			return err
		}
		payment = p

		switch ev.Type {
		case domain.EventPaymentSucceeded:
			outcome, err = h.onSucceeded(ctx, repos, p, ev)
		case domain.EventPaymentCanceled:
			outcome, err = h.onCanceled(ctx, repos, p)
		case domain.EventRefundSucceeded:
			outcome, err = h.onRefunded(ctx, repos, p)
		}
		return err
	})

	switch {
	case errors.Is(err, domain.ErrAlreadyProcessed):
		_ = h.guard.MarkProcessed(ctx, key, ev.Type)
		h.metrics.GatewayEvent(ev.Type, OutcomeDuplicate)
		return &GatewayEventResult{Outcome: OutcomeDuplicate}, nil
	case errors.Is(err, domain.ErrReconciliationRequired):
		h.metrics.GatewayEvent(ev.Type, "reconciliation_required")
		h.metrics.ReconciliationRequired(ev.Type)
		userID := uint(0)
		if payment != nil {
			userID = payment.UserID
		}
		reconciliationAlert(ctx, h.publisher, userID, ev.Type, ev.ExternalID, err)
		return nil, err
	case err != nil:
		h.metrics.GatewayEvent(ev.Type, "error")
		logger.Error(ctx).Err(err).
			Str("event_type", ev.Type).
			Str("external_id", ev.ExternalID).
			Msg("Failed to handle gateway event")
		return nil, err
	}

	_ = h.guard.MarkProcessed(ctx, key, ev.Type)
	h.metrics.GatewayEvent(ev.Type, outcome)
	logger.Info(ctx).
		Str("event_type", ev.Type).
		Str("external_id", ev.ExternalID).
		Uint("payment_id", payment.ID).
		Str("status", string(payment.Status)).
		Str("outcome", outcome).
		Msg("Gateway event handled")

	if outcome == OutcomeApplied {
		switch payment.Status {
		case domain.StatusCompleted:
			publish(ctx, h.publisher, paymentEvent(domain.EventTypePaymentCompleted, payment))
		case domain.StatusFailed:
			publish(ctx, h.publisher, paymentEvent(domain.EventTypePaymentFailed, payment))
		case domain.StatusRefunded:
			publish(ctx, h.publisher, paymentEvent(domain.EventTypePaymentRefunded, payment))
		}
	}
	return &GatewayEventResult{Outcome: outcome, Status: string(payment.Status)}, nil
}

func (h *HandleGatewayEventHandler) onSucceeded(ctx context.Context, repos domain.Repositories, p *domain.Payment, ev domain.GatewayEvent) (string, error) {
	switch p.Status {
	case domain.StatusCompleted, domain.StatusRefunded:
		return OutcomeIgnored, nil
	case domain.StatusFailed:
		return "", fmt.Errorf("%w: gateway reports payment %d succeeded but it is failed", domain.ErrReconciliationRequired, p.ID)
	}
	if ev.AmountMinor != 0 && ev.AmountMinor != p.AmountMinor {
		return "", fmt.Errorf("%w: payment %d amount %d, gateway reports %d",
			domain.ErrReconciliationRequired, p.ID, p.AmountMinor, ev.AmountMinor)
	}

	at := h.now()
	if err := repos.Payments.Transition(ctx, p.ID, domain.StatusPending, domain.StatusCompleted, at); err != nil {
		return "", err
	}
	p.Status = domain.StatusCompleted
	p.CompletedAt = &at

	if err := h.effects.Complete(ctx, repos, p); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

func (h *HandleGatewayEventHandler) onCanceled(ctx context.Context, repos domain.Repositories, p *domain.Payment) (string, error) {
	if p.Status != domain.StatusPending {
		logger.Warn(ctx).
			Uint("payment_id", p.ID).
			Str("status", string(p.Status)).
			Msg("Cancellation for a payment that is not pending ignored")
		return OutcomeIgnored, nil
	}
	if err := repos.Payments.Transition(ctx, p.ID, domain.StatusPending, domain.StatusFailed, h.now()); err != nil {
		return "", err
	}
	p.Status = domain.StatusFailed
	return OutcomeApplied, nil
}

func (h *HandleGatewayEventHandler) onRefunded(ctx context.Context, repos domain.Repositories, p *domain.Payment) (string, error) {
	switch p.Status {
	case domain.StatusRefunded:
		return OutcomeIgnored, nil
	case domain.StatusPending, domain.StatusFailed:
		return "", fmt.Errorf("%w: refund for payment %d in status %s", domain.ErrReconciliationRequired, p.ID, p.Status)
	}

	if err := repos.Payments.Transition(ctx, p.ID, domain.StatusCompleted, domain.StatusRefunded, h.now()); err != nil {
		return "", err
	}
	p.Status = domain.StatusRefunded

	if err := h.effects.Refund(ctx, repos, p); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

// loadPayment finds the payment of the event. A succeeded charge whose row was
// never persisted is rebuilt from the charge metadata.
func (h *HandleGatewayEventHandler) loadPayment(ctx context.Context, repos domain.Repositories, ev domain.GatewayEvent) (*domain.Payment, error) {
	p, err := repos.Payments.FindByExternalID(ctx, ev.ExternalID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if ev.Type != domain.EventPaymentSucceeded {
		return nil, fmt.Errorf("%w: %s for unknown payment %s", domain.ErrReconciliationRequired, ev.Type, ev.ExternalID)
	}
	p, buildErr := paymentFromMetadata(ev, h.currency)
	if buildErr != nil {
		return nil, fmt.Errorf("%w: unknown payment %s: %v", domain.ErrReconciliationRequired, ev.ExternalID, buildErr)
	}
	if err := repos.Payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to rebuild payment %s: %w", ev.ExternalID, err)
	}

	logger.Warn(ctx).
		Uint("payment_id", p.ID).
		Str("external_payment_id", ev.ExternalID).
		Msg("Payment rebuilt from gateway metadata")
	return p, nil
}

func paymentFromMetadata(ev domain.GatewayEvent, currency string) (*domain.Payment, error) {
	md := ev.Metadata
	if md == nil {
		return nil, errors.New("no metadata")
	}

	userID, err := strconv.ParseUint(md[metaUserID], 10, 64)
	if err != nil || userID == 0 {
		return nil, errors.New("metadata has no user_id")
	}
	purpose := domain.PurposeKind(md[metaPurpose])
	if !domain.IsValidPurpose(purpose) {
		return nil, fmt.Errorf("metadata purpose %q is invalid", purpose)
	}
	amount, err := strconv.ParseInt(md[metaAmount], 10, 64)
	if err != nil || amount <= 0 {
		amount = ev.AmountMinor
	}
	if amount <= 0 {
		return nil, errors.New("metadata has no amount")
	}
	method := domain.PaymentMethod(md[metaMethod])
	if !domain.IsValidPaymentMethod(method) || method == domain.MethodBalance {
		method = domain.MethodCard
	}

	externalID := ev.ExternalID
	p := &domain.Payment{
		UserID:            uint(userID),
		AmountMinor:       amount,
		Currency:          currency,
		Method:            method,
		Status:            domain.StatusPending,
		PurposeKind:       purpose,
		ExternalPaymentID: &externalID,
		IdempotencyKey:    md[metaIdempotency],
		Metadata:          datatypes.JSONMap{"rebuilt_from_webhook": true},
	}
	p.IsFullAccess, _ = strconv.ParseBool(md[metaFullAccess])

	if v, ok := md[metaCourseID]; ok {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("metadata course_id %q is invalid", v)
		}
		courseID := uint(id)
		p.CourseID = &courseID
	}
	if p.PurposeKind.RequiresCourse() && p.CourseID == nil {
		return nil, errors.New("metadata has no course_id")
	}
	if v, ok := md[metaPromocodeID]; ok {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			promoID := uint(id)
			p.PromocodeID = &promoID
		}
	}
	return p, nil
}
