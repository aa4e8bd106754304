package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/metrics"
	"github.com/tair/course-payments/pkg/logger"
)

// UpdateStatusCommand represents the command to update payment status
type UpdateStatusCommand struct {
	PaymentID uint
	Status    domain.PaymentStatus
	AdminID   uint
}

// UpdateStatusHandler handles update status command.
// The override goes through the same transition table and the same effects
// as the matching gateway event.
type UpdateStatusHandler struct {
	repos     domain.Repositories
	effects   *PaymentEffects
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewUpdateStatusHandler creates a new update status handler
func NewUpdateStatusHandler(repos domain.Repositories, effects *PaymentEffects, publisher domain.EventPublisher, m *metrics.Metrics) *UpdateStatusHandler {
	return &UpdateStatusHandler{
		repos:     repos,
		effects:   effects,
		publisher: publisher,
		metrics:   m,
		now:       time.Now,
	}
}

// Handle executes the update status command
func (h *UpdateStatusHandler) Handle(ctx context.Context, cmd UpdateStatusCommand) (*domain.Payment, error) {
	if cmd.PaymentID == 0 {
		return nil, domain.Validationf("payment_id is required")
	}
	if !domain.IsValidPaymentStatus(cmd.Status) {
		return nil, domain.Validationf("invalid status: %s", cmd.Status)
	}

	var payment *domain.Payment
	err := h.repos.Tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		p, err := repos.Payments.FindByID(ctx, cmd.PaymentID)
		if err != nil {
			return err
		}
		if err := domain.ValidatePaymentTransition(p.Status, cmd.Status); err != nil {
			return err
		}

		key := fmt.Sprintf("admin:status:%d:%s", p.ID, cmd.Status)
		if err := repos.Idempotency.MarkProcessed(ctx, key, string(cmd.Status)); err != nil {
			return err
		}

		at := h.now()
		if err := repos.Payments.Transition(ctx, p.ID, p.Status, cmd.Status, at); err != nil {
			return err
		}
		p.Status = cmd.Status
		payment = p

		switch cmd.Status {
		case domain.StatusCompleted:
			p.CompletedAt = &at
			return h.effects.Complete(ctx, repos, p)
		case domain.StatusRefunded:
			return h.effects.Refund(ctx, repos, p)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrReconciliationRequired) {
			h.metrics.ReconciliationRequired("admin_status")
		}
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}

	logger.Warn(ctx).
		Uint("payment_id", payment.ID).
		Uint("admin_id", cmd.AdminID).
		Str("status", string(payment.Status)).
		Msg("Payment status overridden by administrator")

	switch payment.Status {
	case domain.StatusCompleted:
		publish(ctx, h.publisher, paymentEvent(domain.EventTypePaymentCompleted, payment))
	case domain.StatusFailed:
		publish(ctx, h.publisher, paymentEvent(domain.EventTypePaymentFailed, payment))
	case domain.StatusRefunded:
		publish(ctx, h.publisher, paymentEvent(domain.EventTypePaymentRefunded, payment))
	}
	return payment, nil
}
