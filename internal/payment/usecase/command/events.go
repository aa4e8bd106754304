package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/pkg/logger"
)

func newEvent(topic, eventType string, userID uint, key string, payload map[string]interface{}) domain.Event {
	return domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Topic:     topic,
		Key:       key,
		UserID:    userID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// publish sends an event after commit; a publish failure never undoes the commit
func publish(ctx context.Context, publisher domain.EventPublisher, event domain.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn(ctx).Err(err).
			Str("event_type", event.Type).
			Str("topic", event.Topic).
			Msg("Failed to publish event")
	}
}

func paymentEvent(eventType string, p *domain.Payment) domain.Event {
	payload := map[string]interface{}{
		"payment_id":     p.ID,
		"purpose_kind":   p.PurposeKind,
		"amount_minor":   p.AmountMinor,
		"currency":       p.Currency,
		"method":         p.Method,
		"is_full_access": p.IsFullAccess,
	}
	if p.CourseID != nil {
		payload["course_id"] = *p.CourseID
	}
	if p.ExternalPaymentID != nil {
		payload["external_payment_id"] = *p.ExternalPaymentID
	}
	return newEvent(domain.TopicPaymentEvents, eventType, p.UserID, p.ReferenceID(), payload)
}

func withdrawalEvent(eventType string, w *domain.WithdrawalRequest) domain.Event {
	payload := map[string]interface{}{
		"withdrawal_id":     w.ID,
		"amount_minor":      w.AmountMinor,
		"original_amount":   w.OriginalAmount(),
		"commission_amount": w.CommissionAmount(),
		"method":            w.Method,
		"is_instant":        w.IsInstant,
	}
	if w.ErrorMessage != "" {
		payload["error_message"] = w.ErrorMessage
	}
	return newEvent(domain.TopicWithdrawalEvents, eventType, w.UserID, w.ReferenceID(), payload)
}

// reconciliationAlert logs at alert level and publishes to the alerts topic
func reconciliationAlert(ctx context.Context, publisher domain.EventPublisher, userID uint, operation, reference string, cause error) {
	logger.Alert(ctx).Err(cause).
		Uint("user_id", userID).
		Str("operation", operation).
		Str("reference", reference).
		Msg("Ledger reconciliation required")

	publish(ctx, publisher, newEvent(domain.TopicLedgerAlerts, domain.EventTypeReconciliationRequired, userID, reference,
		map[string]interface{}{
			"operation": operation,
			"reference": reference,
			"error":     errString(cause),
		}))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
