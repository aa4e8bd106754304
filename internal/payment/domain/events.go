package domain

import (
	"context"
	"time"
)

// Topics
const (
	TopicPaymentEvents    = "payment-events"
	TopicWithdrawalEvents = "withdrawal-events"
	TopicLedgerAlerts     = "ledger-alerts"
	TopicGatewayEvents    = "payment-gateway-events"
)

// Event types
const (
	EventTypePaymentCompleted       = "payment.completed"
	EventTypePaymentFailed          = "payment.failed"
	EventTypePaymentRefunded        = "payment.refunded"
	EventTypeWithdrawalCompleted    = "withdrawal.completed"
	EventTypeWithdrawalFailed       = "withdrawal.failed"
	EventTypeReconciliationRequired = "ledger.reconciliation_required"
)

// Event is a domain event published after a committed change
type Event struct {
	ID        string                 `json:"event_id"`
	Type      string                 `json:"event_type"`
	Topic     string                 `json:"-"`
	Key       string                 `json:"-"`
	UserID    uint                   `json:"user_id"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventPublisher publishes domain events; delivery is best-effort
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops events; used when Kafka is not configured
type NopPublisher struct{}

// Publish implements EventPublisher
func (NopPublisher) Publish(context.Context, Event) error { return nil }
