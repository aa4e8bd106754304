package domain

import "context"

// ChargeRequest asks the gateway to charge a user
type ChargeRequest struct {
	AmountMinor    int64
	Currency       string
	Description    string
	Method         PaymentMethod
	ReceiptContact string
	ReturnURL      string
	Metadata       map[string]string
}

// ChargeResult is the gateway's answer to a charge
type ChargeResult struct {
	ExternalID      string
	ConfirmationURL string
}

// PayoutStatus as reported by the gateway
type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutSucceeded PayoutStatus = "succeeded"
	PayoutCanceled  PayoutStatus = "canceled"
)

// PayoutRequest asks the gateway to send money out
type PayoutRequest struct {
	AmountMinor int64
	Currency    string
	Method      WithdrawalMethod
	Destination Destination
	Description string
	Metadata    map[string]string
}

// PayoutResult is the gateway's answer to a payout
type PayoutResult struct {
	ExternalID string
	Status     PayoutStatus
	Reason     string
}

// Gateway is the outbound payment provider adapter.
// Both calls take an idempotency key; the provider may call the webhook
// zero or more times for the same event.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest, idempotencyKey string) (*ChargeResult, error)
	CreatePayout(ctx context.Context, req PayoutRequest, idempotencyKey string) (*PayoutResult, error)
}

// Gateway notification types
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentCanceled  = "payment.canceled"
	EventRefundSucceeded  = "refund.succeeded"
	EventPayoutSucceeded  = "payout.succeeded"
	EventPayoutCanceled   = "payout.canceled"
)

// GatewayEvent is an asynchronous notification from the gateway
type GatewayEvent struct {
	Type        string            `json:"event_type"`
	ExternalID  string            `json:"external_id"`
	AmountMinor int64             `json:"amount_minor"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// OperationKey is the idempotency key of the event
func (e GatewayEvent) OperationKey() string {
	return "gateway:" + e.Type + ":" + e.ExternalID
}

// IsPayoutEvent reports whether the event concerns a withdrawal payout
func (e GatewayEvent) IsPayoutEvent() bool {
	return e.Type == EventPayoutSucceeded || e.Type == EventPayoutCanceled
}
