package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/tair/course-payments/internal/payment/domain"
)

// Notification is the provider's webhook body
type Notification struct {
	Type   string             `json:"type"`
	Event  string             `json:"event"`
	Object notificationObject `json:"object"`
}

type notificationObject struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Amount    amount            `json:"amount"`
	PaymentID string            `json:"payment_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ParseNotification decodes a webhook body into a GatewayEvent.
// Refund notifications are keyed by the refunded payment's id.
func ParseNotification(body []byte) (domain.GatewayEvent, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return domain.GatewayEvent{}, fmt.Errorf("%w: malformed notification: %v", domain.ErrValidation, err)
	}

	ev := domain.GatewayEvent{
		Type:       n.Event,
		ExternalID: n.Object.ID,
		Metadata:   n.Object.Metadata,
	}
	if n.Event == domain.EventRefundSucceeded && n.Object.PaymentID != "" {
		ev.ExternalID = n.Object.PaymentID
	}
	if n.Object.Amount.Value != "" {
		minor, err := ParseAmount(n.Object.Amount.Value)
		if err != nil {
			return domain.GatewayEvent{}, err
		}
		ev.AmountMinor = minor
	}

	if ev.Type == "" || ev.ExternalID == "" {
		return domain.GatewayEvent{}, fmt.Errorf("%w: notification without event or object id", domain.ErrValidation)
	}
	return ev, nil
}
