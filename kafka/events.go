package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tair/course-payments/internal/payment/domain"
)

// Header keys set on every message
const (
	HeaderEventType = "event_type"
	HeaderEventID   = "event_id"
)

// envelope is the wire form of a published domain event
type envelope struct {
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	UserID    uint                   `json:"user_id"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

func encodeEvent(event domain.Event) ([]byte, error) {
	return json.Marshal(envelope{
		EventID:   event.ID,
		EventType: event.Type,
		UserID:    event.UserID,
		Payload:   event.Payload,
		Timestamp: event.Timestamp,
	})
}

// decodeGatewayEvent reads a relayed gateway notification.
// The event type header wins over the body when both are present.
func decodeGatewayEvent(value []byte, headerType string) (domain.GatewayEvent, error) {
	var ev domain.GatewayEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return domain.GatewayEvent{}, fmt.Errorf("%w: malformed gateway event: %v", domain.ErrValidation, err)
	}
	if headerType != "" {
		ev.Type = headerType
	}
	if ev.Type == "" || ev.ExternalID == "" {
		return domain.GatewayEvent{}, fmt.Errorf("%w: gateway event without type or external id", domain.ErrValidation)
	}
	return ev, nil
}
