package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/gateway"
	"github.com/tair/course-payments/pkg/logger"
)

const maxWebhookBody = 1 << 20

// GatewayWebhook handles POST /api/webhooks/gateway.
// The gateway retries on non-2xx, so only transient failures answer 5xx;
// no-ops, malformed bodies and reconciliation conditions answer 200.
func (h *PaymentHandler) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Failed to read body"})
		return
	}

	ev, err := gateway.ParseNotification(body)
	if err != nil {
		logger.Warn(ctx).Err(err).Msg("Malformed gateway notification dropped")
		respondJSON(w, http.StatusOK, Response{Success: true, Message: "ignored"})
		return
	}

	result, err := h.gatewayEventHandler.Handle(ctx, ev)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, Response{Success: true, Message: result.Outcome, Data: result})
	case errors.Is(err, domain.ErrReconciliationRequired), errors.Is(err, domain.ErrValidation):
		// already alerted; a retry would not change the outcome
		respondJSON(w, http.StatusOK, Response{Success: true, Message: "reconciliation_required"})
	default:
		logger.Error(ctx).Err(err).
			Str("event_type", ev.Type).
			Str("external_id", ev.ExternalID).
			Msg("Gateway notification failed, gateway will retry")
		respondJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Temporary failure"})
	}
}

// HandleGatewayEvent applies a relayed notification; used by the Kafka consumer
func (h *PaymentHandler) HandleGatewayEvent(ctx context.Context, ev domain.GatewayEvent) error {
	_, err := h.gatewayEventHandler.Handle(ctx, ev)
	return err
}
