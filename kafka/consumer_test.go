package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/course-payments/internal/payment/domain"
)

func newTestConsumer(handler GatewayEventHandler) *Consumer {
	return &Consumer{
		topics:     []string{domain.TopicGatewayEvents},
		handler:    handler,
		maxRetries: 3,
		backoff:    time.Millisecond,
	}
}

func gatewayMessage(value string, headers ...*sarama.RecordHeader) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic:   domain.TopicGatewayEvents,
		Value:   []byte(value),
		Headers: headers,
		Offset:  12,
	}
}

func TestDecodeGatewayEvent(t *testing.T) {
	ev, err := decodeGatewayEvent([]byte(`{"event_type":"payment.succeeded","external_id":"pay_1","amount_minor":50000}`), "")
	require.NoError(t, err)
	assert.Equal(t, domain.GatewayEvent{Type: domain.EventPaymentSucceeded, ExternalID: "pay_1", AmountMinor: 50000}, ev)

	ev, err = decodeGatewayEvent([]byte(`{"event_type":"payment.succeeded","external_id":"pay_1"}`), domain.EventPaymentCanceled)
	require.NoError(t, err)
	assert.Equal(t, domain.EventPaymentCanceled, ev.Type)

	_, err = decodeGatewayEvent([]byte(`{`), "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = decodeGatewayEvent([]byte(`{"event_type":"payment.succeeded"}`), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestHandleMessage_Delivers(t *testing.T) {
	var got []domain.GatewayEvent
	c := newTestConsumer(func(_ context.Context, ev domain.GatewayEvent) error {
		got = append(got, ev)
		return nil
	})

	msg := gatewayMessage(`{"external_id":"pay_9","amount_minor":100}`,
		&sarama.RecordHeader{Key: []byte(HeaderEventType), Value: []byte(domain.EventRefundSucceeded)})
	require.NoError(t, c.handleMessage(context.Background(), msg))

	require.Len(t, got, 1)
	assert.Equal(t, domain.EventRefundSucceeded, got[0].Type)
	assert.Equal(t, "pay_9", got[0].ExternalID)
}

func TestHandleMessage_MalformedIsSkipped(t *testing.T) {
	calls := 0
	c := newTestConsumer(func(context.Context, domain.GatewayEvent) error {
		calls++
		return nil
	})

	assert.NoError(t, c.handleMessage(context.Background(), gatewayMessage(`not json`)))
	assert.Zero(t, calls)
}

func TestHandleMessage_RetriesTransientErrors(t *testing.T) {
	calls := 0
	c := newTestConsumer(func(context.Context, domain.GatewayEvent) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})

	require.NoError(t, c.handleMessage(context.Background(), gatewayMessage(`{"event_type":"payment.succeeded","external_id":"pay_1"}`)))
	assert.Equal(t, 3, calls)
}

func TestHandleMessage_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	transient := errors.New("connection reset")
	c := newTestConsumer(func(context.Context, domain.GatewayEvent) error {
		calls++
		return transient
	})

	err := c.handleMessage(context.Background(), gatewayMessage(`{"event_type":"payment.succeeded","external_id":"pay_1"}`))
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
}

func TestHandleMessage_BusinessOutcomesAreNotRetried(t *testing.T) {
	for _, outcome := range []error{
		fmt.Errorf("%w: amount mismatch", domain.ErrReconciliationRequired),
		domain.Validationf("unknown event"),
		domain.ErrAlreadyProcessed,
	} {
		calls := 0
		c := newTestConsumer(func(context.Context, domain.GatewayEvent) error {
			calls++
			return outcome
		})

		assert.NoError(t, c.handleMessage(context.Background(), gatewayMessage(`{"event_type":"payment.succeeded","external_id":"pay_1"}`)))
		assert.Equal(t, 1, calls, outcome.Error())
	}
}

func TestHandleMessage_StopsOnCancel(t *testing.T) {
	c := newTestConsumer(func(context.Context, domain.GatewayEvent) error {
		return errors.New("connection refused")
	})
	c.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.handleMessage(ctx, gatewayMessage(`{"event_type":"payment.succeeded","external_id":"pay_1"}`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("timeout")))
	assert.False(t, retryable(domain.ErrReconciliationRequired))
	assert.False(t, retryable(domain.Validationf("bad")))
	assert.False(t, retryable(fmt.Errorf("wrap: %w", domain.ErrAlreadyProcessed)))
}
