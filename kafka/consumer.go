package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/pkg/logger"
)

// GatewayEventHandler applies one relayed gateway notification
type GatewayEventHandler func(ctx context.Context, event domain.GatewayEvent) error

// Consumer relays gateway notifications from Kafka into the same handler
// the webhook uses. Delivery is at-least-once; the handler is idempotent.
type Consumer struct {
	consumer   sarama.ConsumerGroup
	brokers    []string
	groupID    string
	topics     []string
	handler    GatewayEventHandler
	maxRetries int
	backoff    time.Duration
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, groupID string, handler GatewayEventHandler) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	topics := []string{domain.TopicGatewayEvents}
	logger.Logger.Info().
		Strs("brokers", brokers).
		Str("group_id", groupID).
		Strs("topics", topics).
		Msg("Kafka consumer initialized")

	return &Consumer{
		consumer:   group,
		brokers:    brokers,
		groupID:    groupID,
		topics:     topics,
		handler:    handler,
		maxRetries: 3,
		backoff:    time.Second,
	}, nil
}

// Start starts consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	handler := &consumerGroupHandler{consumer: c}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Logger.Info().Msg("Consumer context cancelled, stopping...")
				return
			default:
				if err := c.consumer.Consume(ctx, c.topics, handler); err != nil {
					logger.Logger.Error().Err(err).Msg("Error from consumer")
				}
			}
		}
	}()

	go func() {
		for err := range c.consumer.Errors() {
			logger.Logger.Error().Err(err).Msg("Consumer error")
		}
	}()

	logger.Logger.Info().
		Strs("topics", c.topics).
		Str("group_id", c.groupID).
		Msg("Kafka consumer started")

	return nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	if c.consumer != nil {
		return c.consumer.Close()
	}
	return nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := h.consumer.handleMessage(session.Context(), message); err != nil {
			logger.Logger.Error().
				Err(err).
				Str("topic", message.Topic).
				Int64("offset", message.Offset).
				Msg("Gateway event dropped after retries")
		}
		session.MarkMessage(message, "")
	}
	return nil
}

// handleMessage decodes and applies one message. Transient failures are
// retried with linear backoff; business outcomes are never retried.
func (c *Consumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	carrier := propagation.MapCarrier{}
	eventType := ""
	for _, header := range message.Headers {
		key := string(header.Key)
		switch key {
		case "traceparent", "tracestate":
			carrier[key] = string(header.Value)
		case HeaderEventType:
			eventType = string(header.Value)
		}
	}
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	tracer := otel.Tracer("kafka-consumer")
	ctx, span := tracer.Start(ctx, "kafka.consume.gateway_event",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.source", message.Topic),
			attribute.String("messaging.source_kind", "topic"),
			attribute.Int("messaging.kafka.partition", int(message.Partition)),
			attribute.Int64("messaging.kafka.offset", message.Offset),
		),
	)
	defer span.End()

	ev, err := decodeGatewayEvent(message.Value, eventType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Malformed gateway event")
		logger.Warn(ctx).Err(err).Int64("offset", message.Offset).Msg("Malformed gateway event skipped")
		return nil
	}
	span.SetAttributes(
		attribute.String("event.type", ev.Type),
		attribute.String("gateway.external_id", ev.ExternalID),
	)

	for attempt := 1; ; attempt++ {
		err = c.handler(ctx, ev)
		if err == nil || !retryable(err) {
			break
		}
		if attempt >= c.maxRetries {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to handle gateway event")
			return err
		}

		logger.Warn(ctx).Err(err).
			Str("event_type", ev.Type).
			Str("external_id", ev.ExternalID).
			Int("attempt", attempt).
			Msg("Retrying gateway event")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}

	if err != nil {
		// reconciliation and validation outcomes were already reported by the handler
		span.SetStatus(codes.Error, err.Error())
		return nil
	}
	span.SetStatus(codes.Ok, "Event handled successfully")
	return nil
}

func retryable(err error) bool {
	return !errors.Is(err, domain.ErrReconciliationRequired) &&
		!errors.Is(err, domain.ErrValidation) &&
		!errors.Is(err, domain.ErrAlreadyProcessed)
}
