// Package messaging carries storefront events over Kafka. Trace context
// travels in message headers so consumers continue the producer's trace.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/storefront/internal/domain"
)

// EventTypeHeader names the message header holding the event type.
const EventTypeHeader = "event-type"

const EventOrderCreated = "order.created"

var producerTracer = otel.Tracer("storefront/messaging/producer")

// Producer announces committed orders. Each order is keyed by its order
// number, so every event about one order lands on one partition.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
	}
}

func (p *Producer) PublishOrderCreated(ctx context.Context, event domain.OrderCreatedEvent) error {
	msg, err := orderCreatedMessage(event)
	if err != nil {
		return err
	}

	ctx, span := producerTracer.Start(ctx, "send "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("send"),
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingKafkaMessageKey(event.OrderNumber),
			attribute.String("order.number", event.OrderNumber),
			attribute.Int64("order.total_amount", event.TotalAmount),
		),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, NewMessageCarrier(&msg))

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("write order %s to %s: %w", event.OrderNumber, p.topic, err)
	}

	return nil
}

func orderCreatedMessage(event domain.OrderCreatedEvent) (kafka.Message, error) {
	if event.OrderNumber == "" {
		return kafka.Message{}, fmt.Errorf("order created event without order number")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal order %s: %w", event.OrderNumber, err)
	}

	return kafka.Message{
		Key:     []byte(event.OrderNumber),
		Value:   data,
		Headers: []kafka.Header{{Key: EventTypeHeader, Value: []byte(EventOrderCreated)}},
		Time:    event.Timestamp,
	}, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
