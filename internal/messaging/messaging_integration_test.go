//go:build integration

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/testutil"
)

func TestProducerConsumer_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	brokers := testutil.StartKafka(ctx, t)
	const topic = "order.created"

	producer := NewProducer(brokers, topic)
	defer func() { _ = producer.Close() }()

	event := domain.OrderCreatedEvent{
		OrderNumber: "ORD-20261018-0A1B2C3D",
		UserID:      7,
		Email:       "alice@example.com",
		TotalAmount: 300,
		Timestamp:   time.Now().UTC().Truncate(time.Second),
	}
	require.Eventually(t, func() bool {
		return producer.PublishOrderCreated(ctx, event) == nil
	}, 30*time.Second, time.Second, "topic auto-creation")

	consumer := NewConsumer(brokers, topic, "integration-test",
		WithStartOffset(kafka.FirstOffset), WithEventType(EventOrderCreated))
	defer func() { _ = consumer.Close() }()

	errDone := errors.New("done")
	var got domain.OrderCreatedEvent
	err := consumer.Consume(ctx, func(_ context.Context, payload []byte) error {
		require.NoError(t, json.Unmarshal(payload, &got))
		return errDone
	})

	require.ErrorIs(t, err, errDone)
	assert.Equal(t, event.OrderNumber, got.OrderNumber)
	assert.Equal(t, event.TotalAmount, got.TotalAmount)
}
