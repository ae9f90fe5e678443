package messaging

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestMessageCarrier(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: "existing", Value: []byte("1")}}}
	carrier := NewMessageCarrier(&msg)

	carrier.Set("existing", "2")
	carrier.Set("traceparent", "00-abc-def-01")

	assert.Equal(t, "2", carrier.Get("existing"))
	assert.Equal(t, "", carrier.Get("missing"))
	assert.ElementsMatch(t, []string{"existing", "traceparent"}, carrier.Keys())
	assert.Len(t, msg.Headers, 2)
}

func TestMessageCarrier_PropagatesTraceContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var msg kafka.Message
	propagator := propagation.TraceContext{}
	propagator.Inject(ctx, NewMessageCarrier(&msg))

	extracted := trace.SpanContextFromContext(propagator.Extract(context.Background(), NewMessageCarrier(&msg)))
	assert.Equal(t, traceID, extracted.TraceID())
	assert.True(t, extracted.IsRemote())
}
