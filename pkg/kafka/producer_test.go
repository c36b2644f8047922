package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/storefront/pkg/logger"
)

type cartPayload struct {
	CartID    string `json:"cart_id"`
	ItemCount int    `json:"item_count"`
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Event tests ---

func TestNewEvent_Fields(t *testing.T) {
	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	data := cartPayload{CartID: "cart-1", ItemCount: 3}

	event, err := NewEvent(ctx, "cart.updated", "user-7", "cart", "cart-service", 4, data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "cart.updated", event.EventType)
	assert.Equal(t, "user-7", event.AggregateID)
	assert.Equal(t, "cart", event.AggregateType)
	assert.Equal(t, "cart-service", event.Source)
	assert.Equal(t, 4, event.Version)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var got cartPayload
	require.NoError(t, event.UnmarshalData(&got))
	assert.Equal(t, data, got)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent(context.Background(), "cart.updated", "agg-1", "cart", "svc", 1, make(chan int))
	require.Error(t, err)
}

func TestEvent_RoundTrip(t *testing.T) {
	original, err := NewEvent(context.Background(), "cart.cleared", "user-1", "cart", "cart-service", 2, map[string]string{"cart_id": "c"})
	require.NoError(t, err)
	original.WithMetadata("reason", "user")

	raw, err := original.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, original.Metadata, restored.Metadata)
	assert.JSONEq(t, string(original.Data), string(restored.Data))
}

func TestEvent_WithMetadata_NilMap(t *testing.T) {
	event := &Event{EventID: "test-id"}
	assert.Same(t, event, event.WithMetadata("key", "value"))
	assert.Equal(t, "value", event.Metadata["key"])
}

func TestUnmarshalEvent_Invalid(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{broken json`))
	require.Error(t, err)
	_, err = UnmarshalEvent(nil)
	require.Error(t, err)
}

// --- Topic tests ---

func TestTopic(t *testing.T) {
	assert.Equal(t, "ecommerce.cart.updated", Topic("cart", "updated"))
	assert.Equal(t, "ecommerce.cart.cleared", Topic("cart", "cleared"))
}

// --- Producer tests ---

func TestDefaultProducerConfig(t *testing.T) {
	brokers := []string{"broker1:9092", "broker2:9092"}
	cfg := DefaultProducerConfig(brokers)

	assert.Equal(t, brokers, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.False(t, cfg.Async)
}

func TestNewProducer_CreatesInstance(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), nil)
	require.NotNil(t, p)
	assert.Equal(t, []string{"localhost:19092"}, p.brokers)
	assert.NoError(t, p.Close())
}

func TestProducer_Publish_BuildsMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))
	ctx = logger.WithCorrelationID(ctx, "corr-9")

	w := &fakeWriter{}
	p := &Producer{writer: w, logger: quietLogger()}

	event, err := NewEvent(ctx, "cart.updated", "user-1", "cart", "cart-service", 3, cartPayload{CartID: "c-1", ItemCount: 2})
	require.NoError(t, err)
	require.NoError(t, p.Publish(ctx, Topic("cart", "updated"), event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "ecommerce.cart.updated", msg.Topic)
	assert.Equal(t, "user-1", string(msg.Key))

	carrier := NewHeaderCarrier(&msg)
	assert.Equal(t, "cart.updated", carrier.Get("event_type"))
	assert.Equal(t, "cart-service", carrier.Get("source"))
	assert.Equal(t, "corr-9", carrier.Get("correlation_id"))
	assert.Contains(t, carrier.Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
}

func TestProducer_Publish_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := &Producer{writer: w, logger: quietLogger()}

	event, err := NewEvent(context.Background(), "cart.cleared", "user-1", "cart", "cart-service", 1, nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), Topic("cart", "cleared"), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ecommerce.cart.cleared")
	assert.Contains(t, err.Error(), "leader not available")
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(t.Context(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}

func TestHeaderCarrier_SetReplacesExisting(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: "event_type", Value: []byte("cart.updated")}}}
	carrier := NewHeaderCarrier(&msg)

	carrier.Set("event_type", "cart.cleared")
	carrier.Set("source", "cart-service")

	assert.Equal(t, "cart.cleared", carrier.Get("event_type"))
	assert.Empty(t, carrier.Get("missing"))
	assert.ElementsMatch(t, []string{"event_type", "source"}, carrier.Keys())
	require.Len(t, msg.Headers, 2, "headers are written through to the message")
}
