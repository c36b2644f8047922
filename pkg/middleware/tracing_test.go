package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const incomingTraceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func installRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exporter
}

// tracedCartRouter mirrors the storefront chain: logging first, then tracing.
func tracedCartRouter(status int) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogging(quietLogger()))
	r.Use(Tracing("storefront"))
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Put("/api/v1/cart/items/{lineItemId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
	return r
}

func spanAttrs(span tracetest.SpanStub) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value, len(span.Attributes))
	for _, kv := range span.Attributes {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestTracing_NamesSpanByRoutePattern(t *testing.T) {
	exporter := installRecorder(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/L7", nil)
	req.Header.Set(SessionHeader, "sess-42")
	req.Header.Set("X-Correlation-ID", "corr-1")
	rec := httptest.NewRecorder()
	tracedCartRouter(http.StatusOK).ServeHTTP(rec, req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "PUT /api/v1/cart/items/{lineItemId}", span.Name)

	attrs := spanAttrs(span)
	assert.Equal(t, "/api/v1/cart/items/{lineItemId}", attrs["http.route"].AsString())
	assert.Equal(t, int64(http.StatusOK), attrs["http.status_code"].AsInt64())
	assert.Equal(t, "sess-42", attrs[attrSessionID].AsString())
	assert.Equal(t, "corr-1", attrs[attrCorrelationID].AsString())
	assert.Equal(t, codes.Unset, span.Status.Code)
}

func TestTracing_NoSessionAttributeWithoutHeader(t *testing.T) {
	exporter := installRecorder(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/L7", nil)
	tracedCartRouter(http.StatusBadRequest).ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	attrs := spanAttrs(spans[0])
	_, ok := attrs[attrSessionID]
	assert.False(t, ok)
	assert.NotEmpty(t, attrs[attrCorrelationID].AsString(), "generated correlation id is recorded")
	assert.Equal(t, codes.Unset, spans[0].Status.Code, "client errors do not fail the span")
}

func TestTracing_ServerErrorMarksSpan(t *testing.T) {
	exporter := installRecorder(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/L7", nil)
	tracedCartRouter(http.StatusServiceUnavailable).ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), spans[0].Status.Description)
}

func TestTracing_ContinuesIncomingTrace(t *testing.T) {
	exporter := installRecorder(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/L7", nil)
	req.Header.Set("traceparent", incomingTraceparent)
	rec := httptest.NewRecorder()
	tracedCartRouter(http.StatusOK).ServeHTTP(rec, req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent.SpanID().String())
	assert.Contains(t, rec.Header().Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestTracing_SkipsProbes(t *testing.T) {
	exporter := installRecorder(t)

	rec := httptest.NewRecorder()
	tracedCartRouter(http.StatusOK).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, exporter.GetSpans())
	assert.Empty(t, rec.Header().Get("traceparent"))
}
