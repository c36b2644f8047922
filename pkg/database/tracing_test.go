package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	return exporter
}

func TestQueryTracer_Success(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := NewQueryTracer(0, nil).Trace(context.Background(), "GetProduct", "SELECT id FROM catalog_products WHERE id = $1")
	end(nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "db.GetProduct", span.Name)
	assert.Equal(t, codes.Unset, span.Status.Code)

	attrs := make(map[string]string)
	for _, a := range span.Attributes {
		attrs[string(a.Key)] = a.Value.Emit()
	}
	assert.Equal(t, "postgresql", attrs["db.system"])
	assert.Equal(t, "GetProduct", attrs["db.operation"])
	assert.Equal(t, "SELECT id FROM catalog_products WHERE id = $1", attrs["db.statement"])
}

func TestQueryTracer_Error(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := NewQueryTracer(0, nil).Trace(context.Background(), "UpsertProduct", "INSERT INTO catalog_products")
	end(errors.New("connection refused"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.NotEmpty(t, spans[0].Events)
}

func TestQueryTracer_NilReceiverStillTraces(t *testing.T) {
	exporter := setupTestTracer(t)

	var q *QueryTracer
	_, end := q.Trace(context.Background(), "Ping", "SELECT 1")
	end(nil)

	assert.Len(t, exporter.GetSpans(), 1)
}

func TestQueryTracer_SlowQueryLogged(t *testing.T) {
	setupTestTracer(t)

	var buf bytes.Buffer
	q := NewQueryTracer(time.Nanosecond, slog.New(slog.NewJSONHandler(&buf, nil)))

	_, end := q.Trace(context.Background(), "ListProducts", "SELECT * FROM catalog_products")
	end(errors.New("statement timeout"))

	out := buf.String()
	assert.Contains(t, out, "slow query detected")
	assert.Contains(t, out, "ListProducts")
	assert.Contains(t, out, "statement timeout")
}

func TestQueryTracer_FastQueryNotLogged(t *testing.T) {
	setupTestTracer(t)

	var buf bytes.Buffer
	q := NewQueryTracer(time.Hour, slog.New(slog.NewJSONHandler(&buf, nil)))

	_, end := q.Trace(context.Background(), "Ping", "SELECT 1")
	end(nil)

	assert.Empty(t, buf.String())
}
