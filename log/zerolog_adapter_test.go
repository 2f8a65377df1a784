package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/pilab-dev/ssobridge/log"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, log.ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, log.ParseLevel(" warn "))
	assert.Equal(t, zerolog.InfoLevel, log.ParseLevel("chatty"))
	assert.Equal(t, zerolog.InfoLevel, log.ParseLevel(""))
}

func TestAdapter_FieldsAndError(t *testing.T) {
	var buf bytes.Buffer
	l := log.NewZerologAdapter(log.New(log.Options{Level: "debug", Output: &buf})).
		With(log.Fields{"service": "idp"})

	l.Error(context.Background(), "exchange failed", errors.New("boom"), log.Fields{"client_id": "web"})

	m := decode(t, &buf)
	assert.Equal(t, "error", m["level"])
	assert.Equal(t, "exchange failed", m["message"])
	assert.Equal(t, "boom", m["error"])
	assert.Equal(t, "idp", m["service"])
	assert.Equal(t, "web", m["client_id"])
	assert.NotContains(t, m, "trace_id")
}

func TestAdapter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := log.NewZerologAdapter(log.New(log.Options{Level: "warn", Output: &buf}))

	l.Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	l.Warn(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestAdapter_TraceInfo(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	l := log.NewZerologAdapter(log.New(log.Options{Output: &buf}))
	l.Info(ctx, "traced")

	m := decode(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), m["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), m["span_id"])
}
