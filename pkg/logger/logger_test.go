package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	return out
}

func TestNewWithWriter_ServiceField(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("storefront-checkout", "info", &buf).Info("hello")

	out := decodeLine(t, &buf)
	if got := out["service"]; got != "storefront-checkout" {
		t.Errorf("service = %v, want storefront-checkout", got)
	}
}

func TestNewWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("svc", "warn", &buf)
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info line written at warn level: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithContext_Identifiers(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("svc", "info", &buf)

	ctx := WithCorrelationID(context.Background(), "req-1")
	ctx = WithCustomerID(ctx, "cust-1")
	ctx = WithFlowID(ctx, "flow-1")
	WithContext(ctx, l).Info("tagged")

	out := decodeLine(t, &buf)
	for key, want := range map[string]string{
		"correlation_id": "req-1",
		"customer_id":    "cust-1",
		"flow_id":        "flow-1",
	} {
		if got := out[key]; got != want {
			t.Errorf("%s = %v, want %q", key, got, want)
		}
	}
	if _, ok := out["trace_id"]; ok {
		t.Error("trace_id should not be present without a span")
	}
}

func TestWithContext_TraceIDs(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("svc", "info", &buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	WithContext(trace.ContextWithSpanContext(context.Background(), sc), l).Info("span")

	out := decodeLine(t, &buf)
	if got := out["trace_id"]; got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace_id = %v", got)
	}
	if got := out["span_id"]; got != "00f067aa0ba902b7" {
		t.Errorf("span_id = %v", got)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger when none stored")
	}

	l := NewWithWriter("svc", "info", &bytes.Buffer{})
	if FromContext(NewContext(context.Background(), l)) != l {
		t.Error("expected stored logger")
	}
}
