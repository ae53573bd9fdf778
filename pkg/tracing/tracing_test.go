package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{ServiceName: "storefront-checkout"})
	if err != nil {
		t.Fatalf("InitTracer(disabled) returned error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown(disabled) returned error: %v", err)
	}
	if otel.GetTextMapPropagator() == nil {
		t.Fatal("propagator should be installed even when disabled")
	}
}

func TestSampler(t *testing.T) {
	for _, rate := range []float64{0, 0.25, 1} {
		if sampler(rate) == nil {
			t.Errorf("sampler(%v) = nil", rate)
		}
	}
}

func TestEnd_RecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	End(span, errors.New("downstream failed"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status().Code)
	}
}

func TestInjectHTTP(t *testing.T) {
	_, _ = InitTracer(context.Background(), Config{})
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "outbound")
	defer span.End()

	req, _ := http.NewRequest(http.MethodGet, "http://identity.local", http.NoBody)
	InjectHTTP(ctx, req)

	if req.Header.Get("traceparent") == "" {
		t.Error("traceparent header not injected")
	}
}
