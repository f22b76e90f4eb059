package mqx

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"resource-planning-system/shared/config"
)

func TestBuildMessageSortsAndPropagates(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	msg := buildMessage(ctx, "capacity.alerts", []byte("k"), []byte("v"), map[string]string{"event_type": "x", "a": "1"})
	if len(msg.Headers) != 3 || msg.Headers[0].Key != "a" || msg.Headers[1].Key != "event_type" {
		t.Fatalf("unexpected headers: %#v", msg.Headers)
	}
	if Header(msg, "traceparent") == "" {
		t.Fatalf("expected traceparent header")
	}

	got := trace.SpanContextFromContext(ExtractContext(context.Background(), msg))
	if got.TraceID() != traceID {
		t.Fatalf("trace id not restored: %s", got.TraceID())
	}
}

func TestHeaderMissing(t *testing.T) {
	if Header(kafka.Message{}, "event_type") != "" {
		t.Fatalf("expected empty header")
	}
}

func TestConstructorsRequireBrokers(t *testing.T) {
	if _, err := NewProducer(config.Config{}); err == nil {
		t.Fatalf("expected producer error")
	}
	if _, err := NewConsumer(config.Config{KafkaBrokers: []string{"localhost:9092"}}, "allocation.changes", ""); err == nil {
		t.Fatalf("expected missing group error")
	}
}
