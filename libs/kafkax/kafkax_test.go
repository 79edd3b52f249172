package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestExtractEventMetaFallback(t *testing.T) {
	meta := ExtractEventMeta(kafka.Message{Topic: "payments.payout.sent.v1", Key: []byte("appt-1")})
	if meta.EventID != "payments.payout.sent.v1:appt-1" || meta.EventType != "payments.payout.sent.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	carrier := propagation.MapCarrier{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), carrier)

	headers := InjectTraceHeaders(ctx, nil)
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatal("expected traceparent header")
	}
	out := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	got := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(out, got)
	if got["traceparent"] != carrier["traceparent"] {
		t.Fatalf("expected %s, got %s", carrier["traceparent"], got["traceparent"])
	}
}
