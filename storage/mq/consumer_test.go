package mq

import (
	"context"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"CareFollow/pkg/errors"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want action
	}{
		{"success", nil, actionAck},
		{"duplicate", &errors.SkipMessageError{Reason: "m1 already processed"}, actionAck},
		{"wrapped duplicate", fmt.Errorf("handle: %w", &errors.SkipMessageError{Reason: "m1"}), actionAck},
		{"validation", errors.Invalid("patient_id is required"), actionReject},
		{"invalid transition", fmt.Errorf("update: %w", errors.InvalidTransition), actionReject},
		{"store down", errors.Unavailable("insert reminder", fmt.Errorf("connection refused")), actionRequeue},
		{"unknown", fmt.Errorf("boom"), actionRequeue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decide(tt.err); got != tt.want {
				t.Errorf("decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHeaderCarrierPropagatesTraceContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	prop := propagation.TraceContext{}
	carrier := HeaderCarrier{}
	prop.Inject(ctx, carrier)

	if carrier.Get("traceparent") == "" {
		t.Fatalf("traceparent header not set, headers = %v", carrier)
	}

	got := trace.SpanContextFromContext(prop.Extract(context.Background(), carrier))
	if got.TraceID() != traceID {
		t.Errorf("TraceID = %s, want %s", got.TraceID(), traceID)
	}
	if got.SpanID() != spanID {
		t.Errorf("SpanID = %s, want %s", got.SpanID(), spanID)
	}
}
