package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No trace ID set
	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	// Set and retrieve
	ctx = WithTraceID(ctx, "test-trace-123")
	if tid := TraceID(ctx); tid != "test-trace-123" {
		t.Errorf("expected 'test-trace-123', got %q", tid)
	}
}

func TestNewTraceID(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	if a == "" || b == "" {
		t.Fatal("expected non-empty trace ids")
	}
	if a == b {
		t.Error("expected distinct trace ids")
	}
}

func TestLogWithTrace(t *testing.T) {
	ctx := context.Background()

	// No trace ID
	attrs := LogWithTrace(ctx)
	if attrs != nil {
		t.Errorf("expected nil attrs when no trace id, got %v", attrs)
	}

	ctx = WithTraceID(ctx, "abc-123")
	attrs = LogWithTrace(ctx)
	if len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with trace id set")
	}
}
