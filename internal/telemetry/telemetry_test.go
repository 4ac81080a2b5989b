package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/vaisu-bhut/GeniQ/internal/config"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(config.TelemetryConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestSampler(t *testing.T) {
	if got := sampler(1).Description(); got != "AlwaysOnSampler" {
		t.Errorf("sampler(1) = %q, want AlwaysOnSampler", got)
	}
	if got := sampler(0.25).Description(); !strings.Contains(got, "TraceIDRatioBased{0.25}") {
		t.Errorf("sampler(0.25) = %q", got)
	}
}

func TestStartSpanWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()
	if ctx == nil {
		t.Fatal("StartSpan() returned nil context")
	}
}
