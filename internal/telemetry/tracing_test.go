package telemetry

import (
	"bytes"
	"context"
	"io"
	"log"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TraceConfig{ServiceName: "pixelshelf-test", Exporter: "none"}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupTracingRejectsUnknownExporter(t *testing.T) {
	if _, err := SetupTracing(context.Background(), TraceConfig{Exporter: "zipkin"}, nil); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
	if _, err := SetupTracing(context.Background(), TraceConfig{Exporter: "otlp"}, nil); err == nil {
		t.Fatal("expected error for otlp without endpoint")
	}
}

func TestSetupTracingStdoutExportsSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var out bytes.Buffer
	shutdown, err := SetupTracing(context.Background(), TraceConfig{ServiceName: "pixelshelf-test", Exporter: "stdout", Writer: &out}, nil)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, span := otel.Tracer("pixelshelf/test").Start(context.Background(), "assets.create")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(out.String(), "assets.create") {
		t.Fatalf("expected exported span in output, got %q", out.String())
	}
}
