// Package tracing installs the global OpenTelemetry tracer provider. Spans are
// created where the work happens (exec client, compute service); this package
// only decides where they go.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ExporterStdout writes finished spans as JSON.
const ExporterStdout = "stdout"

// ShutdownFunc flushes and stops the provider.
type ShutdownFunc func(ctx context.Context) error

func noop(context.Context) error { return nil }

// Setup configures tracing for exporter. An empty exporter leaves the
// default no-op provider in place. Spans go to w, or os.Stdout when w is nil.
func Setup(serviceName, serviceVersion, exporter string, w io.Writer) (ShutdownFunc, error) {
	switch exporter {
	case "":
		return noop, nil
	case ExporterStdout:
	default:
		return noop, fmt.Errorf("unknown trace exporter %q", exporter)
	}

	if w == nil {
		w = os.Stdout
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return noop, fmt.Errorf("create stdout exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
