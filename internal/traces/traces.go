// Package traces wires OpenTelemetry tracing for the service.
package traces

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/transflow/riskd"

// Init configures the global tracer provider with an OTLP/gRPC exporter.
// When endpoint is empty tracing stays disabled and the returned shutdown
// is a no-op.
func Init(ctx context.Context, serviceName, endpoint, env string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.DeploymentEnvironment(env),
	))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Start begins a span on the service tracer.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// Attribute helpers for the spans recorded around evaluation.

func CustomerID(id string) attribute.KeyValue {
	return attribute.String("riskd.customer_id", id)
}

func TransactionID(id string) attribute.KeyValue {
	return attribute.String("riskd.transaction_id", id)
}

func RiskLevel(level string) attribute.KeyValue {
	return attribute.String("riskd.risk_level", level)
}

func Evaluator(name string) attribute.KeyValue {
	return attribute.String("riskd.evaluator", name)
}

func FlagCount(n int) attribute.KeyValue {
	return attribute.Int("riskd.flag_count", n)
}

func Degraded(d bool) attribute.KeyValue {
	return attribute.Bool("riskd.ml_degraded", d)
}
