// Package tracing sets up the pipeline's OpenTelemetry tracer provider,
// modeled on the teacher's pkg/tracing.TracingManager but trimmed to the
// single OTLP/HTTP exporter this module's go.mod actually carries.
package tracing

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config mirrors internal/config.TracingConfig; kept separate so this
// package has no dependency on the config package.
type Config struct {
	Enabled      bool
	OTLPEndpoint string
}

// Provider wraps the SDK tracer provider and exposes the pipeline's
// tracer. A disabled or zero-value Provider's Tracer() returns the
// global no-op tracer, so callers never need a nil check.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// New builds a Provider. When cfg.Enabled is false, it returns a Provider
// backed by the process-wide no-op tracer (no exporter, no goroutines).
func New(ctx context.Context, cfg Config, logger *logrus.Logger) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: create otlp exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", "recidx"))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	if logger != nil {
		logger.WithField("otlp_endpoint", cfg.OTLPEndpoint).Info("tracing: exporter initialized")
	}
	return &Provider{tp: tp}, nil
}

// Tracer returns the pipeline's tracer.
func (p *Provider) Tracer() oteltrace.Tracer {
	return otel.Tracer("recidx-pipeline")
}

// Shutdown flushes and stops the exporter. A no-op Provider returns nil.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
