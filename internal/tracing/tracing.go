// Package tracing configures the OpenTelemetry tracer provider used by the
// engine for run and step spans.
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
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Config selects the span exporter and sampling.
type Config struct {
	Exporter       string
	ServiceName    string
	ServiceVersion string
	SampleRate     float64 // fraction of runs sampled; 0 means every run
	PrettyPrint    bool
	Writer         io.Writer // stdout exporter destination (default: os.Stderr)
}

// Provider wraps the SDK tracer provider. A Provider built with
// ExporterNone hands out no-op tracers.
type Provider struct {
	tp   *sdktrace.TracerProvider
	noop trace.TracerProvider
}

// NewProvider builds a Provider from cfg and installs it as the global
// tracer provider.
func NewProvider(cfg Config) (*Provider, error) {
	switch cfg.Exporter {
	case "", ExporterNone:
		return &Provider{noop: noop.NewTracerProvider()}, nil
	case ExporterStdout:
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}

	return newSDKProvider(cfg, sdktrace.WithSyncer(exporter))
}

// NewProviderWith builds an SDK-backed Provider around caller-supplied
// options, such as a span recorder in tests.
func NewProviderWith(cfg Config, opts ...sdktrace.TracerProviderOption) (*Provider, error) {
	return newSDKProvider(cfg, opts...)
}

func newSDKProvider(cfg Config, opts ...sdktrace.TracerProviderOption) (*Provider, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "stepwise"
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	all := append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	}, opts...)
	tp := sdktrace.NewTracerProvider(all...)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}, nil
}

// sampler keeps step spans with their run span.
func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0 || rate >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Tracer returns a tracer for the given instrumentation scope.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.tp == nil {
		return p.noop.Tracer(name)
	}
	return p.tp.Tracer(name)
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool { return p.tp != nil }

// Shutdown flushes pending spans and releases the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
