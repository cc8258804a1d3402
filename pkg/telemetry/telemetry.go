// Package telemetry installs the global OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

// Config controls trace export.
type Config struct {
	Enabled     bool    `env:"ENABLED" envDefault:"false" yaml:"enabled" json:"enabled"`
	Endpoint    string  `env:"OTLP_ENDPOINT" yaml:"otlp_endpoint" json:"otlp_endpoint"`
	Insecure    bool    `env:"INSECURE" envDefault:"false" yaml:"insecure" json:"insecure"`
	ServiceName string  `env:"SERVICE_NAME" envDefault:"authcore" yaml:"service_name" json:"service_name"`
	SampleRatio float64 `env:"SAMPLE_RATIO" envDefault:"1" yaml:"sample_ratio" json:"sample_ratio"`
}

// Validate checks the sample ratio and that an enabled exporter has an
// endpoint.
func (c *Config) Validate() error {
	if c.Enabled && c.Endpoint == "" {
		return sserr.New(sserr.CodeInternalConfiguration, "telemetry: OTLP endpoint is required when enabled")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"telemetry: sample ratio must be within [0, 1], got %v", c.SampleRatio)
	}
	return nil
}

// Init exports spans over OTLP/gRPC when cfg.Enabled and registers the W3C
// trace-context and baggage propagators. When disabled the global no-op
// provider is left in place.
func Init(ctx context.Context, cfg Config, version string) (ShutdownFunc, error) {
	if !cfg.Enabled {
		slog.Info("telemetry: tracing disabled")
		return func(context.Context) error { return nil }, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "telemetry: failed to create OTLP exporter")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "telemetry: failed to create resource")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("telemetry: tracing initialized",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"sample_ratio", cfg.SampleRatio,
	)
	return tp.Shutdown, nil
}
