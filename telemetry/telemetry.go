// Package telemetry exports traces and logs over OTLP/HTTP.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/amp-labs/amp-fsm/logger"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const (
	defaultServiceVersion = "1.0.0"

	// Collector service reachable from inside a GKE cluster.
	kubernetesEndpoint = "http://opentelemetry-collector.opentelemetry.svc.cluster.local:4318"

	instrumentationName = "github.com/amp-labs/amp-fsm"
)

var (
	mut            sync.Mutex               //nolint:gochecknoglobals
	tracerProvider *sdktrace.TracerProvider //nolint:gochecknoglobals
	loggerProvider *sdklog.LoggerProvider   //nolint:gochecknoglobals
)

// Config holds the OpenTelemetry configuration.
type Config struct {
	Enabled        bool          `env:"OTEL_ENABLED"                       envDefault:"false" yaml:"enabled"`
	ServiceName    string        `env:"OTEL_SERVICE_NAME"                  envDefault:"amp-fsm" yaml:"serviceName"`
	ServiceVersion string        `env:"OTEL_SERVICE_VERSION"               envDefault:"1.0.0" yaml:"serviceVersion"`
	Endpoint       string        `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT" yaml:"endpoint"`
	LogsEndpoint   string        `env:"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"   yaml:"logsEndpoint"`
	ExportLogs     bool          `env:"OTEL_EXPORT_LOGS"                   envDefault:"false" yaml:"exportLogs"`
	Timeout        time.Duration `env:"OTEL_EXPORTER_OTLP_TIMEOUT"         envDefault:"5s"    yaml:"timeout"`
}

// TraceEndpoint returns the configured trace endpoint, falling back to the
// in-cluster collector when running in Kubernetes.
func (c Config) TraceEndpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}

	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return kubernetesEndpoint
	}

	return ""
}

// LogEndpoint returns the log endpoint, defaulting to the trace collector.
func (c Config) LogEndpoint() string {
	if c.LogsEndpoint != "" {
		return c.LogsEndpoint
	}

	return c.TraceEndpoint()
}

// Initialize installs the global tracer provider and, when ExportLogs is set,
// the global logger provider. It returns a slog handler bridged to OTLP, or
// nil when logs are not exported; pass it to logger.Options.Handler.
func Initialize(ctx context.Context, cfg Config, environment string) (slog.Handler, error) {
	if !cfg.Enabled {
		logger.Get(ctx).Info("OpenTelemetry is disabled")

		return nil, nil //nolint:nilnil
	}

	endpoint := cfg.TraceEndpoint()
	if endpoint == "" {
		logger.Get(ctx).Warn("OpenTelemetry endpoint not configured, telemetry will be disabled")

		return nil, nil //nolint:nilnil
	}

	version := cfg.ServiceVersion
	if version == "" {
		version = defaultServiceVersion
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(version),
			semconv.DeploymentEnvironmentKey.String(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(endpoint),
		otlptracehttp.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	mut.Lock()
	tracerProvider = tp
	mut.Unlock()

	logger.Get(ctx).Info("OpenTelemetry tracing initialized",
		"service", cfg.ServiceName,
		"version", version,
		"environment", environment,
		"endpoint", endpoint,
	)

	if !cfg.ExportLogs {
		return nil, nil //nolint:nilnil
	}

	logExporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpointURL(cfg.LogEndpoint()),
		otlploghttp.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)

	global.SetLoggerProvider(lp)

	mut.Lock()
	loggerProvider = lp
	mut.Unlock()

	return otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(lp)), nil
}

// Shutdown flushes and stops the providers installed by Initialize.
func Shutdown(ctx context.Context) error {
	mut.Lock()
	tp, lp := tracerProvider, loggerProvider
	tracerProvider, loggerProvider = nil, nil
	mut.Unlock()

	var errs []error

	if tp != nil {
		logger.Get(ctx).Info("Shutting down OpenTelemetry tracer provider")

		errs = append(errs, tp.Shutdown(ctx))
	}

	if lp != nil {
		errs = append(errs, lp.Shutdown(ctx))
	}

	return errors.Join(errs...)
}
