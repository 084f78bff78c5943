package observability

import (
	"github.com/smallbiznis/quotaguard/internal/observability/logger"
	"github.com/smallbiznis/quotaguard/internal/observability/metrics"
	"github.com/smallbiznis/quotaguard/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		loggerConfig,
		gormLoggerConfig,
		logger.New,
		tracingConfig,
		tracing.NewProvider,
		metricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.BillingWithConfig,
		metrics.SchedulerWithConfig,
	),
	// The tracer provider registers itself globally, so force construction
	// even when nothing depends on it directly.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

func loggerConfig(cfg Config) logger.Config {
	debug := cfg.Debug()
	return logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		Debug:               debug,
		IncludeCaller:       true,
		IncludeStackOnError: debug,
	}
}

func gormLoggerConfig(cfg Config) *logger.GormLoggerConfig {
	return &logger.GormLoggerConfig{
		Level:         cfg.GormLogLevel(),
		SlowThreshold: cfg.SlowQueryThreshold,
		// Lookups by barcode, uid and idempotency key miss routinely.
		IgnoreRecordNotFound: true,
	}
}

func tracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		SamplingRatio:    cfg.OtelSamplingRatio,
	}
}

func metricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}
