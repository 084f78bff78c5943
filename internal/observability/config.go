package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/quotaguard/internal/config"
	"github.com/spf13/viper"
	gormlogger "gorm.io/gorm/logger"
)

// Config holds observability settings. Values come from the environment;
// the process config supplies service identity defaults.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	// SQL logging. Slow sale transactions are the first sign of lock
	// contention on hot products.
	DBLogLevel         string
	SlowQueryThreshold time.Duration

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	return loadConfig(newEnvReader(cfg))
}

func newEnvReader(cfg config.Config) *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_SERVICE", cfg.AppName)
	v.SetDefault("DEPLOYMENT_ENV", cfg.Environment)
	v.SetDefault("SERVICE_VERSION", cfg.AppVersion)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DB_LOG_LEVEL", "")
	v.SetDefault("DB_SLOW_QUERY_THRESHOLD", "200ms")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.1)
	return v
}

func loadConfig(v *viper.Viper) Config {
	serviceName := strings.TrimSpace(v.GetString("APP_SERVICE"))
	if serviceName == "" {
		serviceName = "quotaguard"
	}

	protocol := v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL")
	if traces := strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}

	slow := v.GetDuration("DB_SLOW_QUERY_THRESHOLD")
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}

	ratio := v.GetFloat64("OTEL_SAMPLING_RATIO")
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(v.GetString("DEPLOYMENT_ENV")),
		Version:              strings.TrimSpace(v.GetString("SERVICE_VERSION")),
		LogLevel:             normalize(v.GetString("LOG_LEVEL")),
		LogFormat:            normalize(v.GetString("LOG_FORMAT")),
		DBLogLevel:           normalize(v.GetString("DB_LOG_LEVEL")),
		SlowQueryThreshold:   slow,
		OtelEnabled:          v.GetBool("OTEL_ENABLED"),
		OtelExporterEndpoint: strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OtelExporterProtocol: normalize(protocol),
		OtelSamplingRatio:    ratio,
	}
}

func (c Config) Debug() bool {
	if normalize(c.LogLevel) == "debug" {
		return true
	}
	switch normalize(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// GormLogLevel maps DBLogLevel onto gorm's levels. Debug mode logs every
// statement.
func (c Config) GormLogLevel() gormlogger.LogLevel {
	switch c.DBLogLevel {
	case "silent", "off":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info", "debug":
		return gormlogger.Info
	}
	if c.Debug() {
		return gormlogger.Info
	}
	return gormlogger.Warn
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
