package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds process configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint  string
	SnowflakeNode int64

	// BootstrapAdminUID is granted the admin role on startup.
	BootstrapAdminUID string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis       RedisConfig
	Kafka       KafkaConfig
	RateLimit   RateLimitConfig
	Pushgateway PushgatewayConfig
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig needs Redis. Windows are in seconds.
type RateLimitConfig struct {
	Enabled              bool
	APIRequests          int
	APIWindowSeconds     int
	BillingRequests      int
	BillingWindowSeconds int
	SessionRequests      int
	SessionWindowSeconds int
	IdempotencyLockTTL   int
}

// PushgatewayConfig lets the standalone scheduler publish job metrics.
type PushgatewayConfig struct {
	Enabled  bool
	Endpoint string
	Job      string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "quotaguard"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),
		SnowflakeNode: getenvInt64("SNOWFLAKE_NODE", 1),

		BootstrapAdminUID: strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_UID", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "quotaguard"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Redis: RedisConfig{
			Enabled:  getenvBool("REDIS_ENABLED", false),
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		Kafka: KafkaConfig{
			Enabled: getenvBool("KAFKA_ENABLED", false),
			Brokers: splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenv("KAFKA_TOPIC", "quotaguard.events"),
		},
		RateLimit: RateLimitConfig{
			Enabled:              getenvBool("RATE_LIMIT_ENABLED", false),
			APIRequests:          int(getenvInt64("RATE_LIMIT_MAX_REQUESTS", 100)),
			APIWindowSeconds:     int(getenvInt64("RATE_LIMIT_WINDOW_SECONDS", 900)),
			BillingRequests:      int(getenvInt64("RATE_LIMIT_BILLING_MAX_REQUESTS", 30)),
			BillingWindowSeconds: int(getenvInt64("RATE_LIMIT_BILLING_WINDOW_SECONDS", 60)),
			SessionRequests:      int(getenvInt64("RATE_LIMIT_SESSION_MAX_REQUESTS", 10)),
			SessionWindowSeconds: int(getenvInt64("RATE_LIMIT_SESSION_WINDOW_SECONDS", 900)),
			IdempotencyLockTTL:   int(getenvInt64("IDEMPOTENCY_LOCK_TTL_SECONDS", 30)),
		},
		Pushgateway: PushgatewayConfig{
			Enabled:  getenvBool("PUSHGATEWAY_ENABLED", false),
			Endpoint: strings.TrimSpace(getenv("PUSHGATEWAY_URL", "")),
			Job:      strings.TrimSpace(getenv("PUSHGATEWAY_JOB", "")),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
