package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/quotaguard/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithActor(ctx, "cashier", "7")
	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "cashier", fields["actor_type"])
	assert.Equal(t, "7", fields["actor_id"])
}

func TestZapConfigHonoursFormatAndLevel(t *testing.T) {
	cfg, err := zapConfig(Config{Level: "warn", Format: "Console"})
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.Encoding)
	assert.Equal(t, zapcore.WarnLevel, cfg.Level.Level())
	assert.Nil(t, cfg.Sampling)

	_, err = zapConfig(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestBuildOptionsSkipsSamplingInDebug(t *testing.T) {
	assert.Len(t, buildOptions(Config{Debug: true}), 0)
	assert.Len(t, buildOptions(Config{}), 1)
	assert.Len(t, buildOptions(Config{IncludeCaller: true, IncludeStackOnError: true}), 3)
}

func TestGinMiddlewareLogsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	r := gin.New()
	r.Use(GinMiddleware(zap.New(core), MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "quota_exceeded", "quota_exceeded" },
	}))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/reject", func(c *gin.Context) {
		_ = c.Error(errors.New("quota_exceeded"))
		c.Status(http.StatusForbidden)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-Id", "abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reject", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "abc", entries[0].ContextMap()["request_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "quota_exceeded", entries[1].ContextMap()["error_code"])
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", http.StatusOK, ""))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/quota/me", http.StatusOK, ""))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/transactions", http.StatusBadRequest, "validation_error"))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/api/transactions", http.StatusConflict, "insufficient_stock"))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/transactions", http.StatusServiceUnavailable, "service_unavailable"))
}

func TestGormLoggerReportsSlowQueries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), GormLoggerConfig{Level: gormlogger.Warn})

	l.Trace(context.Background(), timeAgo(), func() (string, int64) {
		return "UPDATE products SET stock = stock - ?", 1
	}, errors.New("boom"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "gorm.query", entry.Message)
	assert.Equal(t, "UPDATE", entry.ContextMap()["operation"])
	assert.Equal(t, "products", entry.ContextMap()["table"])
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
}

func TestGormLoggerFlagsSlowStatements(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), GormLoggerConfig{Level: gormlogger.Warn, SlowThreshold: 10 * time.Millisecond})

	l.Trace(context.Background(), timeAgo(), func() (string, int64) {
		return `SELECT * FROM "quota_usages" WHERE customer_id = ?`, 3
	}, nil)
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT 1", 1
	}, nil)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, true, entry.ContextMap()["slow"])
	assert.Equal(t, "quota_usages", entry.ContextMap()["table"])
}

func timeAgo() time.Time { return time.Now().Add(-time.Second) }

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "INSERT", operationFromSQL("insert into receipts values (1)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))

	op, table := statementShape("DELETE FROM quota_usages WHERE day < ?")
	assert.Equal(t, "DELETE", op)
	assert.Equal(t, "quota_usages", table)
}
