package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig configures the GORM zap logger.
type GormLoggerConfig struct {
	Level                gormlogger.LogLevel
	SlowThreshold        time.Duration
	IgnoreRecordNotFound bool
}

func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:         gormlogger.Warn,
		SlowThreshold: 200 * time.Millisecond,
	}
}

// GormLogger routes GORM output through zap. Bound parameters are never
// logged since they carry phone numbers and customer identifiers.
type GormLogger struct {
	log *zap.Logger
	cfg GormLoggerConfig
}

// NewGormLogger builds a GormLogger. A nil log falls back to the logger on ctx.
func NewGormLogger(log *zap.Logger, cfg GormLoggerConfig) *GormLogger {
	if log != nil {
		log = log.Named("gorm")
	}
	return &GormLogger{log: log, cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < min {
		return
	}
	ce := l.logger(ctx).Check(level, msg)
	if ce == nil {
		return
	}
	fields := []zap.Field{zap.String("component", "gorm")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	ce.Write(fields...)
}

func (l *GormLogger) logger(ctx context.Context) *zap.Logger {
	if l.log == nil {
		return FromContext(ctx)
	}
	return WithContext(ctx, l.log)
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	slow := l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold

	var level zapcore.Level
	switch {
	case l.cfg.Level <= gormlogger.Silent:
		return
	case err != nil && l.cfg.Level >= gormlogger.Error && !l.ignorable(err):
		level = zapcore.ErrorLevel
	case slow && l.cfg.Level >= gormlogger.Warn:
		level = zapcore.WarnLevel
	case l.cfg.Level >= gormlogger.Info:
		level = zapcore.DebugLevel
	default:
		return
	}

	ce := l.logger(ctx).Check(level, "gorm.query")
	if ce == nil {
		return
	}
	sql, rows := fc()
	sql = strings.TrimSpace(sql)
	op, table := statementShape(sql)
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("sql", sql),
		zap.String("operation", op),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if table != "" {
		fields = append(fields, zap.String("table", table))
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if slow {
		fields = append(fields, zap.Bool("slow", true))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

func (l *GormLogger) ignorable(err error) bool {
	return l.cfg.IgnoreRecordNotFound && errors.Is(err, gormlogger.ErrRecordNotFound)
}

// ParamsFilter drops bound values from the rendered statement.
func (l *GormLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	return sql, nil
}

func operationFromSQL(sql string) string {
	op, _ := statementShape(sql)
	return op
}

// statementShape returns the leading DML verb (skipping CTEs) and the table
// it targets, when that can be read off the statement.
func statementShape(sql string) (string, string) {
	tokens := strings.Fields(sql)
	for i, raw := range tokens {
		switch token := strings.ToUpper(strings.Trim(raw, "();")); token {
		case "SELECT", "DELETE":
			return token, tableAfter(tokens[i+1:], "FROM")
		case "INSERT", "MERGE":
			return token, tableAfter(tokens[i+1:], "INTO")
		case "UPDATE":
			if i+1 < len(tokens) {
				return token, cleanTable(tokens[i+1])
			}
			return token, ""
		}
	}
	return "UNKNOWN", ""
}

func tableAfter(tokens []string, keyword string) string {
	for i, token := range tokens {
		if strings.EqualFold(token, keyword) && i+1 < len(tokens) {
			return cleanTable(tokens[i+1])
		}
	}
	return ""
}

func cleanTable(token string) string {
	return strings.Trim(token, "`\"();")
}

var _ gormlogger.Interface = (*GormLogger)(nil)
