package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return true
	}

	msg := err.Error()
	// PostgreSQL without pgconn wrapping
	if strings.Contains(msg, "duplicate key value violates unique constraint") {
		return true
	}
	// MySQL (error code 1062)
	if strings.Contains(msg, "Error 1062") {
		return true
	}
	// SQLite (error code 2067)
	return strings.Contains(msg, "UNIQUE constraint failed")
}

// IsRetryable reports whether err is a lost race that may succeed on a fresh
// attempt: serialization failures, deadlocks, lock timeouts and busy SQLite.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsSerializationFailure(err) || IsDeadlock(err) || IsLockTimeout(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "Error 1213") ||
		strings.Contains(msg, "Error 1205")
}

func IsSerializationFailure(err error) bool {
	return hasPGCode(err, "40001")
}

func IsDeadlock(err error) bool {
	return hasPGCode(err, "40P01")
}

func IsLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

// IsPGError reports whether err carries a PostgreSQL error.
func IsPGError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
