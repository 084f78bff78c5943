package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	errInvalidID   = errors.New("invalid_snowflake_id")
	errInvalidTime = errors.New("invalid_time")
)

// optional parses a query value, returning nil for blank input.
func optional[T any](value string, parse func(string) (T, error)) (*T, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := parse(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalBool(value string) (*bool, error) {
	return optional(value, strconv.ParseBool)
}

func parseOptionalInt(value string) (*int, error) {
	return optional(value, strconv.Atoi)
}

func parseSnowflakeID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// parseOptionalTime accepts RFC3339 or a bare date. A bare date covers the
// whole UTC day, so endOfDay selects its last instant.
func parseOptionalTime(value string, endOfDay bool) (*time.Time, error) {
	return optional(value, func(v string) (time.Time, error) {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts, nil
		}
		day, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return time.Time{}, errInvalidTime
		}
		if endOfDay {
			return day.Add(24*time.Hour - time.Nanosecond), nil
		}
		return day, nil
	})
}
