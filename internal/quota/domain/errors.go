package domain

import (
	"errors"
	"fmt"
)

var (
	ErrQuotaExceeded = errors.New("quota_exceeded")
	ErrInvalidVolume = errors.New("invalid_volume")
	ErrInvalidDays   = errors.New("invalid_days")
	ErrQuotaNotFound = errors.New("quota_not_found")
)

// QuotaExceededError carries the figures a caller needs to explain the refusal.
type QuotaExceededError struct {
	LimitML     int64
	ConsumedML  int64
	RemainingML int64
	RequestedML int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota_exceeded: requested %dml, remaining %dml of %dml", e.RequestedML, e.RemainingML, e.LimitML)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

func NewQuotaExceeded(q DailyQuota, requestedML int64) *QuotaExceededError {
	return &QuotaExceededError{
		LimitML:     q.LimitML,
		ConsumedML:  q.ConsumedML,
		RemainingML: q.RemainingML(),
		RequestedML: requestedML,
	}
}
