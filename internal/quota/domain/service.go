package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Today returns the current quota day key.
	Today() string
	// GetOrCreateToday is safe under concurrent first access; a losing
	// creator reads the winner's record.
	GetOrCreateToday(ctx context.Context, customerID snowflake.ID) (*DailyQuota, error)
	// TryConsume atomically adds volumeML when it fits within the limit and
	// records the consumption. It returns *QuotaExceededError otherwise.
	TryConsume(ctx context.Context, customerID snowflake.ID, volumeML int64, transactionID snowflake.ID) (*DailyQuota, error)
	// CanConsume is the read-only variant of TryConsume.
	CanConsume(ctx context.Context, customerID snowflake.ID, volumeML int64) error
	Check(ctx context.Context, customerID snowflake.ID) (Snapshot, error)
	History(ctx context.Context, customerID snowflake.ID, days int) ([]Snapshot, error)
	Reset(ctx context.Context, customerID snowflake.ID) (Snapshot, error)
	ExceedingLimit(ctx context.Context) ([]Snapshot, error)
	// ResetElapsed settles one batch of records whose day has passed.
	ResetElapsed(ctx context.Context, batchSize int) (ResetResult, error)
	// PruneExpired deletes one batch of never-consumed records older than the
	// retention window.
	PruneExpired(ctx context.Context, batchSize int) (PruneResult, error)
	WithTx(tx *gorm.DB) Service
}

type Snapshot struct {
	CustomerID      string     `json:"customer_id"`
	Day             string     `json:"day"`
	LimitML         int64      `json:"limit_ml"`
	ConsumedML      int64      `json:"consumed_ml"`
	RemainingML     int64      `json:"remaining_ml"`
	LimitLiters     float64    `json:"limit"`
	ConsumedLiters  float64    `json:"consumed"`
	RemainingLiters float64    `json:"remaining"`
	Percentage      float64    `json:"percentage"`
	Status          Status     `json:"status"`
	Settled         bool       `json:"settled"`
	LastResetAt     *time.Time `json:"last_reset_at,omitempty"`
	// Consumptions are cleared by a reset; warnings are kept until pruned.
	Consumptions []Consumption `json:"consumptions"`
	Warnings     []Warning     `json:"warnings"`
}

type ResetResult struct {
	Records      int64
	Consumptions int64
}

type PruneResult struct {
	Records  int64
	Warnings int64
}
