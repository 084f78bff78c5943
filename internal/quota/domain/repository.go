package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByCustomerDay(ctx context.Context, db *gorm.DB, customerID snowflake.ID, day string) (*DailyQuota, error)
	// InsertIgnore creates the record unless one exists for the same
	// customer and day.
	InsertIgnore(ctx context.Context, db *gorm.DB, quota *DailyQuota) error
	// Consume increments consumed_ml only if the result stays within the limit.
	Consume(ctx context.Context, db *gorm.DB, id snowflake.ID, volumeML int64, now time.Time) (bool, error)
	InsertConsumption(ctx context.Context, db *gorm.DB, entry *Consumption) error
	InsertWarning(ctx context.Context, db *gorm.DB, warning *Warning) error
	ListConsumptions(ctx context.Context, db *gorm.DB, quotaIDs []snowflake.ID) ([]Consumption, error)
	ListWarnings(ctx context.Context, db *gorm.DB, quotaIDs []snowflake.ID) ([]Warning, error)
	ResetRecord(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	ListByCustomerSince(ctx context.Context, db *gorm.DB, customerID snowflake.ID, fromDay string) ([]DailyQuota, error)
	ListExceeding(ctx context.Context, db *gorm.DB, day string) ([]DailyQuota, error)
	ListElapsedUnsettled(ctx context.Context, db *gorm.DB, beforeDay string, limit int) ([]snowflake.ID, error)
	Settle(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (records int64, consumptions int64, err error)
	ListPrunable(ctx context.Context, db *gorm.DB, beforeDay string, limit int) ([]snowflake.ID, error)
	Delete(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (records int64, warnings int64, err error)
}
