package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	CustomerID snowflake.ID
	Status     TransactionStatus
	Cursor     *Cursor
	Limit      int
}

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindByReceiptNumber(ctx context.Context, db *gorm.DB, receiptNumber string) (*Transaction, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*Transaction, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Transaction, error)
	// NextReceiptSequence atomically advances and returns the counter for day.
	NextReceiptSequence(ctx context.Context, db *gorm.DB, day string, now time.Time) (int64, error)
	MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, refundedBy *string, now time.Time) (bool, error)
}
