package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	CustomerID snowflake.ID
	Status     Status
	Cursor     *Cursor
	Limit      int
}

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Order, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Order, error)
	// UpdateStatus applies fields only while the order is still in from.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from Status, fields map[string]any) (bool, error)
	// Complete applies fields only while the order is still billable.
	Complete(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) (bool, error)
}
