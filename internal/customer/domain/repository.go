package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	FindByUID(ctx context.Context, db *gorm.DB, uid string) (*Customer, error)
	FindByPhone(ctx context.Context, db *gorm.DB, phone string) (*Customer, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
}
