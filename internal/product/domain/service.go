package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateRequest) (*Response, error)
	Deactivate(ctx context.Context, id snowflake.ID) error
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Get(ctx context.Context, id snowflake.ID) (*Response, error)
	GetProduct(ctx context.Context, id snowflake.ID) (Product, error)
	// GetProducts returns the products keyed by id; missing ids yield ErrNotFound.
	GetProducts(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]Product, error)
	// GetByBarcode only returns active products.
	GetByBarcode(ctx context.Context, barcode string) (*Response, error)
	ListLowStock(ctx context.Context) ([]Response, error)
}

type ListRequest struct {
	Category Category
	InStock  bool
	Search   string
}

type CreateRequest struct {
	Name           string  `json:"name"`
	Barcode        string  `json:"barcode"`
	Category       string  `json:"category"`
	Brand          string  `json:"brand"`
	Description    string  `json:"description"`
	Volume         float64 `json:"volume"`
	VolumeUnit     string  `json:"volume_unit"`
	AlcoholContent float64 `json:"alcohol_content"`
	Price          int64   `json:"price"`
	Stock          int64   `json:"stock"`
	ReorderLevel   *int64  `json:"reorder_level"`
}

type UpdateRequest struct {
	Name           *string  `json:"name"`
	Category       *string  `json:"category"`
	Brand          *string  `json:"brand"`
	Description    *string  `json:"description"`
	AlcoholContent *float64 `json:"alcohol_content"`
	Price          *int64   `json:"price"`
	ReorderLevel   *int64   `json:"reorder_level"`
}

type Response struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Barcode        string      `json:"barcode"`
	Category       Category    `json:"category"`
	Brand          string      `json:"brand,omitempty"`
	Description    string      `json:"description,omitempty"`
	VolumeML       int64       `json:"volume_ml"`
	VolumeLiters   float64     `json:"volume_liters"`
	AlcoholContent float64     `json:"alcohol_content"`
	Price          int64       `json:"price"`
	Stock          int64       `json:"stock"`
	ReorderLevel   int64       `json:"reorder_level"`
	StockStatus    StockStatus `json:"stock_status"`
	IsActive       bool        `json:"is_active"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

var (
	ErrNotFound              = errors.New("product_not_found")
	ErrInvalidName           = errors.New("invalid_name")
	ErrInvalidBarcode        = errors.New("invalid_barcode")
	ErrDuplicateBarcode      = errors.New("duplicate_barcode")
	ErrInvalidCategory       = errors.New("invalid_category")
	ErrInvalidVolume         = errors.New("invalid_volume")
	ErrInvalidAlcoholContent = errors.New("invalid_alcohol_content")
	ErrInvalidPrice          = errors.New("invalid_price")
	ErrInvalidStock          = errors.New("invalid_stock")
)
