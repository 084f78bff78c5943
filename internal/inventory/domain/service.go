package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Line is a stock request for one product.
type Line struct {
	ProductID snowflake.ID
	Quantity  int64
}

type Service interface {
	// Reserve decrements stock when at least quantity units are available.
	// It never mutates on failure.
	Reserve(ctx context.Context, productID snowflake.ID, quantity int64) error
	Release(ctx context.Context, productID snowflake.ID, quantity int64) error
	// ReserveAll reserves every line in product id order. Lines for the same
	// product are merged. On failure earlier lines are released.
	ReserveAll(ctx context.Context, lines []Line) (*Reservation, error)
	// CheckAvailable is the read-only variant of ReserveAll.
	CheckAvailable(ctx context.Context, lines []Line) error
	Restock(ctx context.Context, productID snowflake.ID, quantity int64) (int64, error)
	WithTx(tx *gorm.DB) Service
}

var (
	ErrInsufficientStock = errors.New("insufficient_stock")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrReservationFailed = errors.New("reservation_release_failed")
)

type InsufficientStockError struct {
	ProductID snowflake.ID
	Barcode   string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient_stock: product %s has %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
