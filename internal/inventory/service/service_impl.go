package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaguard/internal/clock"
	"github.com/smallbiznis/quotaguard/internal/inventory/domain"
	productdomain "github.com/smallbiznis/quotaguard/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("inventory.service"),
		clock: p.Clock,
	}
}

func (s *Service) WithTx(tx *gorm.DB) domain.Service {
	if tx == nil {
		return s
	}
	return &Service{db: tx, log: s.log, clock: s.clock}
}

func (s *Service) Reserve(ctx context.Context, productID snowflake.ID, quantity int64) error {
	if productID == 0 || quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	res := s.db.WithContext(ctx).Exec(
		`UPDATE products
		 SET stock = stock - ?, updated_at = ?
		 WHERE id = ? AND is_active = ? AND stock >= ?`,
		quantity, s.clock.Now(), productID, true, quantity,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return s.diagnose(ctx, productID, quantity)
}

func (s *Service) Release(ctx context.Context, productID snowflake.ID, quantity int64) error {
	if productID == 0 || quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	res := s.db.WithContext(ctx).Exec(
		`UPDATE products SET stock = stock + ?, updated_at = ? WHERE id = ?`,
		quantity, s.clock.Now(), productID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return productdomain.ErrNotFound
	}
	return nil
}

func (s *Service) ReserveAll(ctx context.Context, lines []domain.Line) (*domain.Reservation, error) {
	merged, err := domain.MergeLines(lines)
	if err != nil {
		return nil, err
	}

	reservation := domain.NewReservation(func(ctx context.Context, line domain.Line) error {
		return s.Release(ctx, line.ProductID, line.Quantity)
	})
	for _, line := range merged {
		if err := s.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
			if relErr := reservation.Release(ctx); relErr != nil {
				s.log.Error("compensating release failed",
					zap.String("product_id", line.ProductID.String()),
					zap.Error(relErr),
				)
			}
			return nil, err
		}
		reservation.Add(line)
	}
	return reservation, nil
}

func (s *Service) CheckAvailable(ctx context.Context, lines []domain.Line) error {
	merged, err := domain.MergeLines(lines)
	if err != nil {
		return err
	}
	for _, line := range merged {
		row, err := s.load(ctx, line.ProductID)
		if err != nil {
			return err
		}
		if row == nil || !row.IsActive {
			return productdomain.ErrNotFound
		}
		if row.Stock < line.Quantity {
			return &domain.InsufficientStockError{
				ProductID: line.ProductID,
				Barcode:   row.Barcode,
				Available: row.Stock,
				Requested: line.Quantity,
			}
		}
	}
	return nil
}

// Restock adds units through the release path and returns the new stock.
func (s *Service) Restock(ctx context.Context, productID snowflake.ID, quantity int64) (int64, error) {
	if err := s.Release(ctx, productID, quantity); err != nil {
		return 0, err
	}
	row, err := s.load(ctx, productID)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, productdomain.ErrNotFound
	}
	s.log.Info("product restocked",
		zap.String("product_id", productID.String()),
		zap.Int64("quantity", quantity),
		zap.Int64("stock", row.Stock),
	)
	return row.Stock, nil
}

type stockRow struct {
	Barcode  string
	Stock    int64
	IsActive bool
}

func (s *Service) load(ctx context.Context, productID snowflake.ID) (*stockRow, error) {
	var row stockRow
	res := s.db.WithContext(ctx).Raw(
		`SELECT barcode, stock, is_active FROM products WHERE id = ?`,
		productID,
	).Scan(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &row, nil
}

// diagnose explains why a conditional decrement matched no row.
func (s *Service) diagnose(ctx context.Context, productID snowflake.ID, quantity int64) error {
	row, err := s.load(ctx, productID)
	if err != nil {
		return err
	}
	if row == nil || !row.IsActive {
		return productdomain.ErrNotFound
	}
	s.log.Debug("stock reservation refused",
		zap.String("product_id", productID.String()),
		zap.Int64("available", row.Stock),
		zap.Int64("requested", quantity),
	)
	return &domain.InsufficientStockError{
		ProductID: productID,
		Barcode:   row.Barcode,
		Available: row.Stock,
		Requested: quantity,
	}
}
