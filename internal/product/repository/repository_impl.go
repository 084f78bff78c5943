package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaguard/internal/product/domain"
	"github.com/smallbiznis/quotaguard/pkg/db/option"
	"github.com/smallbiznis/quotaguard/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (id, name, barcode, category, brand, description, volume_ml, alcohol_content, price, stock, reorder_level, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID,
		product.Name,
		product.Barcode,
		product.Category,
		product.Brand,
		product.Description,
		product.VolumeML,
		product.AlcoholContent,
		product.Price,
		product.Stock,
		product.ReorderLevel,
		product.IsActive,
		product.CreatedAt,
		product.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	return repository.ProvideStore[domain.Product](db).FindOne(ctx, &domain.Product{ID: id})
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.Product
	err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindByBarcode(ctx context.Context, db *gorm.DB, barcode string) (*domain.Product, error) {
	return repository.ProvideStore[domain.Product](db).FindOne(ctx,
		&domain.Product{Barcode: barcode},
		option.Where("is_active = ?", true),
	)
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListRequest) ([]domain.Product, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("is_active = ?", true)
	if filter.Category != "" {
		stmt = stmt.Where("category = ?", filter.Category)
	}
	if filter.InStock {
		stmt = stmt.Where("stock > 0")
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		stmt = stmt.Where("(LOWER(name) LIKE ? OR LOWER(brand) LIKE ? OR LOWER(description) LIKE ?)", like, like, like)
	}

	var items []domain.Product
	if err := stmt.Order("name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListLowStock(ctx context.Context, db *gorm.DB) ([]domain.Product, error) {
	var items []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM products
		 WHERE is_active = ? AND stock <= reorder_level
		 ORDER BY stock ASC, name ASC`,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	affected, err := repository.ProvideStore[domain.Product](db).Update(ctx, id, fields)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
