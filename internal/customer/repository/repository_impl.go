package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaguard/internal/customer/domain"
	"github.com/smallbiznis/quotaguard/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return repository.ProvideStore[domain.Customer](db).Create(ctx, customer)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	return repository.ProvideStore[domain.Customer](db).FindOne(ctx, &domain.Customer{ID: id})
}

func (r *repo) FindByUID(ctx context.Context, db *gorm.DB, uid string) (*domain.Customer, error) {
	return repository.ProvideStore[domain.Customer](db).FindOne(ctx, &domain.Customer{UID: uid})
}

func (r *repo) FindByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM customers WHERE phone_number = ? ORDER BY created_at ASC LIMIT 1`,
		phone,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	affected, err := repository.ProvideStore[domain.Customer](db).Update(ctx, id, fields)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
