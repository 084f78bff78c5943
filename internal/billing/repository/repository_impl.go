package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaguard/internal/billing/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert writes the transaction and its items in the caller's unit of work.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	items := tx.Items
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(tx).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByReceiptNumber(ctx context.Context, db *gorm.DB, receiptNumber string) (*domain.Transaction, error) {
	return r.findOne(ctx, db, "receipt_number = ?", receiptNumber)
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*domain.Transaction, error) {
	return r.findOne(ctx, db, "idempotency_key = ?", key)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where(query, args...).
		Take(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Transaction, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("customer_id = ?", filter.CustomerID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("((created_at < ?) OR (created_at = ? AND id < ?))",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}
	stmt = stmt.Order("created_at DESC, id DESC")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var items []*domain.Transaction
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) NextReceiptSequence(ctx context.Context, db *gorm.DB, day string, now time.Time) (int64, error) {
	seed := domain.ReceiptSequence{Day: day, LastValue: 0, UpdatedAt: now}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "day"}}, DoNothing: true}).
		Create(&seed).Error; err != nil {
		return 0, err
	}

	// The increment takes the row lock; it is held until the unit of work ends.
	res := db.WithContext(ctx).Exec(
		`UPDATE receipt_sequences SET last_value = last_value + 1, updated_at = ? WHERE day = ?`,
		now, day,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected != 1 {
		return 0, errors.New("receipt sequence row missing")
	}

	var value int64
	if err := db.WithContext(ctx).Raw(
		`SELECT last_value FROM receipt_sequences WHERE day = ?`, day,
	).Scan(&value).Error; err != nil {
		return 0, err
	}
	return value, nil
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, refundedBy *string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET status = ?, payment_status = ?, refund_reason = ?, refunded_by = ?, refunded_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.TransactionStatusRefunded,
		domain.PaymentStatusRefunded,
		reason,
		refundedBy,
		now,
		now,
		id,
		domain.TransactionStatusCompleted,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
