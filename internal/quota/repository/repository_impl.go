package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaguard/internal/quota/domain"
	"github.com/smallbiznis/quotaguard/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByCustomerDay(ctx context.Context, db *gorm.DB, customerID snowflake.ID, day string) (*domain.DailyQuota, error) {
	return repository.ProvideStore[domain.DailyQuota](db).FindOne(ctx, &domain.DailyQuota{
		CustomerID: customerID,
		Day:        day,
	})
}

func (r *repo) InsertIgnore(ctx context.Context, db *gorm.DB, quota *domain.DailyQuota) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "customer_id"}, {Name: "day"}},
			DoNothing: true,
		}).
		Create(quota).Error
}

func (r *repo) Consume(ctx context.Context, db *gorm.DB, id snowflake.ID, volumeML int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE daily_quotas
		 SET consumed_ml = consumed_ml + ?, updated_at = ?
		 WHERE id = ? AND consumed_ml + ? <= limit_ml`,
		volumeML, now, id, volumeML,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertConsumption(ctx context.Context, db *gorm.DB, entry *domain.Consumption) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO quota_consumptions (id, quota_id, customer_id, transaction_id, volume_ml, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.QuotaID,
		entry.CustomerID,
		entry.TransactionID,
		entry.VolumeML,
		entry.CreatedAt,
	).Error
}

func (r *repo) InsertWarning(ctx context.Context, db *gorm.DB, warning *domain.Warning) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO quota_warnings (id, quota_id, customer_id, message, consumed_ml, limit_ml, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		warning.ID,
		warning.QuotaID,
		warning.CustomerID,
		warning.Message,
		warning.ConsumedML,
		warning.LimitML,
		warning.CreatedAt,
	).Error
}

func (r *repo) ListConsumptions(ctx context.Context, db *gorm.DB, quotaIDs []snowflake.ID) ([]domain.Consumption, error) {
	var items []domain.Consumption
	if len(quotaIDs) == 0 {
		return items, nil
	}
	err := db.WithContext(ctx).
		Where("quota_id IN ?", quotaIDs).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListWarnings(ctx context.Context, db *gorm.DB, quotaIDs []snowflake.ID) ([]domain.Warning, error) {
	var items []domain.Warning
	if len(quotaIDs) == 0 {
		return items, nil
	}
	err := db.WithContext(ctx).
		Where("quota_id IN ?", quotaIDs).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ResetRecord(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	if err := db.WithContext(ctx).Exec(`DELETE FROM quota_consumptions WHERE quota_id = ?`, id).Error; err != nil {
		return err
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE daily_quotas SET consumed_ml = 0, last_reset_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrQuotaNotFound
	}
	return nil
}

func (r *repo) ListByCustomerSince(ctx context.Context, db *gorm.DB, customerID snowflake.ID, fromDay string) ([]domain.DailyQuota, error) {
	var items []domain.DailyQuota
	err := db.WithContext(ctx).
		Where("customer_id = ? AND day >= ?", customerID, fromDay).
		Order("day DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListExceeding(ctx context.Context, db *gorm.DB, day string) ([]domain.DailyQuota, error) {
	var items []domain.DailyQuota
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM daily_quotas
		 WHERE day = ? AND consumed_ml >= limit_ml
		 ORDER BY updated_at DESC`,
		day,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListElapsedUnsettled(ctx context.Context, db *gorm.DB, beforeDay string, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.DailyQuota{}).
		Where("day < ? AND settled = ?", beforeDay, false).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) Settle(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, int64, error) {
	if len(ids) == 0 {
		return 0, 0, nil
	}
	consumptions := db.WithContext(ctx).Exec(`DELETE FROM quota_consumptions WHERE quota_id IN ?`, ids)
	if consumptions.Error != nil {
		return 0, 0, consumptions.Error
	}
	records := db.WithContext(ctx).Exec(
		`UPDATE daily_quotas
		 SET settled_ml = consumed_ml, consumed_ml = 0, settled = ?, last_reset_at = ?, updated_at = ?
		 WHERE id IN ? AND settled = ?`,
		true, now, now, ids, false,
	)
	if records.Error != nil {
		return 0, 0, records.Error
	}
	return records.RowsAffected, consumptions.RowsAffected, nil
}

func (r *repo) ListPrunable(ctx context.Context, db *gorm.DB, beforeDay string, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.DailyQuota{}).
		Where("day < ? AND settled = ? AND settled_ml = 0 AND consumed_ml = 0", beforeDay, true).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (int64, int64, error) {
	if len(ids) == 0 {
		return 0, 0, nil
	}
	warnings := db.WithContext(ctx).Exec(`DELETE FROM quota_warnings WHERE quota_id IN ?`, ids)
	if warnings.Error != nil {
		return 0, 0, warnings.Error
	}
	if err := db.WithContext(ctx).Exec(`DELETE FROM quota_consumptions WHERE quota_id IN ?`, ids).Error; err != nil {
		return 0, 0, err
	}
	records := db.WithContext(ctx).Exec(`DELETE FROM daily_quotas WHERE id IN ?`, ids)
	if records.Error != nil {
		return 0, 0, records.Error
	}
	return records.RowsAffected, warnings.RowsAffected, nil
}
