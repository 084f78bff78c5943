package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const DayLayout = "2006-01-02"

// DailyQuota is the consumption ledger of one customer for one quota day.
// Remaining is always derived from LimitML and ConsumedML.
type DailyQuota struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	CustomerID  snowflake.ID `json:"customer_id" gorm:"not null;uniqueIndex:ux_daily_quotas_customer_day,priority:1"`
	Day         string       `json:"day" gorm:"type:varchar(10);not null;uniqueIndex:ux_daily_quotas_customer_day,priority:2;index:idx_daily_quotas_day_settled,priority:1"`
	LimitML     int64        `json:"limit_ml" gorm:"not null"`
	ConsumedML  int64        `json:"consumed_ml" gorm:"not null;check:chk_daily_quotas_consumed,consumed_ml >= 0"`
	SettledML   int64        `json:"settled_ml" gorm:"not null"`
	Settled     bool         `json:"settled" gorm:"not null;index:idx_daily_quotas_day_settled,priority:2"`
	LastResetAt *time.Time   `json:"last_reset_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (DailyQuota) TableName() string { return "daily_quotas" }

func (q DailyQuota) RemainingML() int64 {
	if q.ConsumedML >= q.LimitML {
		return 0
	}
	return q.LimitML - q.ConsumedML
}

// Ratio is consumed over limit; a zero limit counts as full.
func (q DailyQuota) Ratio() float64 {
	if q.LimitML <= 0 {
		return 1
	}
	return float64(q.ConsumedML) / float64(q.LimitML)
}

// Consumption is one committed sale against a daily quota.
type Consumption struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	QuotaID       snowflake.ID `json:"quota_id" gorm:"not null;index"`
	CustomerID    snowflake.ID `json:"customer_id" gorm:"not null"`
	TransactionID snowflake.ID `json:"transaction_id" gorm:"not null;index"`
	VolumeML      int64        `json:"volume_ml" gorm:"not null"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
}

func (Consumption) TableName() string { return "quota_consumptions" }

type Warning struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	QuotaID    snowflake.ID `json:"quota_id" gorm:"not null;index"`
	CustomerID snowflake.ID `json:"customer_id" gorm:"not null"`
	Message    string       `json:"message" gorm:"size:255;not null"`
	ConsumedML int64        `json:"consumed_ml" gorm:"not null"`
	LimitML    int64        `json:"limit_ml" gorm:"not null"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
}

func (Warning) TableName() string { return "quota_warnings" }

const WarningApproachingLimit = "Approaching daily limit"

type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusExceeded Status = "exceeded"
)

func StatusFor(consumedML, limitML int64) Status {
	if limitML <= 0 {
		return StatusExceeded
	}
	pct := float64(consumedML) * 100 / float64(limitML)
	switch {
	case pct >= 100:
		return StatusExceeded
	case pct >= 90:
		return StatusCritical
	case pct >= 70:
		return StatusWarning
	default:
		return StatusOK
	}
}

// DayOf returns the quota day containing now. A day starts at resetOffset
// past local midnight.
func DayOf(now time.Time, loc *time.Location, resetOffset time.Duration) string {
	return now.In(loc).Add(-resetOffset).Format(DayLayout)
}

// ShiftDay moves a day key by n calendar days.
func ShiftDay(day string, n int) (string, error) {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DayLayout), nil
}
