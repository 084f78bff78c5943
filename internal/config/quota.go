package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// QuotaPolicy is the operator-tunable policy for quota enforcement and billing.
type QuotaPolicy struct {
	DailyLimitLiters float64      `mapstructure:"dailyLimitLiters"`
	WarningThreshold float64      `mapstructure:"warningThreshold"`
	ResetTime        string       `mapstructure:"resetTime"`
	Timezone         string       `mapstructure:"timezone"`
	RetentionDays    int          `mapstructure:"retentionDays"`
	HistoryDays      int          `mapstructure:"historyDays"`
	MaxAttempts      int          `mapstructure:"maxAttempts"`
	ReceiptTemplate  string       `mapstructure:"receiptTemplate"`
	TaxRateBps       int64        `mapstructure:"taxRateBps"`
	Refund           RefundPolicy `mapstructure:"refund"`
}

type RefundPolicy struct {
	Restock bool `mapstructure:"restock"`
}

func DefaultQuotaPolicy() QuotaPolicy {
	return QuotaPolicy{
		DailyLimitLiters: 1.0,
		WarningThreshold: 0.9,
		ResetTime:        "00:00",
		Timezone:         "UTC",
		RetentionDays:    90,
		HistoryDays:      30,
		MaxAttempts:      3,
		ReceiptTemplate:  "RCP{YYYY}{MM}{DD}{SEQ4}",
	}
}

// Location resolves the policy timezone, falling back to UTC.
func (p QuotaPolicy) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(p.Timezone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

// ResetOffset is the time of day the quota day starts.
func (p QuotaPolicy) ResetOffset() time.Duration {
	hour, minute, err := ParseClock(p.ResetTime)
	if err != nil {
		return 0
	}
	return time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute
}

// LimitML is the daily limit in milliliters.
func (p QuotaPolicy) LimitML() int64 {
	return LitersToML(p.DailyLimitLiters)
}

// ParseClock parses an "HH:MM" time of day.
func ParseClock(value string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", value, err)
	}
	return t.Hour(), t.Minute(), nil
}

type QuotaPolicyHolder struct {
	current atomic.Value // holds QuotaPolicy
}

// NewQuotaPolicyHolderFrom wraps a fixed policy, used by tests and tools.
func NewQuotaPolicyHolderFrom(policy QuotaPolicy) *QuotaPolicyHolder {
	holder := &QuotaPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewQuotaPolicyHolder(log *zap.Logger) (*QuotaPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("quota")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/quotaguard/config")
	v.AddConfigPath("/etc/quotaguard")
	v.AddConfigPath(".")

	v.SetEnvPrefix("QUOTAGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultQuotaPolicy()
	v.SetDefault("quota.dailyLimitLiters", defaults.DailyLimitLiters)
	v.SetDefault("quota.warningThreshold", defaults.WarningThreshold)
	v.SetDefault("quota.resetTime", defaults.ResetTime)
	v.SetDefault("quota.timezone", defaults.Timezone)
	v.SetDefault("quota.retentionDays", defaults.RetentionDays)
	v.SetDefault("quota.historyDays", defaults.HistoryDays)
	v.SetDefault("quota.maxAttempts", defaults.MaxAttempts)
	v.SetDefault("quota.receiptTemplate", defaults.ReceiptTemplate)
	v.SetDefault("quota.taxRateBps", defaults.TaxRateBps)
	v.SetDefault("quota.refund.restock", defaults.Refund.Restock)

	// legacy variable names still used by existing deployments
	_ = v.BindEnv("quota.dailyLimitLiters", "DAILY_ALCOHOL_LIMIT")
	_ = v.BindEnv("quota.resetTime", "QUOTA_RESET_TIME")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	policy, err := decodeQuotaPolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewQuotaPolicyHolderFrom(policy)
	if v.ConfigFileUsed() == "" {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeQuotaPolicy(v)
		if err != nil {
			log.Warn("quota policy reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("quota policy reloaded",
			zap.String("file", e.Name),
			zap.Float64("daily_limit_liters", updated.DailyLimitLiters),
			zap.String("reset_time", updated.ResetTime),
		)
	})

	return holder, nil
}

func (h *QuotaPolicyHolder) Get() QuotaPolicy {
	return h.current.Load().(QuotaPolicy)
}

func decodeQuotaPolicy(v *viper.Viper) (QuotaPolicy, error) {
	var policy QuotaPolicy
	if err := v.UnmarshalKey("quota", &policy); err != nil {
		return QuotaPolicy{}, err
	}
	if err := ValidateQuotaPolicy(policy); err != nil {
		return QuotaPolicy{}, err
	}
	return policy, nil
}

func ValidateQuotaPolicy(p QuotaPolicy) error {
	if p.DailyLimitLiters <= 0 {
		return errors.New("quota.dailyLimitLiters must be positive")
	}
	if p.WarningThreshold <= 0 || p.WarningThreshold > 1 {
		return errors.New("quota.warningThreshold must be in (0, 1]")
	}
	if _, _, err := ParseClock(p.ResetTime); err != nil {
		return fmt.Errorf("quota.resetTime: %w", err)
	}
	if _, err := time.LoadLocation(strings.TrimSpace(p.Timezone)); err != nil {
		return fmt.Errorf("quota.timezone: %w", err)
	}
	if p.RetentionDays <= 0 {
		return errors.New("quota.retentionDays must be positive")
	}
	if p.MaxAttempts <= 0 {
		return errors.New("quota.maxAttempts must be positive")
	}
	if strings.TrimSpace(p.ReceiptTemplate) == "" {
		return errors.New("quota.receiptTemplate cannot be empty")
	}
	if p.TaxRateBps < 0 {
		return errors.New("quota.taxRateBps cannot be negative")
	}
	return nil
}
