package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultQuotaPolicyIsValid(t *testing.T) {
	policy := DefaultQuotaPolicy()
	require.NoError(t, ValidateQuotaPolicy(policy))
	assert.Equal(t, int64(1000), policy.LimitML())
	assert.Equal(t, time.Duration(0), policy.ResetOffset())
	assert.Equal(t, time.UTC, policy.Location())
}

func TestValidateQuotaPolicyRejectsBadValues(t *testing.T) {
	cases := map[string]func(*QuotaPolicy){
		"zero limit":       func(p *QuotaPolicy) { p.DailyLimitLiters = 0 },
		"threshold":        func(p *QuotaPolicy) { p.WarningThreshold = 1.5 },
		"reset time":       func(p *QuotaPolicy) { p.ResetTime = "25:00" },
		"timezone":         func(p *QuotaPolicy) { p.Timezone = "Mars/Olympus" },
		"retention":        func(p *QuotaPolicy) { p.RetentionDays = 0 },
		"attempts":         func(p *QuotaPolicy) { p.MaxAttempts = 0 },
		"receipt template": func(p *QuotaPolicy) { p.ReceiptTemplate = " " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			policy := DefaultQuotaPolicy()
			mutate(&policy)
			assert.Error(t, ValidateQuotaPolicy(policy))
		})
	}
}

func TestResetOffsetParsesClock(t *testing.T) {
	policy := DefaultQuotaPolicy()
	policy.ResetTime = "04:30"
	assert.Equal(t, 4*time.Hour+30*time.Minute, policy.ResetOffset())
}

func TestLitersToMLRounds(t *testing.T) {
	assert.Equal(t, int64(700), LitersToML(0.7))
	assert.Equal(t, int64(333), LitersToML(0.3333))
	assert.InDelta(t, 0.3, MLToLiters(300), 1e-9)
}

func TestNewQuotaPolicyHolderUsesLegacyEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DAILY_ALCOHOL_LIMIT", "1.5")
	t.Setenv("QUOTA_RESET_TIME", "02:00")

	holder, err := NewQuotaPolicyHolder(zap.NewNop())
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, int64(1500), policy.LimitML())
	assert.Equal(t, 2*time.Hour, policy.ResetOffset())
	assert.Equal(t, 90, policy.RetentionDays)
}

func TestNewQuotaPolicyHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	body := []byte("quota:\n  dailyLimitLiters: 2\n  timezone: Asia/Kolkata\n  refund:\n    restock: true\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quota.yml"), body, 0o600))
	t.Chdir(dir)

	holder, err := NewQuotaPolicyHolder(zap.NewNop())
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, int64(2000), policy.LimitML())
	assert.Equal(t, "Asia/Kolkata", policy.Timezone)
	assert.True(t, policy.Refund.Restock)
	assert.Equal(t, "RCP{YYYY}{MM}{DD}{SEQ4}", policy.ReceiptTemplate)
}
