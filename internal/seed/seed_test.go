package seed

import (
	"context"
	"testing"

	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	"github.com/smallbiznis/quotaguard/internal/billing/billingtest"
	"github.com/smallbiznis/quotaguard/internal/config"
	customerdomain "github.com/smallbiznis/quotaguard/internal/customer/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestEnsureAdminCreatesAndPromotesOnce(t *testing.T) {
	h := billingtest.New(t, config.DefaultQuotaPolicy())
	ctx := context.Background()

	admin, promoted, err := EnsureAdmin(ctx, h.Customers, h.Audit, "root-uid")
	require.NoError(t, err)
	assert.True(t, promoted)
	assert.Equal(t, customerdomain.RoleAdmin, admin.Role)

	again, promoted, err := EnsureAdmin(ctx, h.Customers, h.Audit, "root-uid")
	require.NoError(t, err)
	assert.False(t, promoted)
	assert.Equal(t, admin.ID, again.ID)

	var count int64
	require.NoError(t, h.DB.Model(&auditdomain.AuditLog{}).
		Where("action = ?", auditdomain.ActionCustomerRoleSet).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnsureAdminPromotesExistingCashier(t *testing.T) {
	h := billingtest.New(t, config.DefaultQuotaPolicy())
	cashier := h.Customer(t, "till-1", customerdomain.RoleCashier)

	admin, promoted, err := EnsureAdmin(context.Background(), h.Customers, h.Audit, cashier.UID)
	require.NoError(t, err)
	assert.True(t, promoted)
	assert.Equal(t, cashier.ID, admin.ID)
}

func TestBootstrapSkipsWithoutUID(t *testing.T) {
	h := billingtest.New(t, config.DefaultQuotaPolicy())

	err := Bootstrap(Params{Cfg: config.Config{}, Log: zaptest.NewLogger(t), Customers: h.Customers, Audit: h.Audit})
	require.NoError(t, err)

	var count int64
	require.NoError(t, h.DB.Model(&customerdomain.Customer{}).Count(&count).Error)
	assert.Zero(t, count)
}
