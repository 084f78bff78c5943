package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaguard/internal/clock"
	"github.com/smallbiznis/quotaguard/internal/customer/domain"
	"github.com/smallbiznis/quotaguard/internal/customer/repository"
	"github.com/smallbiznis/quotaguard/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t, &domain.Customer{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    conn,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	return svc, conn
}

func TestEnsureUserCreatesOnce(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	first, created, err := svc.EnsureUser(ctx, domain.EnsureUserRequest{
		UID:         "firebase-1",
		Name:        "Asha",
		PhoneNumber: "+91 (98) 765-43210",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.RoleCustomer, first.Role)
	assert.True(t, first.IsActive)
	assert.Equal(t, "+919876543210", first.PhoneNumber)

	second, created, err := svc.EnsureUser(ctx, domain.EnsureUserRequest{UID: "firebase-1", Name: "Other"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, conn.Model(&domain.Customer{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnsureUserRejectsBlankUID(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.EnsureUser(context.Background(), domain.EnsureUserRequest{UID: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidUID)
}

func TestResolveCustomerByIDUIDAndPhone(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, _, err := svc.EnsureUser(ctx, domain.EnsureUserRequest{UID: "uid-7", PhoneNumber: "+1 555 0100"})
	require.NoError(t, err)

	for _, ref := range []string{c.ID.String(), "uid-7", "+1-555-0100"} {
		got, err := svc.ResolveCustomer(ctx, ref)
		require.NoError(t, err, ref)
		assert.Equal(t, c.ID, got.ID, ref)
	}

	_, err = svc.ResolveCustomer(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveCustomerRejectsInactive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, _, err := svc.EnsureUser(ctx, domain.EnsureUserRequest{UID: "uid-8"})
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, c.ID))

	_, err = svc.ResolveCustomer(ctx, "uid-8")
	assert.ErrorIs(t, err, domain.ErrInactive)

	stored, err := svc.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestResolveCashierRequiresStaff(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, _, err := svc.EnsureUser(ctx, domain.EnsureUserRequest{UID: "till-1"})
	require.NoError(t, err)

	_, err = svc.ResolveCashier(ctx, "till-1")
	assert.ErrorIs(t, err, domain.ErrCashierNotFound)

	_, err = svc.SetRole(ctx, c.ID, domain.RoleCashier)
	require.NoError(t, err)

	cashier, err := svc.ResolveCashier(ctx, "till-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCashier, cashier.Role)

	_, err = svc.SetRole(ctx, c.ID, domain.Role("owner"))
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, _, err := svc.EnsureUser(ctx, domain.EnsureUserRequest{UID: "uid-9"})
	require.NoError(t, err)

	name := "Ravi"
	verified := true
	updated, err := svc.UpdateProfile(ctx, c.ID, domain.UpdateProfileRequest{Name: &name, IDVerified: &verified})
	require.NoError(t, err)
	assert.Equal(t, "Ravi", updated.Name)
	assert.True(t, updated.IDVerified)

	bad := "not-an-email"
	_, err = svc.UpdateProfile(ctx, c.ID, domain.UpdateProfileRequest{Email: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = svc.UpdateProfile(ctx, snowflake.ID(12345), domain.UpdateProfileRequest{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
