package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" Cashier ")
	require.NoError(t, err)
	assert.Equal(t, RoleCashier, role)

	_, err = ParseRole("owner")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestRoleIsStaff(t *testing.T) {
	assert.False(t, RoleCustomer.IsStaff())
	assert.True(t, RoleCashier.IsStaff())
	assert.True(t, RoleAdmin.IsStaff())
	assert.False(t, Role("owner").IsStaff())
}

func TestRoleScanValue(t *testing.T) {
	var r Role
	require.NoError(t, r.Scan([]byte("admin")))
	assert.Equal(t, RoleAdmin, r)
	assert.Error(t, r.Scan("superuser"))
	assert.Error(t, r.Scan(42))

	_, err := Role("").Value()
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+15550100", NormalizePhone(" +1 (555) 0100 "))
	assert.Equal(t, "", NormalizePhone("n/a"))
}
