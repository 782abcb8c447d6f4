package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipal_Can(t *testing.T) {
	tests := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleCustomer, ManageOrders, false},
		{RoleCustomer, ReadAnyOrder, false},
		{RoleStaff, ManageOrders, true},
		{RoleStaff, ManageVouchers, true},
		{RoleStaff, ViewStatistics, false},
		{RoleAdmin, ViewStatistics, true},
		{RoleAdmin, ManageOrders | ManageVouchers, true},
		{Role("Ghost"), ManageOrders, false},
	}

	for _, tt := range tests {
		p := NewPrincipal("u1", tt.role)
		assert.Equal(t, tt.want, p.Can(tt.cap), "%s/%d", tt.role, tt.cap)
	}
}

func TestPrincipal_Require(t *testing.T) {
	require.ErrorIs(t, NewPrincipal("u1", RoleCustomer).Require(ManageOrders), ErrNoPermissions)
	require.NoError(t, NewPrincipal("s1", RoleStaff).Require(ManageOrders))
}

func TestPrincipal_CanRead(t *testing.T) {
	assert.True(t, NewPrincipal("u1", RoleCustomer).CanRead("u1"))
	assert.False(t, NewPrincipal("u1", RoleCustomer).CanRead("u2"))
	assert.True(t, NewPrincipal("s1", RoleStaff).CanRead("u2"))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("customer")
	require.NoError(t, err)
	assert.Equal(t, RoleCustomer, r)

	r, err = ParseRole("ADMIN")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("root")
	require.Error(t, err)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), NewPrincipal("u1", RoleStaff))
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", p.UserID)
	assert.True(t, p.Can(ManageOrders))
}
