package auth

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrUnauthenticated is returned when a request carries no valid identity.
	ErrUnauthenticated = errors.New("not authorized")
	// ErrNoPermissions is returned when the caller's role or ownership does
	// not allow the operation.
	ErrNoPermissions = errors.New("no permissions")
)

// Role is the account role of a caller.
type Role string

const (
	RoleCustomer Role = "User"
	RoleStaff    Role = "Staff"
	RoleAdmin    Role = "Admin"
)

// ParseRole parses a case-insensitive role name. "customer" is accepted as an
// alias of RoleCustomer.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "customer":
		return RoleCustomer, nil
	case "staff":
		return RoleStaff, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return "", errors.Errorf("unknown role %q", s)
	}
}

// Capability is a single permission bit.
type Capability uint8

const (
	// ReadAnyOrder allows reading orders owned by other customers.
	ReadAnyOrder Capability = 1 << iota
	// ManageOrders allows listing all orders and changing their status.
	ManageOrders
	// ManageVouchers allows creating, editing and deactivating vouchers.
	ManageVouchers
	// ViewStatistics allows reading sales statistics.
	ViewStatistics
)

var roleCapabilities = map[Role]Capability{
	RoleCustomer: 0,
	RoleStaff:    ReadAnyOrder | ManageOrders | ManageVouchers,
	RoleAdmin:    ReadAnyOrder | ManageOrders | ManageVouchers | ViewStatistics,
}

// Capabilities returns the capability set granted to the role.
func (r Role) Capabilities() Capability {
	return roleCapabilities[r]
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Role   Role
	caps   Capability
}

// NewPrincipal resolves the role's capabilities once.
func NewPrincipal(userID string, role Role) Principal {
	return Principal{UserID: userID, Role: role, caps: role.Capabilities()}
}

// Can reports whether the principal holds every capability in c.
func (p Principal) Can(c Capability) bool {
	return p.caps&c == c
}

// Require returns ErrNoPermissions unless the principal holds c.
func (p Principal) Require(c Capability) error {
	if !p.Can(c) {
		return ErrNoPermissions
	}
	return nil
}

// CanRead reports whether the principal may read a record owned by ownerID.
func (p Principal) CanRead(ownerID string) bool {
	return p.UserID == ownerID || p.Can(ReadAnyOrder)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
