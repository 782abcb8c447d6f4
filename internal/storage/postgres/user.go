package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"

	"github.com/xenking/bistro/internal/domain/auth"
)

// User is an account row. Only seeding and tests write users; the service
// itself reads them through aggregate queries.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      auth.Role
	CreatedAt time.Time
}

// UserRepository writes account rows.
type UserRepository struct {
	q  querier
	qb squirrel.StatementBuilderType
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{q: db.Pool, qb: db.qb}
}

// Upsert inserts u or refreshes the stored name and role.
func (r *UserRepository) Upsert(ctx context.Context, u User) error {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := exec(ctx, r.q, r.qb.
		Insert("users").
		Columns("id", "name", "email", "role", "created_at").
		Values(u.ID, u.Name, u.Email, string(u.Role), createdAt).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role"))
	if err != nil {
		return errors.Wrapf(err, "upsert user %q", u.Email)
	}
	return nil
}
