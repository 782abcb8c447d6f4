package voucher

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator decides whether a customer may redeem a voucher right now.
type Validator struct {
	repo Reader
	now  func() time.Time
}

// NewValidator creates a Validator backed by the given Reader.
func NewValidator(repo Reader) *Validator {
	return &Validator{repo: repo, now: time.Now}
}

// WithReader returns a copy of v that reads through r, typically a
// transaction-scoped reader holding a lock on the voucher row.
func (v *Validator) WithReader(r Reader) *Validator {
	return &Validator{repo: r, now: v.now}
}

// ByCode validates the voucher with the given code for customerID.
func (v *Validator) ByCode(ctx context.Context, code, customerID string) (*Voucher, error) {
	vch, err := v.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, lookupErr(err)
	}
	return v.check(ctx, vch, customerID)
}

// ByID validates the voucher with the given id for customerID.
func (v *Validator) ByID(ctx context.Context, id, customerID string) (*Voucher, error) {
	vch, err := v.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err)
	}
	return v.check(ctx, vch, customerID)
}

// check applies the redemption rules in a fixed order: active, usage limit,
// expiry, then per-customer reuse.
func (v *Validator) check(ctx context.Context, vch *Voucher, customerID string) (*Voucher, error) {
	if !vch.Active {
		return nil, ErrNotFound
	}

	used, err := v.repo.CountUsage(ctx, vch.ID)
	if err != nil {
		return nil, errors.Wrap(err, "count voucher usage")
	}
	if used >= vch.UsageLimit {
		return nil, ErrExhausted
	}

	// Instants compare the same in every zone.
	if vch.ExpiresAt != nil && !v.now().Before(*vch.ExpiresAt) {
		return nil, ErrExpired
	}

	mine, err := v.repo.CountCustomerUsage(ctx, vch.ID, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "count customer voucher usage")
	}
	if mine > 0 {
		return nil, ErrAlreadyUsed
	}

	return vch, nil
}

func lookupErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return errors.Wrap(err, "lookup voucher")
}
