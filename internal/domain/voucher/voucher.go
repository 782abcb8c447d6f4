// Package voucher validates discount vouchers and manages their lifecycle.
package voucher

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported voucher discount strategies.
type DiscountType string

const (
	// Percent removes a percentage of the order subtotal.
	Percent DiscountType = "Percent"
	// FixedAmount removes a fixed currency amount from the order subtotal.
	FixedAmount DiscountType = "Fixed Amount"
)

// ParseDiscountType accepts the stored names plus the compact "fixed" and
// "percent" spellings.
func ParseDiscountType(s string) (DiscountType, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "percent", "percentage":
		return Percent, nil
	case "fixedamount", "fixed":
		return FixedAmount, nil
	default:
		return "", errors.Wrapf(ErrInvalidInput, "unknown discount type %q", s)
	}
}

var (
	// ErrNotFound is returned when a voucher does not exist or was deactivated.
	ErrNotFound = errors.New("voucher not found")
	// ErrExhausted is returned when non-rejected orders already reached the
	// voucher's usage limit.
	ErrExhausted = errors.New("voucher usage limit reached")
	// ErrExpired is returned once the voucher's expiry instant has passed.
	ErrExpired = errors.New("voucher expired")
	// ErrAlreadyUsed is returned when the customer already redeemed the voucher.
	ErrAlreadyUsed = errors.New("voucher already used")
	// ErrInvalidAmount is returned for a non-positive amount or a percentage
	// above 100.
	ErrInvalidAmount = errors.New("invalid voucher amount")
	// ErrCodeTaken is returned when another voucher already uses the code.
	ErrCodeTaken = errors.New("voucher code already exists")
	// ErrInvalidInput is returned for malformed voucher fields other than the
	// amount.
	ErrInvalidInput = errors.New("invalid voucher")
)

// Voucher is a discount code redeemable a limited number of times.
//
// Usage is never stored on the voucher. It is the number of non-rejected
// orders referencing it.
type Voucher struct {
	ID         string
	Code       string
	Type       DiscountType
	Amount     decimal.Decimal
	ExpiresAt  *time.Time
	UsageLimit int
	Active     bool
	CreatedAt  time.Time
}

// NormalizeCode trims and upper-cases a voucher code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Input carries the editable voucher fields.
type Input struct {
	Code       string
	Type       DiscountType
	Amount     decimal.Decimal
	ExpiresAt  *time.Time
	UsageLimit int
}

// Normalize validates in and returns it with the code normalized.
func (in Input) Normalize() (Input, error) {
	in.Code = NormalizeCode(in.Code)
	if in.Code == "" {
		return in, errors.Wrap(ErrInvalidInput, "code is required")
	}
	if in.UsageLimit <= 0 {
		return in, errors.Wrap(ErrInvalidInput, "usage limit must be positive")
	}
	if !in.Amount.IsPositive() {
		return in, ErrInvalidAmount
	}
	switch in.Type {
	case Percent:
		if in.Amount.GreaterThan(decimal.NewFromInt(100)) {
			return in, ErrInvalidAmount
		}
	case FixedAmount:
	default:
		return in, errors.Wrapf(ErrInvalidInput, "unknown discount type %q", in.Type)
	}
	return in, nil
}

// ListParams pages through vouchers, newest first.
type ListParams struct {
	Skip       int
	Limit      int
	ActiveOnly bool
}

// Reader provides the lookups voucher validation needs.
type Reader interface {
	// FindByCode returns ErrNotFound when no voucher has the normalized code.
	FindByCode(ctx context.Context, code string) (*Voucher, error)
	// FindByID returns ErrNotFound when no voucher has the id.
	FindByID(ctx context.Context, id string) (*Voucher, error)
	// CountUsage counts non-rejected orders referencing the voucher.
	CountUsage(ctx context.Context, voucherID string) (int, error)
	// CountCustomerUsage counts the customer's non-rejected orders
	// referencing the voucher.
	CountCustomerUsage(ctx context.Context, voucherID, customerID string) (int, error)
}

// Repository provides voucher persistence for administration.
type Repository interface {
	Reader
	Create(ctx context.Context, v *Voucher) error
	Update(ctx context.Context, v *Voucher) error
	Deactivate(ctx context.Context, id string) error
	List(ctx context.Context, params ListParams) ([]Voucher, int, error)
}
