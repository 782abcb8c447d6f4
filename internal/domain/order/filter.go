package order

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
)

const (
	// DefaultPageSize is used when Filter.Limit is not positive.
	DefaultPageSize = 8
	// MaxPageSize caps Filter.Limit.
	MaxPageSize = 100
)

// SortField is a column orders may be sorted by.
type SortField string

const (
	SortCreatedAt SortField = "created_at"
	SortTotal     SortField = "total"
	SortStatus    SortField = "status"
)

// ParseSortField accepts the field names and their camelCase spellings.
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "")) {
	case "", "createdat":
		return SortCreatedAt, nil
	case "total", "totalprice":
		return SortTotal, nil
	case "status":
		return SortStatus, nil
	default:
		return "", errors.Wrapf(ErrInvalidFilter, "unknown sort field %q", s)
	}
}

// Filter selects a page of orders. Zero fields do not constrain the result.
type Filter struct {
	Statuses    []Status
	CustomerID  string
	VoucherID   string
	StaffID     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	SortBy      SortField
	Ascending   bool
	Skip        int
	Limit       int
}

// Normalize fills defaults and rejects inconsistent filters.
func (f Filter) Normalize() (Filter, error) {
	for _, s := range f.Statuses {
		if !s.Valid() {
			return f, errors.Wrapf(ErrInvalidStatus, "%q", s)
		}
	}
	if f.SortBy == "" {
		f.SortBy = SortCreatedAt
	}
	switch f.SortBy {
	case SortCreatedAt, SortTotal, SortStatus:
	default:
		return f, errors.Wrapf(ErrInvalidFilter, "unknown sort field %q", f.SortBy)
	}
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedTo.Before(*f.CreatedFrom) {
		return f, errors.Wrap(ErrInvalidFilter, "created range is reversed")
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	return f, nil
}
