package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist or cannot
// currently be sold.
var ErrNotFound = errors.New("product not found")

// NotFoundError names the product that could not be priced.
type NotFoundError struct {
	ProductID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// Is makes NotFoundError match ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Product is the price-relevant slice of a catalog item.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Available bool
}

// Reader loads catalog prices. Products missing from storage are omitted
// from the result rather than reported as an error.
type Reader interface {
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
