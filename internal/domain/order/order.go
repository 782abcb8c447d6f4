// Package order implements checkout and the order status lifecycle.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/product"
	"github.com/xenking/bistro/internal/domain/voucher"
)

// Status is the lifecycle state of an order.
type Status string

const (
	Pending    Status = "Pending"
	Processing Status = "Processing"
	Rejected   Status = "Rejected"
	Done       Status = "Done"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case Pending, Processing, Rejected, Done:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is expected from s.
func (s Status) IsTerminal() bool {
	return s == Rejected || s == Done
}

// ParseStatus parses an exact status name.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", errors.Wrapf(ErrInvalidStatus, "%q", s)
	}
	return st, nil
}

// Sentinel errors for order operations.
var (
	ErrEmptyItems             = errors.New("items required")
	ErrInvalidCheckoutTime    = errors.New("checkout is closed at this time")
	ErrMissingRejectionReason = errors.New("rejection reason required")
	ErrNotFound               = errors.New("order not found")
	ErrUpdateStatusFailed     = errors.New("update status failed")
	ErrInvalidStatus          = errors.New("invalid order status")
	ErrInvalidFilter          = errors.New("invalid order filter")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// Order is a placed customer order. Total and item prices are fixed at
// checkout and never recomputed from the catalog.
type Order struct {
	ID              string
	CustomerID      string
	VoucherID       string
	VoucherCode     string
	StaffID         string
	Name            string
	DeliveryAddress string
	DeliveryPhone   string
	IsDelivery      bool
	Note            string
	Total           decimal.Decimal
	Status          Status
	RejectionReason string
	Items           []Item
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item is a line of an order with the unit price charged at checkout.
type Item struct {
	ProductID string
	Name      string
	Quantity  int
	Price     decimal.Decimal
}

// StatusChange is a status transition performed by a staff member.
type StatusChange struct {
	OrderID         string
	Status          Status
	RejectionReason string
	StaffID         string
	At              time.Time
}

// Repository persists orders.
type Repository interface {
	// InTx runs fn in a single transaction. The transaction commits only if
	// fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// GetByID returns ErrNotFound when the order does not exist.
	GetByID(ctx context.Context, id string) (*Order, error)
	// List returns one page of orders matching f and the total match count.
	List(ctx context.Context, f Filter) ([]Order, int, error)
	// UpdateStatus applies the change and reports the number of rows affected.
	UpdateStatus(ctx context.Context, c StatusChange) (int64, error)
}

// Tx is the transactional view used by checkout.
type Tx interface {
	Products() product.Reader
	// Vouchers reads vouchers while holding a lock on each voucher read, so
	// usage counts cannot change before the transaction ends.
	Vouchers() voucher.Reader
	// Insert writes the order header together with all of its items.
	Insert(ctx context.Context, o *Order) error
}

// CartResetter clears purchased products from a customer's cart.
type CartResetter interface {
	MarkPurchased(ctx context.Context, customerID string, productIDs []string) error
}

// Notifier receives order lifecycle events, for example to send the
// customer a confirmation notice.
type Notifier interface {
	OrderPlaced(ctx context.Context, o *Order) error
	StatusChanged(ctx context.Context, o *Order) error
}
