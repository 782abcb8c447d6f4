// Package pricing turns requested line items into a charged order total.
package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/product"
	"github.com/xenking/bistro/internal/domain/voucher"
)

var (
	hundred = decimal.NewFromInt(100)
	// cashUnit is the smallest denomination a discounted total is rounded up to.
	cashUnit = decimal.NewFromInt(1000)
	zero     = decimal.Zero
)

// Item is a requested product and quantity.
type Item struct {
	ProductID string
	Quantity  int
}

// Line is a priced line item. UnitPrice is the catalog price at pricing time.
type Line struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Amount returns UnitPrice * Quantity.
func (l Line) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Quote is the result of pricing an order.
type Quote struct {
	Lines    []Line
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Price looks up current prices for items and applies v, which must already
// be validated. Repeated product ids are merged into one line. A product that
// is missing or unavailable fails the whole quote with *product.NotFoundError.
func Price(ctx context.Context, products product.Reader, items []Item, v *voucher.Voucher) (*Quote, error) {
	merged := mergeItems(items)

	ids := make([]string, len(merged))
	for i, it := range merged {
		ids[i] = it.ProductID
	}

	fetched, err := products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]Line, len(merged))
	for i, it := range merged {
		p, ok := byID[it.ProductID]
		if !ok || !p.Available {
			return nil, &product.NotFoundError{ProductID: it.ProductID}
		}
		lines[i] = Line{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  it.Quantity,
			UnitPrice: p.Price,
		}
	}

	subtotal := Subtotal(lines)
	total := ApplyVoucher(subtotal, v)

	return &Quote{
		Lines:    lines,
		Subtotal: subtotal,
		Discount: subtotal.Sub(total),
		Total:    total,
	}, nil
}

// Subtotal returns the unrounded sum of all line amounts.
func Subtotal(lines []Line) decimal.Decimal {
	sum := zero
	for _, l := range lines {
		sum = sum.Add(l.Amount())
	}
	return sum
}

// ApplyVoucher returns the charged total for subtotal. Without a voucher the
// subtotal is returned unchanged. With one, the discounted amount is rounded
// up to the next multiple of 1000 and never drops below zero.
func ApplyVoucher(subtotal decimal.Decimal, v *voucher.Voucher) decimal.Decimal {
	if v == nil {
		return subtotal
	}

	var discounted decimal.Decimal
	switch v.Type {
	case voucher.Percent:
		discounted = subtotal.Mul(hundred.Sub(v.Amount)).Div(hundred)
	case voucher.FixedAmount:
		discounted = subtotal.Sub(v.Amount)
	default:
		return subtotal
	}

	return floorAtZero(ceilToCashUnit(discounted))
}

func ceilToCashUnit(d decimal.Decimal) decimal.Decimal {
	return d.Div(cashUnit).Ceil().Mul(cashUnit)
}

// mergeItems sums quantities of repeated products, keeping first-seen order.
func mergeItems(items []Item) []Item {
	out := make([]Item, 0, len(items))
	idx := make(map[string]int, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
