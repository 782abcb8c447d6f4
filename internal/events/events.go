// Package events publishes order lifecycle events.
package events

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/bistro/internal/domain/order"
)

// Event types.
const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderStatusChanged = "order.status_changed"
)

// Encode renders an order event as JSON.
func Encode(typ string, o *order.Order, at time.Time) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("type")
	e.Str(typ)
	e.FieldStart("orderId")
	e.Str(o.ID)
	e.FieldStart("customerId")
	e.Str(o.CustomerID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("total")
	e.Str(o.Total.String())
	if o.VoucherCode != "" {
		e.FieldStart("voucherCode")
		e.Str(o.VoucherCode)
	}
	if o.RejectionReason != "" {
		e.FieldStart("rejectionReason")
		e.Str(o.RejectionReason)
	}
	e.FieldStart("isDelivery")
	e.Bool(o.IsDelivery)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("price")
		e.Str(it.Price.String())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("at")
	e.Str(at.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}
