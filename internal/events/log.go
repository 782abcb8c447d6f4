package events

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/order"
)

var _ order.Notifier = LogNotifier{}

// LogNotifier writes order events to the request logger. It is used when no
// broker is configured.
type LogNotifier struct{}

func (LogNotifier) OrderPlaced(ctx context.Context, o *order.Order) error {
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.Stringer("total", o.Total),
	)
	return nil
}

func (LogNotifier) StatusChanged(ctx context.Context, o *order.Order) error {
	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
	)
	return nil
}
