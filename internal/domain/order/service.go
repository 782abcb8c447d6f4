package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/pricing"
	"github.com/xenking/bistro/internal/domain/timeframe"
	"github.com/xenking/bistro/internal/domain/voucher"
)

// CheckoutRequest holds the input for placing an order.
type CheckoutRequest struct {
	Name            string
	DeliveryAddress string
	DeliveryPhone   string
	IsDelivery      bool
	Note            string
	VoucherID       string
	Items           []pricing.Item
}

// Config holds non-dependency settings of the Service.
type Config struct {
	Zone   timeframe.Zone
	Window AdmissionWindow
	// Meter and Tracer default to no-op implementations.
	Meter  metric.Meter
	Tracer trace.Tracer
}

// Service encapsulates checkout and the order lifecycle.
type Service struct {
	orders   Repository
	vouchers *voucher.Validator
	carts    CartResetter
	notifier Notifier

	zone   timeframe.Zone
	window AdmissionWindow
	now    func() time.Time

	tracer          trace.Tracer
	placed          metric.Int64Counter
	voucherRejected metric.Int64Counter
	statusChanged   metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	orders Repository,
	vouchers *voucher.Validator,
	carts CartResetter,
	notifier Notifier,
	cfg Config,
) (*Service, error) {
	if cfg.Meter == nil {
		cfg.Meter = metricnoop.NewMeterProvider().Meter("")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracenoop.NewTracerProvider().Tracer("")
	}

	s := &Service{
		orders:   orders,
		vouchers: vouchers,
		carts:    carts,
		notifier: notifier,
		zone:     cfg.Zone,
		window:   cfg.Window,
		now:      time.Now,
		tracer:   cfg.Tracer,
	}

	var err error
	if s.placed, err = cfg.Meter.Int64Counter("bistro.orders.placed",
		metric.WithDescription("Orders accepted at checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	if s.voucherRejected, err = cfg.Meter.Int64Counter("bistro.vouchers.rejected",
		metric.WithDescription("Checkouts refused because of the voucher"),
	); err != nil {
		return nil, errors.Wrap(err, "vouchers rejected counter")
	}
	if s.statusChanged, err = cfg.Meter.Int64Counter("bistro.orders.status_changed",
		metric.WithDescription("Order status transitions"),
	); err != nil {
		return nil, errors.Wrap(err, "status changed counter")
	}
	return s, nil
}

// Checkout checks the admission window, validates the voucher and prices the
// items, then persists the order with all of its items in one transaction.
// The voucher row stays locked until the order is committed, so concurrent
// checkouts cannot redeem it beyond its limit.
func (s *Service) Checkout(ctx context.Context, p auth.Principal, req CheckoutRequest) (*Order, error) {
	if p.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}

	now := s.zone.In(s.now())
	if !s.window.Allows(now, req.IsDelivery) {
		return nil, ErrInvalidCheckoutTime
	}

	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}

	ctx, span := s.tracer.Start(ctx, "order.Checkout")
	defer span.End()

	o := &Order{
		ID:              uuid.New().String(),
		CustomerID:      p.UserID,
		Name:            req.Name,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryPhone:   req.DeliveryPhone,
		IsDelivery:      req.IsDelivery,
		Note:            req.Note,
		Status:          Pending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.orders.InTx(ctx, func(tx Tx) error {
		var v *voucher.Voucher
		if req.VoucherID != "" {
			var err error
			v, err = s.vouchers.WithReader(tx.Vouchers()).ByID(ctx, req.VoucherID, p.UserID)
			if err != nil {
				return err
			}
			o.VoucherID = v.ID
			o.VoucherCode = v.Code
		}

		q, err := pricing.Price(ctx, tx.Products(), req.Items, v)
		if err != nil {
			return err
		}
		o.Total = q.Total
		o.Items = make([]Item, len(q.Lines))
		for i, l := range q.Lines {
			o.Items[i] = Item{
				ProductID: l.ProductID,
				Name:      l.Name,
				Quantity:  l.Quantity,
				Price:     l.UnitPrice,
			}
		}

		if err := tx.Insert(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		return nil
	})
	if err != nil {
		if reason := voucherRejection(err); reason != "" {
			s.voucherRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		return nil, errors.Wrap(err, "checkout")
	}

	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("delivery", o.IsDelivery)))
	s.afterCheckout(ctx, o)
	return o, nil
}

// afterCheckout runs side effects of a committed order. Their failures are
// logged and do not fail the checkout.
func (s *Service) afterCheckout(ctx context.Context, o *Order) {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	ids := make([]string, len(o.Items))
	for i, item := range o.Items {
		ids[i] = item.ProductID
	}
	if err := s.carts.MarkPurchased(ctx, o.CustomerID, ids); err != nil {
		lg.Warn("Reset cart failed", zap.Error(err))
	}
	if err := s.notifier.OrderPlaced(ctx, o); err != nil {
		lg.Warn("Order placed notification failed", zap.Error(err))
	}
}

// UpdateStatus moves an order to status on behalf of a staff member. A
// Rejected transition requires a non-blank reason, which is stored verbatim;
// any other transition clears the reason.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, id string, status Status, reason string) (*Order, error) {
	if err := p.Require(auth.ManageOrders); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, errors.Wrapf(ErrInvalidStatus, "%q", status)
	}
	if status == Rejected {
		if strings.TrimSpace(reason) == "" {
			return nil, ErrMissingRejectionReason
		}
	} else {
		reason = ""
	}

	n, err := s.orders.UpdateStatus(ctx, StatusChange{
		OrderID:         id,
		Status:          status,
		RejectionReason: reason,
		StaffID:         p.UserID,
		At:              s.now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	if n != 1 {
		return nil, ErrUpdateStatusFailed
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "reload order")
	}

	s.statusChanged.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	if err := s.notifier.StatusChanged(ctx, o); err != nil {
		zctx.From(ctx).Warn("Status change notification failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
	return o, nil
}

// Get returns an order the caller is allowed to read.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if !p.CanRead(o.CustomerID) {
		return nil, auth.ErrNoPermissions
	}
	return o, nil
}

// ListByCustomer returns a page of one customer's orders.
func (s *Service) ListByCustomer(ctx context.Context, p auth.Principal, customerID string, f Filter) ([]Order, int, error) {
	if !p.CanRead(customerID) {
		return nil, 0, auth.ErrNoPermissions
	}
	f.CustomerID = customerID
	return s.list(ctx, f)
}

// List returns a page of all orders matching f.
func (s *Service) List(ctx context.Context, p auth.Principal, f Filter) ([]Order, int, error) {
	if err := p.Require(auth.ManageOrders); err != nil {
		return nil, 0, err
	}
	return s.list(ctx, f)
}

func (s *Service) list(ctx context.Context, f Filter) ([]Order, int, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, 0, err
	}
	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	return orders, total, nil
}

func voucherRejection(err error) string {
	switch {
	case errors.Is(err, voucher.ErrNotFound):
		return "not_found"
	case errors.Is(err, voucher.ErrExhausted):
		return "exhausted"
	case errors.Is(err, voucher.ErrExpired):
		return "expired"
	case errors.Is(err, voucher.ErrAlreadyUsed):
		return "already_used"
	}
	return ""
}
