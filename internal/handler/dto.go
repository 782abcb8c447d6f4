package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/pricing"
	"github.com/xenking/bistro/internal/domain/statistics"
	"github.com/xenking/bistro/internal/domain/voucher"
)

const maxBodyBytes = 1 << 20

// Success messages of the envelope.
const (
	msgCreated = "CREATE_SUCCESSFULLY"
	msgUpdated = "UPDATE_SUCCESSFULLY"
	msgDeleted = "DELETE_SUCCESSFULLY"
)

// mobilePhone matches local mobile numbers, with or without the +84 prefix.
var mobilePhone = regexp.MustCompile(`^(0|\+84)[35789][0-9]{8}$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Empty values pass; presence is checked by required tags.
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || mobilePhone.MatchString(s)
	})
	return v
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	d := json.NewDecoder(body)
	if err := d.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("malformed request body: %s", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return badRequest("%s", formatValidation(ve))
		}
		return errors.Wrap(err, "validate")
	}
	return nil
}

func formatValidation(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		var msg string
		switch fe.Tag() {
		case "required", "required_if":
			msg = fmt.Sprintf("%s is required", field)
		case "max":
			msg = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		case "gt":
			msg = fmt.Sprintf("%s must be greater than %s", field, fe.Param())
		case "uuid":
			msg = fmt.Sprintf("%s must be a valid id", field)
		case "phone":
			msg = fmt.Sprintf("%s must be a mobile phone number", field)
		default:
			msg = fmt.Sprintf("%s is invalid", field)
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}

type checkoutItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity"`
}

type checkoutRequest struct {
	Name            string         `json:"name" validate:"required,max=100"`
	IsDelivery      bool           `json:"isDelivery"`
	DeliveryAddress string         `json:"deliveryAddress" validate:"required_if=IsDelivery true,max=500"`
	DeliveryPhone   string         `json:"deliveryPhone" validate:"required_if=IsDelivery true,phone"`
	Note            string         `json:"note" validate:"max=1000"`
	VoucherID       string         `json:"voucherId" validate:"omitempty,uuid"`
	Items           []checkoutItem `json:"items" validate:"dive"`
}

func (c checkoutRequest) toDomain() order.CheckoutRequest {
	items := make([]pricing.Item, len(c.Items))
	for i, it := range c.Items {
		items[i] = pricing.Item{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return order.CheckoutRequest{
		Name:            c.Name,
		DeliveryAddress: c.DeliveryAddress,
		DeliveryPhone:   c.DeliveryPhone,
		IsDelivery:      c.IsDelivery,
		Note:            c.Note,
		VoucherID:       c.VoucherID,
		Items:           items,
	}
}

type statusRequest struct {
	Status          string `json:"status" validate:"required"`
	RejectionReason string `json:"rejectionReason" validate:"max=500"`
}

type voucherRequest struct {
	Code            string          `json:"code" validate:"required,max=50"`
	DiscountType    string          `json:"discountType" validate:"required"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	ExpiredAt       *time.Time      `json:"expiredAt"`
	TotalUsageLimit int             `json:"totalUsageLimit"`
}

func (v voucherRequest) toDomain() (voucher.Input, error) {
	typ, err := voucher.ParseDiscountType(v.DiscountType)
	if err != nil {
		return voucher.Input{}, err
	}
	return voucher.Input{
		Code:       v.Code,
		Type:       typ,
		Amount:     v.DiscountAmount,
		ExpiresAt:  v.ExpiredAt,
		UsageLimit: v.TotalUsageLimit,
	}, nil
}

type orderResponse struct {
	o *order.Order
}

func (r orderResponse) Encode(e *jx.Encoder) {
	o := r.o
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("customerId")
	e.Str(o.CustomerID)
	encodeOptStr(e, "voucherId", o.VoucherID)
	encodeOptStr(e, "voucherCode", o.VoucherCode)
	encodeOptStr(e, "staffId", o.StaffID)
	e.FieldStart("name")
	e.Str(o.Name)
	e.FieldStart("isDelivery")
	e.Bool(o.IsDelivery)
	e.FieldStart("deliveryAddress")
	e.Str(o.DeliveryAddress)
	e.FieldStart("deliveryPhone")
	e.Str(o.DeliveryPhone)
	e.FieldStart("note")
	e.Str(o.Note)
	e.FieldStart("totalPrice")
	encodeMoney(e, o.Total)
	e.FieldStart("status")
	e.Str(string(o.Status))
	encodeOptStr(e, "rejectionReason", o.RejectionReason)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("price")
		encodeMoney(e, it.Price)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}

type voucherResponse struct {
	v *voucher.Voucher
}

func (r voucherResponse) Encode(e *jx.Encoder) {
	v := r.v
	e.ObjStart()
	e.FieldStart("id")
	e.Str(v.ID)
	e.FieldStart("code")
	e.Str(v.Code)
	e.FieldStart("discountType")
	e.Str(string(v.Type))
	e.FieldStart("discountAmount")
	encodeMoney(e, v.Amount)
	e.FieldStart("expiredAt")
	if v.ExpiresAt == nil {
		e.Null()
	} else {
		encodeTime(e, *v.ExpiresAt)
	}
	e.FieldStart("totalUsageLimit")
	e.Int(v.UsageLimit)
	e.FieldStart("isActive")
	e.Bool(v.Active)
	e.FieldStart("createdAt")
	encodeTime(e, v.CreatedAt)
	e.ObjEnd()
}

// pageResponse is one page of a list endpoint.
type pageResponse struct {
	items []encoder
	total int
	skip  int
	limit int
}

func (p pageResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range p.items {
		it.Encode(e)
	}
	e.ArrEnd()
	e.FieldStart("total")
	e.Int(p.total)
	e.FieldStart("skip")
	e.Int(p.skip)
	e.FieldStart("limit")
	e.Int(p.limit)
	e.ObjEnd()
}

func ordersPage(orders []order.Order, total int, f order.Filter) pageResponse {
	items := make([]encoder, len(orders))
	for i := range orders {
		items[i] = orderResponse{o: &orders[i]}
	}
	return pageResponse{items: items, total: total, skip: f.Skip, limit: f.Limit}
}

func vouchersPage(vouchers []voucher.Voucher, total int, p voucher.ListParams) pageResponse {
	items := make([]encoder, len(vouchers))
	for i := range vouchers {
		items[i] = voucherResponse{v: &vouchers[i]}
	}
	return pageResponse{items: items, total: total, skip: p.Skip, limit: p.Limit}
}

type summaryResponse struct {
	s *statistics.Summary
}

func (r summaryResponse) Encode(e *jx.Encoder) {
	count := func(name string, c statistics.Count) {
		e.FieldStart(name)
		e.ObjStart()
		e.FieldStart("currentCount")
		e.Int64(c.Current)
		e.FieldStart("previousCount")
		e.Int64(c.Previous)
		e.ObjEnd()
	}
	e.ObjStart()
	count("users", r.s.Users)
	count("orders", r.s.Orders)
	e.FieldStart("revenues")
	e.ObjStart()
	e.FieldStart("currentCount")
	encodeMoney(e, r.s.Revenues.Current)
	e.FieldStart("previousCount")
	encodeMoney(e, r.s.Revenues.Previous)
	e.ObjEnd()
	e.ObjEnd()
}

type popularProductsResponse struct {
	p *statistics.PopularProducts
}

func (r popularProductsResponse) Encode(e *jx.Encoder) {
	ranks := func(name string, rs []statistics.ProductRank) {
		e.FieldStart(name)
		e.ArrStart()
		for _, pr := range rs {
			e.ObjStart()
			e.FieldStart("productId")
			e.Str(pr.ProductID)
			e.FieldStart("name")
			e.Str(pr.Name)
			e.FieldStart("totalUnits")
			e.Int64(pr.TotalUnits)
			e.FieldStart("totalSales")
			encodeMoney(e, pr.TotalSales)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ObjStart()
	ranks("highestTotalSoldUnitsProducts", r.p.ByUnits)
	ranks("highestTotalSalesProducts", r.p.BySales)
	e.ObjEnd()
}

type popularCustomersResponse struct {
	p *statistics.PopularCustomers
}

func (r popularCustomersResponse) Encode(e *jx.Encoder) {
	ranks := func(name string, rs []statistics.CustomerRank) {
		e.FieldStart(name)
		e.ArrStart()
		for _, cr := range rs {
			e.ObjStart()
			e.FieldStart("customerId")
			e.Str(cr.CustomerID)
			e.FieldStart("name")
			e.Str(cr.Name)
			e.FieldStart("email")
			e.Str(cr.Email)
			e.FieldStart("createdAt")
			encodeTime(e, cr.JoinedAt)
			e.FieldStart("orderCount")
			e.Int64(cr.OrderCount)
			e.FieldStart("totalOrderValue")
			encodeMoney(e, cr.TotalValue)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ObjStart()
	ranks("newestUsers", r.p.Newest)
	ranks("usersWithHighestTotalOrderValue", r.p.HighestValue)
	e.ObjEnd()
}

type chartResponse []statistics.ChartPoint

func (c chartResponse) Encode(e *jx.Encoder) {
	e.ArrStart()
	for _, p := range c {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(p.Label)
		e.FieldStart("date")
		encodeTime(e, p.Start)
		e.FieldStart("totalSales")
		encodeMoney(e, p.TotalSales)
		e.FieldStart("totalUnits")
		e.Int64(p.TotalUnits)
		e.ObjEnd()
	}
	e.ArrEnd()
}
