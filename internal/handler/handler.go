// Package handler exposes checkout, orders, vouchers and statistics over
// HTTP with JSON envelopes.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/statistics"
	"github.com/xenking/bistro/internal/domain/voucher"
)

// Handler serves the REST API, delegating business logic to the domain
// services.
type Handler struct {
	orders   *order.Service
	vouchers *voucher.Service
	stats    statistics.Reporter
	auth     *Authenticator
	validate *validator.Validate
	now      func() time.Time
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	orders *order.Service,
	vouchers *voucher.Service,
	stats statistics.Reporter,
	authenticator *Authenticator,
) *Handler {
	return &Handler{
		orders:   orders,
		vouchers: vouchers,
		stats:    stats,
		auth:     authenticator,
		validate: newValidator(),
		now:      time.Now,
	}
}

// Router returns the API routes. Every route requires a bearer token.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, &apiError{Status: http.StatusNotFound, Code: CodeRouteNotFound, Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, &apiError{Status: http.StatusMethodNotAllowed, Code: CodeMethodNotAllowed, Message: "method not allowed"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.auth.Middleware)

		r.Post("/checkout", h.Checkout)
		r.Get("/my-orders/{customerID}", h.CustomerOrders)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{orderID}", h.GetOrder)
			r.Group(func(r chi.Router) {
				r.Use(requireCap(auth.ManageOrders))
				r.Get("/", h.ListOrders)
				r.Patch("/", h.UpdateOrderStatus)
			})
		})

		r.Route("/vouchers", func(r chi.Router) {
			r.Get("/validate", h.ValidateVoucher)
			r.Group(func(r chi.Router) {
				r.Use(requireCap(auth.ManageVouchers))
				r.Get("/", h.ListVouchers)
				r.Post("/", h.CreateVoucher)
				r.Patch("/", h.UpdateVoucher)
				r.Delete("/", h.DeactivateVoucher)
			})
		})

		r.Route("/statistics", func(r chi.Router) {
			r.Use(requireCap(auth.ViewStatistics))
			r.Get("/", h.Summary)
			r.Get("/popular-products", h.PopularProducts)
			r.Get("/popular-users", h.PopularCustomers)
			r.Get("/charts/revenues", h.RevenueChart)
		})
	})
	return r
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer", name)
	}
	return n, nil
}

// queryID returns the required id query parameter.
func queryID(r *http.Request) (string, error) {
	id := r.URL.Query().Get("id")
	if id == "" {
		return "", badRequest("id is required")
	}
	return id, nil
}
