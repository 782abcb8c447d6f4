package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/bistro/internal/domain/order"
)

// GetOrder handles GET /api/orders/{orderID}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), principal(r), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, orderResponse{o: o}, "")
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	f, err := parseOrderFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orders, total, err := h.orders.List(r.Context(), principal(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ordersPage(orders, total, normalized(f)), "")
}

// CustomerOrders handles GET /api/my-orders/{customerID}.
func (h *Handler) CustomerOrders(w http.ResponseWriter, r *http.Request) {
	f, err := parseOrderFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	customerID := chi.URLParam(r, "customerID")
	orders, total, err := h.orders.ListByCustomer(r.Context(), principal(r), customerID, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ordersPage(orders, total, normalized(f)), "")
}

// UpdateOrderStatus handles PATCH /api/orders?id=.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req statusRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), principal(r), id, status, req.RejectionReason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, orderResponse{o: o}, msgUpdated)
}

// parseOrderFilter reads the typed order filter from the query string.
// Statuses may be repeated or comma separated; from and to are RFC 3339.
func parseOrderFilter(r *http.Request) (order.Filter, error) {
	q := r.URL.Query()
	var f order.Filter

	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			if s == "" {
				continue
			}
			st, err := order.ParseStatus(s)
			if err != nil {
				return f, err
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	f.CustomerID = q.Get("customerId")
	f.VoucherID = q.Get("voucherId")
	f.StaffID = q.Get("staffId")

	for name, dst := range map[string]**time.Time{"from": &f.CreatedFrom, "to": &f.CreatedTo} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, badRequest("%s must be an RFC 3339 timestamp", name)
		}
		*dst = &t
	}

	sortBy, err := order.ParseSortField(q.Get("sortBy"))
	if err != nil {
		return f, err
	}
	f.SortBy = sortBy
	if raw := q.Get("asc"); raw != "" {
		asc, err := strconv.ParseBool(raw)
		if err != nil {
			return f, badRequest("asc must be a boolean")
		}
		f.Ascending = asc
	}

	if f.Skip, err = queryInt(r, "skip"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	return f, nil
}

// normalized echoes the paging actually applied. The service already
// accepted f, so Normalize cannot fail here.
func normalized(f order.Filter) order.Filter {
	n, err := f.Normalize()
	if err != nil {
		return f
	}
	return n
}
