package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/xenking/bistro/internal/domain/timeframe"
)

func granularity(r *http.Request) (timeframe.Granularity, error) {
	return timeframe.ParseGranularity(r.URL.Query().Get("type"))
}

// Summary handles GET /api/statistics?type=&to=. The to parameter is epoch
// milliseconds and defaults to now.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	g, err := granularity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	to := h.now()
	if raw := r.URL.Query().Get("to"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, badRequest("to must be epoch milliseconds"))
			return
		}
		to = time.UnixMilli(ms)
	}

	s, err := h.stats.Summary(r.Context(), to, g)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, summaryResponse{s: s}, "")
}

// PopularProducts handles GET /api/statistics/popular-products.
func (h *Handler) PopularProducts(w http.ResponseWriter, r *http.Request) {
	g, err := granularity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.stats.PopularProducts(r.Context(), g, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, popularProductsResponse{p: p}, "")
}

// PopularCustomers handles GET /api/statistics/popular-users.
func (h *Handler) PopularCustomers(w http.ResponseWriter, r *http.Request) {
	g, err := granularity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.stats.PopularCustomers(r.Context(), g, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, popularCustomersResponse{p: p}, "")
}

// RevenueChart handles GET /api/statistics/charts/revenues.
func (h *Handler) RevenueChart(w http.ResponseWriter, r *http.Request) {
	g, err := granularity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	points, err := h.stats.RevenueChart(r.Context(), g)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, chartResponse(points), "")
}
