package handler

import (
	"net/http"
	"strconv"

	"github.com/xenking/bistro/internal/domain/voucher"
)

// ValidateVoucher handles GET /api/vouchers/validate?code=.
func (h *Handler) ValidateVoucher(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, r, badRequest("code is required"))
		return
	}
	v, err := h.vouchers.Check(r.Context(), principal(r), code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, voucherResponse{v: v}, "")
}

// ListVouchers handles GET /api/vouchers.
func (h *Handler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	var (
		params voucher.ListParams
		err    error
	)
	if params.Skip, err = queryInt(r, "skip"); err != nil {
		writeError(w, r, err)
		return
	}
	if params.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("active"); raw != "" {
		if params.ActiveOnly, err = strconv.ParseBool(raw); err != nil {
			writeError(w, r, badRequest("active must be a boolean"))
			return
		}
	}

	vs, total, err := h.vouchers.List(r.Context(), principal(r), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if params.Limit <= 0 {
		params.Limit = voucher.DefaultPageSize
	}
	params.Skip = max(params.Skip, 0)
	writeData(w, http.StatusOK, vouchersPage(vs, total, params), "")
}

// CreateVoucher handles POST /api/vouchers.
func (h *Handler) CreateVoucher(w http.ResponseWriter, r *http.Request) {
	in, err := h.voucherInput(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.vouchers.Create(r.Context(), principal(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, voucherResponse{v: v}, msgCreated)
}

// UpdateVoucher handles PATCH /api/vouchers?id=.
func (h *Handler) UpdateVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := h.voucherInput(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.vouchers.Update(r.Context(), principal(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, voucherResponse{v: v}, msgUpdated)
}

// DeactivateVoucher handles DELETE /api/vouchers?id=. Vouchers are only
// deactivated so past orders keep their reference.
func (h *Handler) DeactivateVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.vouchers.Deactivate(r.Context(), principal(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil, msgDeleted)
}

func (h *Handler) voucherInput(w http.ResponseWriter, r *http.Request) (voucher.Input, error) {
	var req voucherRequest
	if err := h.decode(w, r, &req); err != nil {
		return voucher.Input{}, err
	}
	return req.toDomain()
}
