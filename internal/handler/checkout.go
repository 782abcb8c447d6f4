package handler

import (
	"net/http"
)

// Checkout handles POST /api/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Checkout(r.Context(), principal(r), req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, orderResponse{o: o}, msgCreated)
}
