package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/product"
	"github.com/xenking/bistro/internal/domain/timeframe"
	"github.com/xenking/bistro/internal/domain/voucher"
)

// Error codes returned in the "error" field of the error envelope.
const (
	CodeProductNotFound        = "PRODUCT_NOT_FOUND"
	CodeVoucherNotFound        = "VOUCHER_NOT_FOUND"
	CodeVoucherExpired         = "VOUCHER_EXPIRED"
	CodeVoucherExhausted       = "VOUCHER_EXHAUSTED"
	CodeVoucherAlreadyUsed     = "VOUCHER_ALREADY_USED"
	CodeInvalidVoucherAmount   = "INVALID_VOUCHER_AMOUNT"
	CodeVoucherExisted         = "VOUCHER_EXISTED"
	CodeInvalidCheckoutTime    = "INVALID_CHECKOUT_TIME"
	CodeMissingRejectionReason = "MISSING_REJECTION_REASON"
	CodeNoPermissions          = "NO_PERMISSIONS"
	CodeNotAuthorized          = "NOT_AUTHORIZED"
	CodeOrderNotFound          = "ORDER_NOT_FOUND"
	CodeUpdateStatusFailed     = "UPDATE_STATUS_FAILED"
	CodeBadRequest             = "BAD_REQUEST"
	CodeRouteNotFound          = "NOT_FOUND"
	CodeMethodNotAllowed       = "METHOD_NOT_ALLOWED"
	CodeInternalError          = "INTERNAL_ERROR"
)

const internalErrorMessage = "internal server error"

// apiError is an error already resolved to its HTTP form.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func badRequest(format string, args ...any) error {
	return &apiError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: fmt.Sprintf(format, args...)}
}

var errorTable = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{product.ErrNotFound, http.StatusUnprocessableEntity, CodeProductNotFound, "product not found"},
	{voucher.ErrNotFound, http.StatusBadRequest, CodeVoucherNotFound, "voucher not found"},
	{voucher.ErrExpired, http.StatusBadRequest, CodeVoucherExpired, "voucher expired"},
	{voucher.ErrExhausted, http.StatusBadRequest, CodeVoucherExhausted, "voucher usage limit reached"},
	{voucher.ErrAlreadyUsed, http.StatusBadRequest, CodeVoucherAlreadyUsed, "voucher already used"},
	{voucher.ErrInvalidAmount, http.StatusBadRequest, CodeInvalidVoucherAmount, "invalid voucher amount"},
	{voucher.ErrCodeTaken, http.StatusConflict, CodeVoucherExisted, "voucher code already exists"},
	{order.ErrInvalidCheckoutTime, http.StatusBadRequest, CodeInvalidCheckoutTime, "checkout is closed at this time"},
	{order.ErrMissingRejectionReason, http.StatusBadRequest, CodeMissingRejectionReason, "rejection reason is required"},
	{order.ErrNotFound, http.StatusNotFound, CodeOrderNotFound, "order not found"},
	{order.ErrUpdateStatusFailed, http.StatusNotFound, CodeUpdateStatusFailed, "update status failed"},
	{auth.ErrNoPermissions, http.StatusForbidden, CodeNoPermissions, "no permissions"},
	{auth.ErrUnauthenticated, http.StatusUnauthorized, CodeNotAuthorized, "not authorized"},
}

// badInput lists errors reported as BAD_REQUEST with their own text.
var badInput = []error{
	order.ErrEmptyItems,
	order.ErrInvalidStatus,
	order.ErrInvalidFilter,
	voucher.ErrInvalidInput,
	timeframe.ErrInvalidGranularity,
}

// classify resolves err to its HTTP status and error code. Anything not
// recognized, including context cancellation from storage, is internal.
func classify(err error) apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return *ae
	}

	var notFound *product.NotFoundError
	if errors.As(err, &notFound) {
		return apiError{Status: http.StatusUnprocessableEntity, Code: CodeProductNotFound, Message: notFound.Error()}
	}
	var qty *order.InvalidQuantityError
	if errors.As(err, &qty) {
		return apiError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: qty.Error()}
	}

	for _, row := range errorTable {
		if errors.Is(err, row.target) {
			return apiError{Status: row.status, Code: row.code, Message: row.message}
		}
	}
	for _, target := range badInput {
		if errors.Is(err, target) {
			return apiError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: err.Error()}
		}
	}
	return apiError{Status: http.StatusInternalServerError, Code: CodeInternalError, Message: internalErrorMessage}
}
