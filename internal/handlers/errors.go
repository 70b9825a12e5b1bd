package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/acai-counter/pos/internal/platform/httpx"
	"github.com/acai-counter/pos/internal/services"
)

var errorStatus = map[string]int{
	services.CodeInvalidProduct:      http.StatusBadRequest,
	services.CodeWeightRequired:      http.StatusBadRequest,
	services.CodeInvalidQuantity:     http.StatusBadRequest,
	services.CodeValidation:          http.StatusBadRequest,
	services.CodeOptionLimitExceeded: http.StatusBadRequest,
	services.CodeInvalidAddon:        http.StatusBadRequest,
	services.CodeCustomerName:        http.StatusBadRequest,
	services.CodeNoItems:             http.StatusBadRequest,
	services.CodeInvalidPayment:      http.StatusBadRequest,
	services.CodeMaxItemsExceeded:    http.StatusConflict,
	services.CodeCartDisabled:        http.StatusConflict,
	services.CodeOrderNotOpen:        http.StatusConflict,
	services.CodeItemNotFound:        http.StatusNotFound,
	services.CodeOrderNotFound:       http.StatusNotFound,
	services.CodeSaleNotFound:        http.StatusNotFound,
	services.CodeInsufficientCash:    http.StatusUnprocessableEntity,
	services.CodeAdjustment:          http.StatusUnprocessableEntity,
	services.CodeStorage:             http.StatusServiceUnavailable,
}

// writeServiceError renders err with its taxonomy code. Unknown errors become an opaque 500.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	code := services.CodeOf(err)
	status, ok := errorStatus[code]
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError(services.CodeUnknown, "unexpected error", http.StatusInternalServerError))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError(code, err.Error(), status))
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

// storageWarning adds a non-fatal persistence failure to a success payload.
func storageWarning(payload map[string]any, err error) map[string]any {
	if err != nil {
		payload["storageError"] = err.Error()
	}
	return payload
}
