package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/farmconnect/marketplace/internal/platform/requestctx"
	"github.com/farmconnect/marketplace/internal/services"
)

// Error is the JSON error envelope returned by the API.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError constructs a new Error with the provided parameters.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

// WithDetails attaches additional JSON-serialisable metadata.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	e.Details = maps.Clone(details)
	return e
}

// FromServiceError maps a service layer error onto its HTTP representation. Unknown errors
// become a 500 without leaking the underlying message.
func FromServiceError(err error) Error {
	switch {
	case err == nil:
		return NewError("internal_server_error", "internal server error", http.StatusInternalServerError)
	case errors.Is(err, services.ErrUnauthenticated):
		return NewError("unauthenticated", "authentication required", http.StatusUnauthorized)
	case errors.Is(err, services.ErrOrderPermissionDenied):
		return NewError("permission_denied", "only the selling farmer may update this order", http.StatusForbidden)
	case errors.Is(err, services.ErrInsufficientStock):
		return NewError("insufficient_stock", "requested quantity exceeds available stock", http.StatusConflict)
	case errors.Is(err, services.ErrInvalidReference):
		return NewError("invalid_reference", "referenced resource does not exist", http.StatusNotFound)
	case errors.Is(err, services.ErrInvalidTransition):
		return NewError("invalid_transition", "order status transition is not allowed", http.StatusConflict)
	case errors.Is(err, services.ErrOrderInvalidInput), errors.Is(err, services.ErrNotificationInvalidInput),
		errors.Is(err, services.ErrCropInvalidInput):
		return NewError("invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrPartialFailure):
		return NewError("partial_failure", err.Error(), http.StatusMultiStatus)
	case errors.Is(err, services.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return NewError("store_unavailable", "backing store unavailable, retry later", http.StatusServiceUnavailable)
	default:
		return NewError("internal_server_error", "internal server error", http.StatusInternalServerError)
	}
}

// WriteError writes the structured error as JSON to the provided response writer.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	requestID := err.RequestID
	if requestID == "" {
		requestID = sanitize(middleware.GetReqID(ctx), 80)
	}
	traceID := err.TraceID
	if traceID == "" {
		traceID = sanitize(requestctx.TraceID(ctx), 64)
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}
	if requestID != "" {
		payload["request_id"] = requestID
	}
	if traceID != "" {
		payload["trace_id"] = traceID
	}
	for k, v := range err.Details {
		payload[k] = v
	}

	WriteJSON(w, status, payload)
}

// WriteServiceError logs server-side failures and writes the mapped error envelope.
func WriteServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	mapped := FromServiceError(err)
	if mapped.Status >= http.StatusInternalServerError && err != nil {
		requestctx.Logger(ctx).Error("request failed", zap.Error(err))
	}
	WriteError(ctx, w, mapped)
}

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func sanitize(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
