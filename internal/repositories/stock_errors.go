package repositories

import (
	"errors"
	"fmt"
)

// StockErrorCode enumerates repository error causes for crop stock mutations.
type StockErrorCode string

const (
	// StockErrorUnknown represents an unspecified failure.
	StockErrorUnknown StockErrorCode = "stock_unknown"
	// StockErrorInsufficient indicates the requested quantity exceeds availability.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorCropNotFound indicates the crop document is missing.
	StockErrorCropNotFound StockErrorCode = "stock_crop_not_found"
	// StockErrorInvalidQuantity indicates a non-positive quantity was supplied.
	StockErrorInvalidQuantity StockErrorCode = "stock_invalid_quantity"
	// StockErrorCropUnavailable indicates the listing is no longer open for orders.
	StockErrorCropUnavailable StockErrorCode = "stock_crop_unavailable"
)

// StockError wraps stock-specific failures with machine readable codes.
type StockError struct {
	Op      string
	Code    StockErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, message string, err error) *StockError {
	if message == "" {
		message = string(code)
	}
	return &StockError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// StockErrorCodeOf extracts the code carried by err, if any.
func StockErrorCodeOf(err error) (StockErrorCode, bool) {
	var stockErr *StockError
	if errors.As(err, &stockErr) && stockErr != nil {
		return stockErr.Code, true
	}
	return "", false
}
