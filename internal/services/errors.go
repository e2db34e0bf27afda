package services

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/farmconnect/marketplace/internal/repositories"
)

var (
	// ErrUnauthenticated indicates the caller identity was missing.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInsufficientStock indicates the requested quantity exceeds what the crop has left.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidReference indicates a referenced crop or order is missing or incomplete.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrInvalidTransition indicates the requested status change is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStoreUnavailable indicates the document store failed.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderPermissionDenied indicates the caller does not own the order.
	ErrOrderPermissionDenied = errors.New("order: permission denied")
)

// ErrPartialFailure is matched with errors.Is against a *PartialFailureError.
var ErrPartialFailure = errors.New("partial failure")

// PartialFailureError collects per-item failures from a batch operation.
type PartialFailureError struct {
	Failures map[string]error
}

func (e *PartialFailureError) Error() string {
	ids := slices.Sorted(maps.Keys(e.Failures))
	return fmt.Sprintf("%s: %d item(s) failed [%s]", ErrPartialFailure, len(e.Failures), strings.Join(ids, ", "))
}

// Is reports ErrPartialFailure as the error kind.
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

// Unwrap exposes the individual failures.
func (e *PartialFailureError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, id := range slices.Sorted(maps.Keys(e.Failures)) {
		errs = append(errs, e.Failures[id])
	}
	return errs
}

// mapRepositoryError converts repository failures into service sentinels. notFound selects the
// sentinel used for missing documents.
func mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
