package mongodb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestWrapErrorClassification(t *testing.T) {
	notFound := WrapError("orders.get", mongo.ErrNoDocuments)
	var repoErr *Error
	if !errors.As(notFound, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found classification, got %v", notFound)
	}

	if err := WrapError("orders.get", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error passthrough, got %v", err)
	}

	plain := WrapError("orders.get", fmt.Errorf("boom"))
	if !errors.As(plain, &repoErr) || repoErr.IsNotFound() || repoErr.IsConflict() || repoErr.IsUnavailable() {
		t.Fatalf("expected unclassified error, got %#v", plain)
	}

	conflict := ConflictError("orders.updateStatus", "status changed")
	if !errors.As(conflict, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict classification")
	}
	if WrapError("noop", nil) != nil {
		t.Fatalf("nil errors must stay nil")
	}
}
