package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	txMaxAttempts = 5
	txTimeout     = 15 * time.Second

	tracerName = "github.com/farmconnect/marketplace/internal/platform/firestore"
)

// TxFunc is executed within a Firestore transaction. It may run more than once when
// Firestore retries on contention, so it must not keep side effects outside tx.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// RunTransaction runs fn inside a read-write transaction named op. Errors returned by fn
// reach the caller untouched; backend failures are wrapped with repository semantics.
func RunTransaction(ctx context.Context, client *firestore.Client, op string, fn TxFunc) error {
	if client == nil {
		return WrapError(op, errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError(op, errors.New("firestore: transaction function is nil"))
	}

	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > txTimeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, txTimeout)
		defer cancel()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "firestore.transaction",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.operation", op)),
	)
	defer span.End()

	attempts := 0
	var fnErr error
	err := client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		attempts++
		fnErr = fn(ctx, tx)
		return fnErr
	}, firestore.MaxAttempts(txMaxAttempts))
	span.SetAttributes(attribute.Int("db.firestore.tx_attempts", attempts))

	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	if fnErr != nil && errors.Is(err, fnErr) {
		return err
	}
	return WrapError(op, err)
}
