//go:build integration

package idempotency

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreLifecycle(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	store := NewRedisStore(rdb, "idem-test:")
	key := "order-" + time.Now().Format(time.RFC3339Nano)
	t.Cleanup(func() { _ = store.Release(ctx, key) })

	res, err := store.Reserve(ctx, key, "fp", time.Now(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateNew, res.State)

	res, err = store.Reserve(ctx, key, "fp", time.Now(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ReservationStatePending, res.State)

	_, err = store.Reserve(ctx, key, "other", time.Now(), time.Minute)
	assert.ErrorIs(t, err, ErrFingerprintMismatch)

	require.NoError(t, store.SaveResponse(ctx, key, "fp", Response{Status: 201, Body: []byte(`{"id":"ord_1"}`)}, time.Now(), time.Minute))
	res, err = store.Reserve(ctx, key, "fp", time.Now(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateCompleted, res.State)
	assert.Equal(t, 201, res.Record.ResponseStatus)
	assert.JSONEq(t, `{"id":"ord_1"}`, string(res.Record.ResponseBody))
}
