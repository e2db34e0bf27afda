//go:build integration

package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/platform/config"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client, err := NewClient(context.Background(), config.RedisConfig{Addr: addr}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLockerExclusive(t *testing.T) {
	client := newTestClient(t)
	locker := NewLocker(client, "test-lock:")
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "sweep", 5*time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "sweep", 5*time.Second)
	assert.True(t, errors.Is(err, ErrLockNotAcquired))

	err = locker.WithLock(ctx, "sweep", time.Second, func(context.Context) error { return nil })
	assert.True(t, errors.Is(err, ErrLockNotAcquired))

	require.NoError(t, lock.Release(ctx))
	assert.True(t, errors.Is(lock.Release(ctx), ErrLockNotHeld))
}

func TestNotificationFanoutDelivers(t *testing.T) {
	client := newTestClient(t)
	fanout := NewNotificationFanout(client)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := fanout.Subscribe(ctx, "buyer-1")
	require.NoError(t, err)
	require.NoError(t, fanout.PublishNotification(ctx, domain.Notification{ID: "n1", UserID: "buyer-1", Type: domain.NotificationOrderShipped}))

	select {
	case got := <-stream:
		assert.Equal(t, "n1", got.ID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for fanout")
	}
}
