// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package locks

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/extmgr/pkg/errutil"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestRedis_LockAndRelease(t *testing.T) {
	srv, client := newRedis(t)

	l := NewRedis(client, WithPollInterval(5*time.Millisecond))
	release, err := l.Lock(context.Background(), "foo")
	require.NoError(t, err)
	assert.True(t, srv.Exists(DefaultRedisPrefix+"foo"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = NewRedis(client, WithPollInterval(5*time.Millisecond)).Lock(ctx, "foo")
	errutil.AssertErrorCode(t, err, CodeLockFailed)

	release()
	assert.False(t, srv.Exists(DefaultRedisPrefix+"foo"))

	release2, err := l.Lock(context.Background(), "foo")
	require.NoError(t, err)
	release2()
}

func TestRedis_ReleaseDoesNotDeleteForeignLock(t *testing.T) {
	srv, client := newRedis(t)

	l := NewRedis(client, WithTTL(time.Second))
	release, err := l.Lock(context.Background(), "foo")
	require.NoError(t, err)

	// Simulate expiry and takeover by another holder.
	require.NoError(t, srv.Set(DefaultRedisPrefix+"foo", "someone-else"))
	release()

	got, err := srv.Get(DefaultRedisPrefix + "foo")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedis_WaiterAcquiresAfterRelease(t *testing.T) {
	_, client := newRedis(t)
	l := NewRedis(client, WithPollInterval(5*time.Millisecond), WithPrefix("test:"))

	release, err := l.Lock(context.Background(), "foo")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := l.Lock(context.Background(), "foo")
		if err == nil {
			r()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("waiter acquired a held lock")
	case <-time.After(30 * time.Millisecond):
	}
	release()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}
