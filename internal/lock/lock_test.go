package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) *Locker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return New(client, 2*time.Second)
}

func TestAcquireAndRelease(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	lk, ok, err := l.Acquire(ctx, "group-a")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "group-a")
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while first holder is live")

	require.NoError(t, l.Release(ctx, lk))

	_, ok, err = l.Acquire(ctx, "group-a")
	require.NoError(t, err)
	assert.True(t, ok, "lock must be acquirable again after release")
}

func TestReleaseDoesNotStealSomeoneElsesLock(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	lk, ok, err := l.Acquire(ctx, "group-b")
	require.NoError(t, err)
	require.True(t, ok)

	stale := &Lock{key: lk.key, token: "not-the-real-token"}
	require.NoError(t, l.Release(ctx, stale))

	_, ok, err = l.Acquire(ctx, "group-b")
	require.NoError(t, err)
	assert.False(t, ok, "a release with a mismatched token must not delete the live lock")
}

func TestIndependentGroupsDoNotContend(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	_, ok1, err := l.Acquire(ctx, "group-a")
	require.NoError(t, err)
	_, ok2, err := l.Acquire(ctx, "group-b")
	require.NoError(t, err)

	assert.True(t, ok1)
	assert.True(t, ok2)
}
