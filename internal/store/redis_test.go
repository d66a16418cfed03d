package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStore(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestAcquireLeaseIsExclusive(t *testing.T) {
	ctx := context.Background()
	a, mr := newTestRedis(t)
	b := NewRedisStore(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = b.Close() })
	b.owner = "other-instance"

	ok, err := a.AcquireLease(ctx, "tick:2026-10-18T09:00", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.AcquireLease(ctx, "tick:2026-10-18T09:00", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	holder, err := b.LeaseHolder(ctx, "tick:2026-10-18T09:00")
	require.NoError(t, err)
	require.Equal(t, a.owner, holder)
}

func TestLeaseExpires(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedis(t)

	ok, err := s.AcquireLease(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	holder, err := s.LeaseHolder(ctx, "k")
	require.NoError(t, err)
	require.Empty(t, holder)

	ok, err = s.AcquireLease(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAcquireLeaseSurfacesConnectionErrors(t *testing.T) {
	s, mr := newTestRedis(t)
	mr.Close()

	_, err := s.AcquireLease(context.Background(), "k", time.Minute)
	require.Error(t, err)
}
