package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"finance-push-go/internal/scheduler"
	"finance-push-go/internal/store"
)

func newLeaser(t *testing.T, mr *miniredis.Miniredis) *store.RedisStore {
	t.Helper()
	s := store.NewRedisStore(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunOnceTakesLease(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, settings(alice, "UTC"))
	mr := miniredis.RunT(t)

	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	f.now = at
	clock := scheduler.WithNow(func() time.Time { return at })

	first := scheduler.NewRunner(f.sched, clock, scheduler.WithLeaser(newLeaser(t, mr), 10*time.Minute))
	second := scheduler.NewRunner(f.sched, clock, scheduler.WithLeaser(newLeaser(t, mr), 10*time.Minute))

	summary, err := first.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Dispatched)

	_, err = second.RunOnce(context.Background())
	require.ErrorIs(t, err, scheduler.ErrLeaseHeld)

	mr.FastForward(11 * time.Minute)
	summary, err = second.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Len(t, f.store.History(), 1)
}

func TestRunOnceWithoutLeaser(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, settings(alice, "UTC"))

	at := time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC)
	f.now = at
	r := scheduler.NewRunner(f.sched, scheduler.WithNow(func() time.Time { return at }))

	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Dispatched)
}

func TestRunOnceLeaseError(t *testing.T) {
	f := newFixture(t, nil)
	mr := miniredis.RunT(t)
	leaser := newLeaser(t, mr)
	mr.Close()

	r := scheduler.NewRunner(f.sched, scheduler.WithLeaser(leaser, time.Minute))
	_, err := r.RunOnce(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, scheduler.ErrLeaseHeld)
}

func TestRunnerStartRunsImmediately(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, settings(alice, "UTC"))

	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	f.now = at
	r := scheduler.NewRunner(f.sched,
		scheduler.WithSpec("@every 1h"),
		scheduler.WithNow(func() time.Time { return at }),
	)

	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Stop)

	require.Eventually(t, func() bool { return len(f.store.History()) == 1 }, 5*time.Second, 20*time.Millisecond)
}

func TestRunnerRejectsInvalidCronExpression(t *testing.T) {
	f := newFixture(t, nil)
	r := scheduler.NewRunner(f.sched, scheduler.WithSpec("every now and then"))
	require.Error(t, r.Start(context.Background()))
}
