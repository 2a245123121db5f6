package timer_test

import (
	"context"
	"testing"
	"time"

	"github.com/colonyops/chime/internal/core/clock"
	"github.com/colonyops/chime/internal/core/timer"
	"github.com/colonyops/chime/internal/data/db"
	"github.com/colonyops/chime/internal/data/stores"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPersistent(t *testing.T, maxSleep time.Duration) (*timer.Persistent, *stores.KVStore) {
	t.Helper()

	database, err := db.Open(t.TempDir(), db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	store := stores.NewKVStore(database)
	return timer.NewPersistent(store, clock.Real{}, maxSleep, zerolog.Nop()), store
}

func TestPersistent_ArmReplaces(t *testing.T) {
	ctx := context.Background()
	p, _ := newPersistent(t, time.Minute)

	_, ok, err := p.Armed(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	first := time.Date(2025, 1, 16, 8, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	require.NoError(t, p.Arm(ctx, first))
	require.NoError(t, p.Arm(ctx, second))

	at, ok, err := p.Armed(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, second.Equal(at))

	require.NoError(t, p.Cancel(ctx))
	require.NoError(t, p.Cancel(ctx))
	_, ok, err = p.Armed(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPersistent_SharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	p, store := newPersistent(t, time.Minute)

	at := time.Date(2025, 1, 16, 8, 0, 0, 0, time.UTC)
	require.NoError(t, p.Arm(ctx, at))

	other := timer.NewPersistent(store, clock.Real{}, time.Minute, zerolog.Nop())
	got, ok, err := other.Armed(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(got))
}

func TestPersistent_RunFiresOnce(t *testing.T) {
	p, _ := newPersistent(t, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan time.Time, 4)
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, func(_ context.Context, at time.Time) { fired <- at })
	}()

	at := time.Now().Add(30 * time.Millisecond)
	require.NoError(t, p.Arm(context.Background(), at))

	select {
	case got := <-fired:
		assert.True(t, at.UTC().Equal(got))
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not fire")
	}

	_, ok, err := p.Armed(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "fired timer is disarmed")

	last, ok, err := p.LastFired(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.UTC().Equal(last))

	select {
	case <-fired:
		t.Fatal("timer fired twice")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
}

func TestPersistent_LastFiredExpires(t *testing.T) {
	ctx := context.Background()
	p, store := newPersistent(t, time.Minute)

	_, ok, err := p.LastFired(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// as written by an earlier fire, already past its TTL
	require.NoError(t, store.SetTTL(ctx, "timer:fired", time.Now().UTC(), -time.Second))

	n, err := store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, err = p.LastFired(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPersistent_RunPastDeadlineFiresImmediately(t *testing.T) {
	p, _ := newPersistent(t, time.Hour)
	require.NoError(t, p.Arm(context.Background(), time.Now().Add(-time.Minute)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{})
	go func() {
		_ = p.Run(ctx, func(context.Context, time.Time) { close(fired) })
	}()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("overdue timer did not fire")
	}
}

func TestPersistent_CancelPreventsFire(t *testing.T) {
	p, _ := newPersistent(t, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.Arm(context.Background(), time.Now().Add(40*time.Millisecond)))

	fired := make(chan struct{}, 1)
	go func() {
		_ = p.Run(ctx, func(context.Context, time.Time) { fired <- struct{}{} })
	}()

	require.NoError(t, p.Cancel(context.Background()))

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFake(t *testing.T) {
	ctx := context.Background()
	f := &timer.Fake{}

	at := time.Date(2025, 1, 16, 8, 0, 0, 0, time.UTC)
	require.NoError(t, f.Arm(ctx, at))
	require.NoError(t, f.Cancel(ctx))

	_, ok, err := f.Armed(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []time.Time{at}, f.Arms())
	assert.Equal(t, 1, f.Cancels())
}
