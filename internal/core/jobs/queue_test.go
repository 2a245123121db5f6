package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/colonyops/chime/internal/core/jobs"
	"github.com/colonyops/chime/internal/data/db"
	"github.com/colonyops/chime/internal/data/stores"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = jobs.Options{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     5 * time.Millisecond,
}

func newQueue(t *testing.T, opts jobs.Options) (*jobs.Queue, *stores.JobStore) {
	t.Helper()

	database, err := db.Open(t.TempDir(), db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	journal := stores.NewJobStore(database)
	q := jobs.NewQueue(journal, opts, zerolog.Nop())

	t.Cleanup(q.Wait)

	return q, journal
}

func request(t *testing.T, kind string, payload any) jobs.Request {
	t.Helper()
	req, err := jobs.NewRequest(kind, payload)
	require.NoError(t, err)
	return req
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestQueue_NotStarted(t *testing.T) {
	q, _ := newQueue(t, fastRetry)
	q.Register("noop", func(context.Context, json.RawMessage) jobs.Result { return jobs.Success(nil) })

	_, err := q.EnqueueUnique(context.Background(), "k", jobs.Replace, request(t, "noop", nil))
	assert.ErrorIs(t, err, jobs.ErrNotStarted)
}

func TestQueue_UnknownKind(t *testing.T) {
	q, _ := newQueue(t, fastRetry)
	q.Start(context.Background())

	_, err := q.EnqueueUnique(context.Background(), "k", jobs.Replace, request(t, "missing", nil))
	assert.ErrorIs(t, err, jobs.ErrUnknownKind)
}

func TestQueue_Success(t *testing.T) {
	q, journal := newQueue(t, fastRetry)

	type in struct{ N int }
	q.Register("double", func(_ context.Context, payload json.RawMessage) jobs.Result {
		var v in
		if err := json.Unmarshal(payload, &v); err != nil {
			return jobs.Failure(err)
		}
		return jobs.Success(map[string]int{"result": v.N * 2})
	})
	q.Start(context.Background())

	h, err := q.EnqueueUnique(context.Background(), "k", jobs.Replace, request(t, "double", in{N: 21}))
	require.NoError(t, err)
	require.NoError(t, h.Wait(waitCtx(t)))

	assert.Equal(t, jobs.StateSucceeded, h.State())
	assert.Equal(t, 1, h.Attempts())
	assert.JSONEq(t, `{"result":42}`, string(h.Output()))

	rec, err := journal.Get(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateSucceeded, rec.State)
	assert.JSONEq(t, `{"result":42}`, string(rec.Output))
}

func TestQueue_RetryThenSuccess(t *testing.T) {
	q, _ := newQueue(t, fastRetry)

	var calls atomic.Int32
	q.Register("flaky", func(context.Context, json.RawMessage) jobs.Result {
		if calls.Add(1) < 3 {
			return jobs.Retry(errors.New("database is busy"))
		}
		return jobs.Success(nil)
	})
	q.Start(context.Background())

	h, err := q.EnqueueUnique(context.Background(), "k", jobs.Replace, request(t, "flaky", nil))
	require.NoError(t, err)
	require.NoError(t, h.Wait(waitCtx(t)))

	assert.Equal(t, 3, h.Attempts())
	assert.Equal(t, jobs.StateSucceeded, h.State())
}

func TestQueue_RetriesExhausted(t *testing.T) {
	q, journal := newQueue(t, fastRetry)

	boom := errors.New("boom")
	q.Register("always", func(context.Context, json.RawMessage) jobs.Result { return jobs.Retry(boom) })
	q.Start(context.Background())

	h, err := q.EnqueueUnique(context.Background(), "k", jobs.Replace, request(t, "always", nil))
	require.NoError(t, err)

	err = h.Wait(waitCtx(t))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, jobs.StateFailed, h.State())
	assert.Equal(t, fastRetry.MaxAttempts, h.Attempts())

	rec, err := journal.Get(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateFailed, rec.State)
	assert.Contains(t, rec.Err, "boom")
}

func TestQueue_PermanentFailure(t *testing.T) {
	q, _ := newQueue(t, fastRetry)

	q.Register("bad", func(context.Context, json.RawMessage) jobs.Result {
		return jobs.FromError(nil, jobs.Permanent(errors.New("invalid payload")))
	})
	q.Start(context.Background())

	h, err := q.EnqueueUnique(context.Background(), "k", jobs.Replace, request(t, "bad", nil))
	require.NoError(t, err)

	err = h.Wait(waitCtx(t))
	require.Error(t, err)
	assert.True(t, jobs.IsPermanent(err))
	assert.Equal(t, 1, h.Attempts())
}

func TestQueue_PanicFailsJob(t *testing.T) {
	q, _ := newQueue(t, fastRetry)

	q.Register("panics", func(context.Context, json.RawMessage) jobs.Result { panic("kaboom") })
	q.Start(context.Background())

	h, err := q.EnqueueUnique(context.Background(), "k", jobs.Replace, request(t, "panics", nil))
	require.NoError(t, err)

	err = h.Wait(waitCtx(t))
	var pe *jobs.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.Equal(t, jobs.StateFailed, h.State())
}

func TestQueue_ReplaceCancelsPrevious(t *testing.T) {
	q, journal := newQueue(t, fastRetry)

	started := make(chan struct{}, 2)
	var running atomic.Int32
	var overlapped atomic.Bool
	q.Register("block", func(ctx context.Context, payload json.RawMessage) jobs.Result {
		if running.Add(1) > 1 {
			overlapped.Store(true)
		}
		defer running.Add(-1)

		started <- struct{}{}
		if string(payload) == `"first"` {
			<-ctx.Done()
			return jobs.Retry(ctx.Err())
		}
		return jobs.Success(nil)
	})
	q.Start(context.Background())

	first, err := q.EnqueueUnique(context.Background(), "process", jobs.Replace, request(t, "block", "first"))
	require.NoError(t, err)
	<-started

	second, err := q.EnqueueUnique(context.Background(), "process", jobs.Replace, request(t, "block", "second"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	assert.ErrorIs(t, first.Wait(waitCtx(t)), context.Canceled)
	require.NoError(t, second.Wait(waitCtx(t)))

	assert.Equal(t, jobs.StateCancelled, first.State())
	assert.Equal(t, jobs.StateSucceeded, second.State())
	assert.False(t, overlapped.Load(), "jobs under one key must not overlap")

	rec, err := journal.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateCancelled, rec.State)
}

func TestQueue_KeepReturnsActive(t *testing.T) {
	q, _ := newQueue(t, fastRetry)

	release := make(chan struct{})
	var calls atomic.Int32
	q.Register("slow", func(ctx context.Context, _ json.RawMessage) jobs.Result {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return jobs.Success(nil)
	})
	q.Start(context.Background())

	first, err := q.EnqueueUnique(context.Background(), "migrate", jobs.Keep, request(t, "slow", nil))
	require.NoError(t, err)
	second, err := q.EnqueueUnique(context.Background(), "migrate", jobs.Keep, request(t, "slow", nil))
	require.NoError(t, err)
	assert.Same(t, first, second)

	close(release)
	require.NoError(t, first.Wait(waitCtx(t)))
	assert.Equal(t, int32(1), calls.Load())

	third, err := q.EnqueueUnique(context.Background(), "migrate", jobs.Keep, request(t, "slow", nil))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID, "a finished job does not block new work")
	require.NoError(t, third.Wait(waitCtx(t)))
}

func TestQueue_ShutdownLeavesJobResumable(t *testing.T) {
	q, journal := newQueue(t, fastRetry)

	started := make(chan struct{})
	q.Register("block", func(ctx context.Context, _ json.RawMessage) jobs.Result {
		close(started)
		<-ctx.Done()
		return jobs.Retry(ctx.Err())
	})

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	h, err := q.EnqueueUnique(context.Background(), "k", jobs.Replace, request(t, "block", nil))
	require.NoError(t, err)
	<-started

	cancel()
	q.Wait()

	assert.Equal(t, jobs.StateCancelled, h.State())

	rec, err := journal.Get(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateEnqueued, rec.State)
}

func TestQueue_Resume(t *testing.T) {
	q, journal := newQueue(t, fastRetry)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	records := []jobs.Record{
		{ID: "old", Key: "process-alarms", Kind: "echo", Payload: json.RawMessage(`"old"`), State: jobs.StateRunning, CreatedAt: base, UpdatedAt: base},
		{ID: "new", Key: "process-alarms", Kind: "echo", Payload: json.RawMessage(`"new"`), State: jobs.StateEnqueued, CreatedAt: base.Add(time.Second), UpdatedAt: base},
		{ID: "gone", Key: "legacy", Kind: "removed-kind", Payload: json.RawMessage(`null`), State: jobs.StateEnqueued, CreatedAt: base, UpdatedAt: base},
	}
	for _, r := range records {
		require.NoError(t, journal.Save(ctx, r))
	}

	var (
		mu   sync.Mutex
		seen []string
	)
	q.Register("echo", func(_ context.Context, payload json.RawMessage) jobs.Result {
		mu.Lock()
		seen = append(seen, string(payload))
		mu.Unlock()
		return jobs.Success(nil)
	})
	q.Start(ctx)

	handles, err := q.Resume(ctx)
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, "new", handles[0].ID)
	require.NoError(t, handles[0].Wait(waitCtx(t)))

	mu.Lock()
	assert.Equal(t, []string{`"new"`}, seen)
	mu.Unlock()

	old, err := journal.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, jobs.StateCancelled, old.State)

	gone, err := journal.Get(ctx, "gone")
	require.NoError(t, err)
	assert.Equal(t, jobs.StateFailed, gone.State)
	assert.Contains(t, gone.Err, "unknown job kind")

	unfinished, err := journal.Unfinished(ctx)
	require.NoError(t, err)
	assert.Empty(t, unfinished)
}

func TestQueue_OnStateChange(t *testing.T) {
	q, _ := newQueue(t, fastRetry)

	var (
		mu     sync.Mutex
		states []jobs.State
	)
	q.OnStateChange(func(r jobs.Record) {
		mu.Lock()
		states = append(states, r.State)
		mu.Unlock()
	})
	q.Register("noop", func(context.Context, json.RawMessage) jobs.Result { return jobs.Success(nil) })
	q.Start(context.Background())

	h, err := q.EnqueueUnique(context.Background(), "k", jobs.Replace, request(t, "noop", nil))
	require.NoError(t, err)
	require.NoError(t, h.Wait(waitCtx(t)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []jobs.State{jobs.StateRunning, jobs.StateSucceeded}, states)
}

func TestQueue_Prune(t *testing.T) {
	q, journal := newQueue(t, fastRetry)
	ctx := context.Background()

	old := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, journal.Save(ctx, jobs.Record{ID: "a", Key: "k", Kind: "x", State: jobs.StateSucceeded, CreatedAt: old, UpdatedAt: old}))

	n, err := q.Prune(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOptions_Backoff(t *testing.T) {
	opts := jobs.Options{InitialBackoff: time.Second, MaxBackoff: 10 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{20, 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, opts.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestPolicy_String(t *testing.T) {
	assert.Equal(t, "replace", jobs.Replace.String())
	assert.Equal(t, "keep", jobs.Keep.String())
}
