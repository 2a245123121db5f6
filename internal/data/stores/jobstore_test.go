package stores

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/colonyops/chime/internal/core/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStore_SaveAndUnfinished(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(openTestDB(t))

	created := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	records := []jobs.Record{
		{ID: "1", Key: "process-alarms", Kind: "wake", State: jobs.StateEnqueued, CreatedAt: created, UpdatedAt: created},
		{ID: "2", Key: "boot-recovery", Kind: "boot", State: jobs.StateRunning, CreatedAt: created.Add(time.Second), UpdatedAt: created},
		{ID: "3", Key: "calendar-sync", Kind: "sync", State: jobs.StateSucceeded, CreatedAt: created.Add(2 * time.Second), UpdatedAt: created},
	}
	for _, r := range records {
		require.NoError(t, store.Save(ctx, r))
	}

	unfinished, err := store.Unfinished(ctx)
	require.NoError(t, err)
	require.Len(t, unfinished, 2)
	assert.Equal(t, "1", unfinished[0].ID)
	assert.Equal(t, "2", unfinished[1].ID)
	assert.JSONEq(t, "null", string(unfinished[0].Payload))

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "3", recent[0].ID)
}

func TestJobStore_UpdateKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(openTestDB(t))

	now := time.Now()
	rec := jobs.Record{
		ID:        "j",
		Key:       "k",
		Kind:      "wake",
		Payload:   json.RawMessage(`{"trigger":"timer"}`),
		State:     jobs.StateEnqueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Save(ctx, rec))

	rec.State = jobs.StateSucceeded
	rec.Attempts = 2
	rec.Output = json.RawMessage(`{"fired":1}`)
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Get(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, jobs.StateSucceeded, got.State)
	assert.Equal(t, 2, got.Attempts)
	assert.JSONEq(t, `{"trigger":"timer"}`, string(got.Payload))
	assert.JSONEq(t, `{"fired":1}`, string(got.Output))
}

func TestJobStore_Prune(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(openTestDB(t))

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Save(ctx, jobs.Record{ID: "old-done", Key: "a", Kind: "k", State: jobs.StateSucceeded, CreatedAt: old, UpdatedAt: old}))
	require.NoError(t, store.Save(ctx, jobs.Record{ID: "old-pending", Key: "b", Kind: "k", State: jobs.StateEnqueued, CreatedAt: old, UpdatedAt: old}))
	require.NoError(t, store.Save(ctx, jobs.Record{ID: "new-done", Key: "c", Kind: "k", State: jobs.StateFailed, CreatedAt: time.Now(), UpdatedAt: time.Now()}))

	n, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.Get(ctx, "old-pending")
	assert.NoError(t, err, "unfinished jobs are never pruned")
}
