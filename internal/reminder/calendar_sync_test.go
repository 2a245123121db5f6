package reminder

import (
	"context"
	"testing"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/calendar"
	"github.com/colonyops/chime/internal/data/stores"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarSync_Run(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	events := stores.NewCalendarStore(h.db)

	opts := calendar.Options{CreateEvents: true, DeleteOnCompletion: true}
	syncer := NewCalendarSync(h.tasks, events, func() calendar.Options { return opts }, h.clock, zerolog.Nop())

	h.save(t, alarm.Task{ID: "open", Title: "Dentist", Due: alarm.At(baseTime)})
	h.save(t, alarm.Task{ID: "nodue", Title: "Someday"})

	res, err := syncer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, CalendarSyncResult{Upserted: 1}, res)

	res, err = syncer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, CalendarSyncResult{}, res, "unchanged tasks are not rewritten")

	_, err = h.tasks.Complete(ctx, "open")
	require.NoError(t, err)

	res, err = syncer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, CalendarSyncResult{Deleted: 1}, res)

	list, err := events.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
