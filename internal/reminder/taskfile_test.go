package reminder

import (
	"testing"
	"time"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    *alarm.Date
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "2025-01-16", want: alarm.OnDay(2025, time.January, 16)},
		{in: "2025-01-16T09:30:00+01:00", want: alarm.At(time.Date(2025, 1, 16, 8, 30, 0, 0, time.UTC))},
		{in: "tomorrow", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if got != nil {
				assert.Equal(t, tt.in[:10], FormatDate(got)[:10])
			}
		})
	}
}

func TestParseTrigger(t *testing.T) {
	rel, err := ParseTrigger("-15m")
	require.NoError(t, err)
	assert.Equal(t, alarm.Relative(-15*time.Minute), rel)

	abs, err := ParseTrigger("2025-01-16T08:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, alarm.Absolute(time.Date(2025, 1, 16, 8, 0, 0, 0, time.UTC)), abs)

	_, err = ParseTrigger("soon")
	assert.Error(t, err)
}

func TestTaskEntry_Task(t *testing.T) {
	entry := TaskEntry{
		ID:    "t1",
		Title: "Pay rent",
		Due:   "2025-02-01",
		Alarms: []AlarmEntry{
			{ID: "a1", Trigger: "-1h", Description: "Heads up"},
			{ID: "a2", Trigger: "2025-01-31T12:00:00Z", Acknowledged: true},
		},
	}

	task, err := entry.Task(baseTime)
	require.NoError(t, err)

	assert.Equal(t, "t1", task.ID)
	assert.True(t, task.Due.AllDay)
	require.Len(t, task.Alarms, 2)
	assert.Equal(t, alarm.TriggerRelative, task.Alarms[0].Trigger.Kind)
	assert.False(t, task.Alarms[0].Acknowledged())
	assert.True(t, task.Alarms[1].Acknowledged())
}

func TestTaskEntry_TaskInvalid(t *testing.T) {
	tests := []struct {
		name  string
		entry TaskEntry
		field string
	}{
		{name: "no title", entry: TaskEntry{}, field: "title"},
		{name: "bad due", entry: TaskEntry{Title: "x", Due: "later"}, field: "due"},
		{name: "bad start", entry: TaskEntry{Title: "x", Start: "later"}, field: "start"},
		{name: "bad trigger", entry: TaskEntry{Title: "x", Alarms: []AlarmEntry{{Trigger: "?"}}}, field: "alarms[0].trigger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.entry.Task(baseTime)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestEntryFor(t *testing.T) {
	entry := TaskEntry{
		ID:       "t1",
		Title:    "Standup",
		Calendar: "Work",
		Due:      "2025-01-16T09:00:00Z",
		Start:    "2025-01-16",
		Alarms: []AlarmEntry{
			{ID: "a1", Trigger: "-15m"},
			{ID: "a2", Trigger: "2025-01-16T08:00:00Z", Acknowledged: true},
		},
	}

	task, err := entry.Task(baseTime)
	require.NoError(t, err)

	got := EntryFor(task)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, entry.Calendar, got.Calendar)
	assert.Equal(t, entry.Due, got.Due)
	assert.Equal(t, entry.Start, got.Start)
	require.Len(t, got.Alarms, 2)
	assert.Equal(t, "-15m0s", got.Alarms[0].Trigger)
	assert.Equal(t, entry.Alarms[1], got.Alarms[1])

	again, err := got.Task(baseTime)
	require.NoError(t, err)
	assert.Equal(t, task.Alarms[0].Trigger, again.Alarms[0].Trigger)
}

func TestEntryFor_KeepsSnoozeRelation(t *testing.T) {
	task := alarm.Task{
		ID:     "t",
		Title:  "Call",
		Alarms: []alarm.Alarm{{ID: "a1", Trigger: alarm.Absolute(baseTime)}},
	}
	snooze, _, err := task.Snooze("a1", 10*time.Minute, baseTime)
	require.NoError(t, err)

	entry := EntryFor(task)
	require.Len(t, entry.Alarms, 2)
	assert.Equal(t, "a1", entry.Alarms[1].RelatedTo)
	assert.Equal(t, alarm.RelationSnooze, entry.Alarms[1].Relation)

	imported, err := entry.Task(baseTime)
	require.NoError(t, err)
	require.True(t, imported.Alarms[1].IsSnooze())

	// snoozing the imported snooze replaces it
	again, changed, err := imported.Snooze(snooze.ID, time.Hour, baseTime.Add(10*time.Minute))
	require.NoError(t, err)
	require.True(t, changed)
	require.Len(t, imported.Alarms, 2)
	assert.Equal(t, again.ID, imported.Alarms[1].ID)
	assert.Equal(t, "a1", again.RelatedTo)
}
