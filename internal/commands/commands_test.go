package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/clock"
	"github.com/colonyops/chime/internal/core/config"
	"github.com/colonyops/chime/internal/core/jobs"
	"github.com/colonyops/chime/internal/core/notify"
	"github.com/colonyops/chime/internal/reminder"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

var baseTime = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

type harness struct {
	flags *Flags
	app   *reminder.App
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()

	dir := t.TempDir()
	cfg, err := config.Load("", dir)
	require.NoError(t, err)
	cfg.Reminders.Timezone = "UTC"
	cfg.Jobs.InitialBackoff = time.Millisecond
	cfg.Jobs.MaxBackoff = 5 * time.Millisecond
	for _, fn := range mutate {
		fn(cfg)
	}

	app, err := reminder.Open(context.Background(), cfg, clock.NewFake(baseTime), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	return &harness{
		flags: &Flags{DataDir: dir, Config: cfg},
		app:   app,
	}
}

// run executes one CLI invocation against a fresh command tree and returns
// stdout.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	root := &cli.Command{
		Name:           "chime",
		Writer:         &out,
		ErrWriter:      &errOut,
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
	root = NewTaskCmd(h.flags, h.app).Register(root)
	root = NewAlarmCmd(h.flags, h.app).Register(root)
	root = NewRefreshCmd(h.flags, h.app).Register(root)
	root = NewJobsCmd(h.flags, h.app).Register(root)
	root = NewNotificationsCmd(h.flags, h.app).Register(root)
	root = NewCalendarCmd(h.flags, h.app).Register(root)
	root = NewMigrateCmd(h.flags, h.app).Register(root)
	root = NewStatusCmd(h.flags, h.app).Register(root)
	root = NewDoctorCmd(h.flags, h.app).Register(root)
	root = NewConfigValidateCmd(h.flags).Register(root)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := root.Run(ctx, append([]string{"chime"}, args...))
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, args...)
	require.NoError(t, err, "chime %s", strings.Join(args, " "))
	return out
}

func decodeJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestTaskAddAndList(t *testing.T) {
	h := newHarness(t)

	id := strings.TrimSpace(h.mustRun(t, "task", "add", "--title", "Pay rent", "--due", "2025-02-01", "--alarm", "-1h"))
	require.NotEmpty(t, id)

	out := h.mustRun(t, "task", "list")
	assert.Contains(t, out, "Pay rent")
	assert.Contains(t, out, "2025-02-01")

	file := decodeJSON[reminder.TaskFile](t, h.mustRun(t, "task", "list", "--json"))
	require.Len(t, file.Tasks, 1)
	assert.Equal(t, id, file.Tasks[0].ID)
	require.Len(t, file.Tasks[0].Alarms, 1)
	assert.Equal(t, "-1h0m0s", file.Tasks[0].Alarms[0].Trigger)
}

func TestTaskAddInvalidDate(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "task", "add", "--title", "x", "--due", "someday")
	require.Error(t, err)
	assert.True(t, reminder.IsValidationError(err))
}

func TestTaskImport(t *testing.T) {
	h := newHarness(t)

	path := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tasks":[{"title":"One","due":"2025-01-20"},{"title":"Two"}]}`), 0o644))

	out := h.mustRun(t, "task", "import", "-f", path)
	assert.Equal(t, "imported 2 task(s)\n", out)

	file := decodeJSON[reminder.TaskFile](t, h.mustRun(t, "task", "list", "--json"))
	assert.Len(t, file.Tasks, 2)
}

func TestTaskCompleteAndDelete(t *testing.T) {
	h := newHarness(t)

	id := strings.TrimSpace(h.mustRun(t, "task", "add", "--title", "Done soon"))

	assert.Equal(t, "completed "+id+"\n", h.mustRun(t, "task", "complete", id))
	assert.Contains(t, h.mustRun(t, "task", "complete", id), "already completed")
	assert.NotContains(t, h.mustRun(t, "task", "list"), "Done soon")
	assert.Contains(t, h.mustRun(t, "task", "list", "--all"), "completed")

	assert.Equal(t, "deleted "+id+"\n", h.mustRun(t, "task", "delete", id))

	_, err := h.run(t, "task", "delete", id)
	require.Error(t, err)

	_, err = h.run(t, "task", "complete")
	require.Error(t, err)
}

func TestAlarmListAndNext(t *testing.T) {
	h := newHarness(t)

	at := baseTime.Add(2 * time.Hour)
	h.mustRun(t, "task", "add", "--title", "Meeting", "--alarm", at.Format(time.RFC3339))

	pending := decodeJSON[[]alarm.Info](t, h.mustRun(t, "alarm", "list", "--json"))
	require.Len(t, pending, 1)
	assert.True(t, at.Equal(pending[0].TriggerAt))

	next := decodeJSON[nextJSON](t, h.mustRun(t, "alarm", "next", "--json"))
	require.NotNil(t, next.NextAlarm)
	require.NotNil(t, next.Armed)
	assert.Equal(t, at.Format(time.RFC3339), *next.NextAlarm)
	assert.Equal(t, *next.NextAlarm, *next.Armed)

	firing := decodeJSON[[]alarm.Info](t, h.mustRun(t, "alarm", "firing", "--json"))
	assert.Empty(t, firing)
}

// addFiring creates a task whose alarm fired ten minutes ago and returns the
// task and alarm ids.
func addFiring(t *testing.T, h *harness) (string, string) {
	t.Helper()

	h.mustRun(t, "task", "add", "--title", "Call back", "--alarm", baseTime.Add(-10*time.Minute).Format(time.RFC3339))

	firing := decodeJSON[[]alarm.Info](t, h.mustRun(t, "alarm", "firing", "--json"))
	require.Len(t, firing, 1)
	return firing[0].TaskID, firing[0].AlarmID
}

func TestRefreshPostsFiringAlarm(t *testing.T) {
	h := newHarness(t)
	_, alarmID := addFiring(t, h)

	res := decodeJSON[reminder.WakeResult](t, h.mustRun(t, "refresh", "--json"))
	assert.Equal(t, []string{alarmID}, res.Fired)
	assert.Equal(t, 1, res.Posted)
	assert.Nil(t, res.NextWake)

	shown := decodeJSON[[]notify.Notification](t, h.mustRun(t, "notifications", "list", "--json"))
	require.Len(t, shown, 1)
	assert.Equal(t, alarmID, shown[0].AlarmID)
	assert.Equal(t, "Call back", shown[0].Title)
}

func TestAlarmDismiss(t *testing.T) {
	h := newHarness(t)
	taskID, alarmID := addFiring(t, h)

	assert.Equal(t, "dismissed\n", h.mustRun(t, "alarm", "dismiss", taskID, alarmID))
	assert.Equal(t, "nothing to do\n", h.mustRun(t, "alarm", "dismiss", taskID, alarmID))

	shown := decodeJSON[[]notify.Notification](t, h.mustRun(t, "notifications", "list", "--json"))
	assert.Empty(t, shown)
}

func TestAlarmSnooze(t *testing.T) {
	h := newHarness(t)
	taskID, alarmID := addFiring(t, h)

	out := h.mustRun(t, "alarm", "snooze", "--minutes", "15", taskID, alarmID)
	assert.Contains(t, out, "snoozed for 15m")
	assert.Contains(t, out, "next wake:")

	pending := decodeJSON[[]alarm.Info](t, h.mustRun(t, "alarm", "list", "--json"))
	require.Len(t, pending, 1)
	assert.True(t, baseTime.Add(15*time.Minute).Equal(pending[0].TriggerAt))
	assert.Equal(t, "Snoozed for 15m", pending[0].Body)
}

func TestAlarmSnoozeLongUsesConfig(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Reminders.SnoozeLongMinutes = 120 })
	taskID, alarmID := addFiring(t, h)

	assert.Contains(t, h.mustRun(t, "alarm", "snooze", "--long", taskID, alarmID), "snoozed for 120m")
}

func TestAlarmRespondRequiresIDs(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "alarm", "dismiss", "only-task")
	require.Error(t, err)
}

func TestJobsList(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "refresh")

	records := decodeJSON[[]jobs.Record](t, h.mustRun(t, "jobs", "list", "--json"))
	require.NotEmpty(t, records)
	assert.Equal(t, reminder.KeyProcessAlarms, records[0].Key)
	assert.Equal(t, jobs.StateSucceeded, records[0].State)

	assert.Contains(t, h.mustRun(t, "jobs", "list"), reminder.KeyProcessAlarms)
}

func TestCalendarSync(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Calendar.CreateEventsForTasks = true })
	h.mustRun(t, "task", "add", "--title", "Dentist", "--due", "2025-01-20")

	res := decodeJSON[reminder.CalendarSyncResult](t, h.mustRun(t, "calendar", "sync", "--json"))
	assert.Zero(t, res.Upserted, "task add already synced")

	out := h.mustRun(t, "calendar", "list")
	assert.Contains(t, out, "Dentist")
	assert.Contains(t, out, "2025-01-20")
}

func TestMigrateWithoutLegacyFile(t *testing.T) {
	h := newHarness(t)

	assert.Contains(t, h.mustRun(t, "migrate"), "no legacy file")
}

func TestMigrateLegacyFile(t *testing.T) {
	h := newHarness(t)

	legacy := h.app.Config().LegacyTasksPath()
	require.NoError(t, os.WriteFile(legacy, []byte(`{"tasks":[{"title":"Old task"}]}`), 0o644))

	assert.Equal(t, "migrated 1 task(s)\n", h.mustRun(t, "migrate"))
	assert.FileExists(t, legacy+".migrated")
	assert.Contains(t, h.mustRun(t, "task", "list"), "Old task")
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	addFiring(t, h)

	st := decodeJSON[statusJSON](t, h.mustRun(t, "status", "--json"))
	assert.Equal(t, 1, st.Tasks)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 1, st.Firing)
	assert.Equal(t, 1, st.Notifications)
	assert.Nil(t, st.NextAlarm)
	assert.Nil(t, st.LastWake, "timer has not fired")
	assert.True(t, st.AlertsEnabled)

	out := h.mustRun(t, "status")
	assert.Contains(t, out, "Chime Status")
	assert.Contains(t, out, "Pending alarms")
}

func TestConfigValidate(t *testing.T) {
	h := newHarness(t)

	res := decodeJSON[validationJSON](t, h.mustRun(t, "config", "validate", "--format", "json"))
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestConfigValidateInvalid(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Reminders.Timezone = "Mars/Olympus" })

	out, err := h.run(t, "config", "validate", "--format", "json")
	require.Error(t, err)

	res := decodeJSON[validationJSON](t, out)
	assert.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
}

func TestDoctorAutofixRearmsTimer(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "task", "add", "--title", "Later", "--alarm", baseTime.Add(time.Hour).Format(time.RFC3339))

	report := decodeJSON[doctorJSON](t, h.mustRun(t, "doctor", "--format", "json"))
	assert.Zero(t, report.Summary.Failed)

	require.NoError(t, h.app.Timer.Cancel(context.Background()))

	out, err := h.run(t, "doctor", "--format", "json")
	require.Error(t, err)
	report = decodeJSON[doctorJSON](t, out)
	assert.Equal(t, 1, report.Summary.Failed)

	report = decodeJSON[doctorJSON](t, h.mustRun(t, "doctor", "--autofix", "--format", "json"))
	assert.Zero(t, report.Summary.Failed)

	armed, ok, err := h.app.Timer.Armed(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, baseTime.Add(time.Hour).Equal(armed))
}
