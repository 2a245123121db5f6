package reminder

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/clock"
	"github.com/colonyops/chime/internal/core/config"
	"github.com/colonyops/chime/internal/core/eventbus"
	"github.com/colonyops/chime/internal/core/jobs"
	"github.com/colonyops/chime/internal/core/notify"
	"github.com/colonyops/chime/pkg/iojson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.Load("", t.TempDir())
	require.NoError(t, err)
	cfg.Reminders.Timezone = "UTC"
	cfg.Jobs.InitialBackoff = time.Millisecond
	cfg.Jobs.MaxBackoff = 5 * time.Millisecond
	cfg.Timer.MaxSleep = 10 * time.Millisecond
	return cfg
}

func newApp(t *testing.T) (*App, *clock.Fake) {
	t.Helper()
	return openApp(t, testConfig(t))
}

func openApp(t *testing.T, cfg *config.Config) (*App, *clock.Fake) {
	t.Helper()

	clk := clock.NewFake(baseTime)
	app, err := Open(context.Background(), cfg, clk, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	return app, clk
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestApp_SaveTaskArmsTimer(t *testing.T) {
	app, _ := newApp(t)
	ctx := waitCtx(t)

	at := baseTime.Add(time.Hour)
	_, err := app.SaveTask(ctx, alarm.Task{Title: "Meeting", Alarms: []alarm.Alarm{{Trigger: alarm.Absolute(at)}}})
	require.NoError(t, err)

	armed, ok, err := app.Timer.Armed(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(armed))
}

func TestApp_TimerFiredPostsNotification(t *testing.T) {
	app, clk := newApp(t)
	ctx := waitCtx(t)

	task, err := app.SaveTask(ctx, alarm.Task{Title: "Meeting", Alarms: []alarm.Alarm{{Trigger: alarm.Absolute(baseTime.Add(time.Hour))}}})
	require.NoError(t, err)

	clk.Advance(time.Hour)
	h, err := app.OnTimerFired(ctx, baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))

	shown, err := app.Notifications.List(ctx)
	require.NoError(t, err)
	require.Len(t, shown, 1)
	assert.Equal(t, task.Alarms[0].ID, shown[0].AlarmID)

	_, ok, err := app.Timer.Armed(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "nothing left to wait for")
}

func TestApp_BootRecoveryAfterRestart(t *testing.T) {
	cfg := testConfig(t)
	ctx := waitCtx(t)

	first, _ := openApp(t, cfg)
	at := baseTime.Add(3 * time.Hour)
	_, err := first.SaveTask(ctx, alarm.Task{
		Title:  "Meeting",
		Due:    alarm.At(baseTime.Add(5 * time.Hour)),
		Alarms: []alarm.Alarm{{Trigger: alarm.Absolute(at)}},
	})
	require.NoError(t, err)

	before, ok, err := first.Timer.Armed(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, at.Equal(before))

	// the platform drops pending timers on reboot
	require.NoError(t, first.Timer.Cancel(ctx))
	require.NoError(t, first.Close())

	second, _ := openApp(t, cfg)
	h, err := second.OnBoot(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))

	var res WakeResult
	require.NoError(t, json.Unmarshal(h.Output(), &res))
	assert.Empty(t, res.Fired)
	require.NotNil(t, res.NextWake)
	assert.True(t, before.Equal(*res.NextWake))

	after, ok, err := second.Timer.Armed(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, before.Equal(after))
}

func TestApp_ConcurrentFiringPostsOnce(t *testing.T) {
	app, clk := newApp(t)
	ctx := waitCtx(t)

	task, err := app.SaveTask(ctx, alarm.Task{Title: "Meeting", Alarms: []alarm.Alarm{{Trigger: alarm.Absolute(baseTime.Add(time.Hour))}}})
	require.NoError(t, err)
	clk.Advance(time.Hour)

	handles := make(chan *jobs.Handle, 8)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			var (
				h   *jobs.Handle
				err error
			)
			if i%2 == 0 {
				h, err = app.OnTimerFired(ctx, baseTime.Add(time.Hour))
			} else {
				h, err = app.Refresh(ctx)
			}
			assert.NoError(t, err)
			handles <- h
		})
	}
	wg.Wait()
	close(handles)

	for h := range handles {
		if h != nil {
			// replaced runs end cancelled
			_ = h.Wait(ctx)
		}
	}
	app.Jobs.Wait()

	shown, err := app.Notifications.List(ctx)
	require.NoError(t, err)
	require.Len(t, shown, 1)
	assert.Equal(t, task.Alarms[0].ID, shown[0].AlarmID)
}

func TestApp_NotificationActionDismiss(t *testing.T) {
	app, clk := newApp(t)
	ctx := waitCtx(t)

	task, err := app.SaveTask(ctx, alarm.Task{Title: "Meeting", Alarms: []alarm.Alarm{{Trigger: alarm.Absolute(baseTime.Add(time.Minute))}}})
	require.NoError(t, err)
	alarmID := task.Alarms[0].ID

	clk.Advance(time.Minute)
	h, err := app.Refresh(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))

	h, err = app.OnNotificationAction(ctx, ActionPayload{Action: notify.ActionDismiss, TaskID: task.ID, AlarmID: alarmID})
	require.NoError(t, err)
	assert.Equal(t, ActionKey(alarmID), h.Key)
	require.NoError(t, h.Wait(ctx))
	assert.JSONEq(t, `{"changed":true}`, string(h.Output()))

	shown, err := app.Notifications.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, shown)
}

func TestApp_ReimportKeepsDismissedAlarm(t *testing.T) {
	app, clk := newApp(t)
	ctx := waitCtx(t)

	file := TaskFile{Tasks: []TaskEntry{{ID: "rent", Title: "Pay rent", Due: "2025-01-15T10:05:00Z"}}}
	_, err := app.ImportTasks(ctx, file)
	require.NoError(t, err)

	clk.Advance(5 * time.Minute)
	require.NoError(t, app.Tasks.Load(ctx))
	firing, err := app.Tasks.FiringAlarms(ctx, app.Config().Grace())
	require.NoError(t, err)
	require.Len(t, firing, 1)
	alarmID := firing[0].AlarmID

	h, err := app.OnNotificationAction(ctx, ActionPayload{Action: notify.ActionDismiss, TaskID: "rent", AlarmID: alarmID})
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))

	_, err = app.ImportTasks(ctx, file)
	require.NoError(t, err)

	require.NoError(t, app.Tasks.Load(ctx))
	firing, err = app.Tasks.FiringAlarms(ctx, app.Config().Grace())
	require.NoError(t, err)
	assert.Empty(t, firing)
}

func TestApp_MalformedActionFailsWithoutRetry(t *testing.T) {
	app, _ := newApp(t)
	ctx := waitCtx(t)

	h, err := app.OnNotificationAction(ctx, ActionPayload{Action: notify.ActionSnooze, TaskID: "t", AlarmID: "a"})
	require.NoError(t, err)

	err = h.Wait(ctx)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Equal(t, jobs.StateFailed, h.State())
	assert.Equal(t, 1, h.Attempts())
}

func TestApp_CompleteTaskRemovesNotification(t *testing.T) {
	app, _ := newApp(t)
	ctx := waitCtx(t)

	task, err := app.SaveTask(ctx, alarm.Task{Title: "Now", Due: alarm.At(baseTime)})
	require.NoError(t, err)

	shown, err := app.Notifications.List(ctx)
	require.NoError(t, err)
	require.Len(t, shown, 1, "implicit due alarm fires on save")

	changed, err := app.CompleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	shown, err = app.Notifications.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, shown)
}

func TestApp_DeleteTask(t *testing.T) {
	app, _ := newApp(t)
	ctx := waitCtx(t)

	task, err := app.SaveTask(ctx, alarm.Task{Title: "Later", Alarms: []alarm.Alarm{{Trigger: alarm.Absolute(baseTime.Add(time.Hour))}}})
	require.NoError(t, err)

	deleted, err := app.DeleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok, err := app.Timer.Armed(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApp_MigrateLegacy(t *testing.T) {
	app, _ := newApp(t)
	ctx := waitCtx(t)

	path := app.Config().LegacyTasksPath()
	require.NoError(t, iojson.WriteFile(path, TaskFile{Tasks: []TaskEntry{{Title: "Legacy", Due: "2025-01-20"}}}))

	h, err := app.MigrateLegacy(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))

	assert.FileExists(t, filepath.Join(filepath.Dir(path), "tasks.json.migrated"))

	require.NoError(t, app.Tasks.Load(ctx))
	tasks, err := app.Tasks.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Legacy", tasks[0].Title)
}

func TestApp_ApplyConfig(t *testing.T) {
	app, _ := newApp(t)
	ctx := waitCtx(t)

	reloaded := make(chan *config.Config, 1)
	app.Bus.SubscribeConfigReloaded(func(p eventbus.ConfigReloadedPayload) { reloaded <- p.Config })

	_, err := app.SaveTask(ctx, alarm.Task{Title: "Due later", Due: alarm.At(baseTime.Add(time.Hour))})
	require.NoError(t, err)

	pending, err := app.Tasks.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	next := *app.Config()
	next.Reminders.AutoReminders = false
	app.ApplyConfig(&next)

	select {
	case got := <-reloaded:
		assert.False(t, got.Reminders.AutoReminders)
	case <-ctx.Done():
		t.Fatal("config.reloaded not published")
	}

	pending, err = app.Tasks.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.False(t, app.Config().Reminders.AutoReminders)
}

func TestApp_Serve(t *testing.T) {
	app, clk := newApp(t)
	ctx := waitCtx(t)

	_, err := app.SaveTask(ctx, alarm.Task{Title: "Meeting", Alarms: []alarm.Alarm{{Trigger: alarm.Absolute(baseTime.Add(time.Hour))}}})
	require.NoError(t, err)

	serveCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- app.Serve(serveCtx, "") }()

	clk.Advance(time.Hour)

	require.Eventually(t, func() bool {
		shown, err := app.Notifications.List(ctx)
		return err == nil && len(shown) == 1
	}, 3*time.Second, 10*time.Millisecond)

	stop()
	require.NoError(t, <-done)
}
