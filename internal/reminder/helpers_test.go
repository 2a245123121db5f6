package reminder

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/clock"
	"github.com/colonyops/chime/internal/core/eventbus/testbus"
	"github.com/colonyops/chime/internal/core/notify"
	"github.com/colonyops/chime/internal/core/timer"
	"github.com/colonyops/chime/internal/data/db"
	"github.com/colonyops/chime/internal/data/stores"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

type harness struct {
	db      *db.DB
	tasks   *stores.TaskStore
	shown   *stores.NotifyStore
	clock   *clock.Fake
	timer   *timer.Fake
	bus     *testbus.Bus
	granted atomic.Bool

	scheduler  *Scheduler
	dispatcher *Dispatcher
	wake       *WakeHandler
	actions    *ActionHandler
	boot       *BootRecovery
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	database, err := db.Open(t.TempDir(), db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	h := &harness{
		db:    database,
		clock: clock.NewFake(baseTime),
		timer: &timer.Fake{},
		bus:   testbus.New(t),
		shown: stores.NewNotifyStore(database),
	}
	h.granted.Store(true)

	opts := alarm.Options{
		AutoReminders: true,
		DefaultTime:   alarm.DefaultReminderTime,
		Location:      time.UTC,
	}
	h.tasks = stores.NewTaskStore(database, opts, h.clock)

	log := zerolog.Nop()
	surface := notify.Gate{Surface: h.shown, Granted: h.granted.Load}

	h.scheduler = NewScheduler(h.tasks, h.timer, h.bus.EventBus, log)
	h.dispatcher = NewDispatcher(surface, h.bus.EventBus, h.clock, func() uint { return 60 }, log)
	h.wake = NewWakeHandler(h.tasks, h.scheduler, h.dispatcher, h.bus.EventBus, func() time.Duration { return time.Hour }, log)
	h.actions = NewActionHandler(h.tasks, h.scheduler, h.dispatcher, h.bus.EventBus, log)
	h.boot = NewBootRecovery(h.tasks, h.scheduler, h.wake, log)

	return h
}

func (h *harness) save(t *testing.T, task alarm.Task) alarm.Task {
	t.Helper()
	saved, err := h.tasks.Upsert(context.Background(), task)
	require.NoError(t, err)
	return saved
}

func (h *harness) notifications(t *testing.T) []notify.Notification {
	t.Helper()
	list, err := h.shown.List(context.Background())
	require.NoError(t, err)
	return list
}

func alarmAt(id string, at time.Time) alarm.Alarm {
	return alarm.Alarm{ID: id, Trigger: alarm.Absolute(at)}
}

// seedExample stores a task with an alarm tomorrow morning and a task whose
// alarm fired half an hour ago.
func (h *harness) seedExample(t *testing.T) {
	t.Helper()
	h.save(t, alarm.Task{ID: "A", Title: "Standup", Alarms: []alarm.Alarm{alarmAt("a1", baseTime.Add(22*time.Hour))}})
	h.save(t, alarm.Task{ID: "B", Title: "Call the bank", Alarms: []alarm.Alarm{alarmAt("b1", baseTime.Add(-30*time.Minute))}})
}
