// Package reminder wires the alarm subsystem together: the entry points
// (timer fire, boot, notification action, refresh) enqueue jobs, and the job
// bodies query or mutate the task store and re-arm the timer.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/calendar"
	"github.com/colonyops/chime/internal/core/clock"
	"github.com/colonyops/chime/internal/core/config"
	"github.com/colonyops/chime/internal/core/eventbus"
	"github.com/colonyops/chime/internal/core/jobs"
	"github.com/colonyops/chime/internal/core/logging"
	"github.com/colonyops/chime/internal/core/notify"
	"github.com/colonyops/chime/internal/core/timer"
	"github.com/colonyops/chime/internal/data/db"
	"github.com/colonyops/chime/internal/data/stores"
	"github.com/rs/zerolog"
)

const sweepInterval = 5 * time.Minute

// App is the central entry point for chime operations. Commands hold a
// pointer to an App that is initialised once configuration is loaded.
type App struct {
	DB            *db.DB
	Tasks         *stores.TaskStore
	KV            *stores.KVStore
	Journal       *stores.JobStore
	Notifications *stores.NotifyStore
	Events        *stores.CalendarStore

	Bus        *eventbus.EventBus
	Jobs       *jobs.Queue
	Timer      *timer.Persistent
	Scheduler  *Scheduler
	Dispatcher *Dispatcher
	Wake       *WakeHandler
	Actions    *ActionHandler
	Boot       *BootRecovery
	Calendar   *CalendarSync
	Importer   *Importer

	clock  clock.Clock
	log    zerolog.Logger
	cfg    atomic.Pointer[config.Config]
	ctx    context.Context
	cancel context.CancelFunc
}

// Open creates and initialises an App.
func Open(ctx context.Context, cfg *config.Config, clk clock.Clock, log zerolog.Logger) (*App, error) {
	a := &App{}
	if err := a.Init(ctx, cfg, clk, log); err != nil {
		return nil, err
	}
	return a, nil
}

// Init opens the database, builds every component and starts the event bus
// and job queue. A corrupted database is moved aside and recreated.
func (a *App) Init(ctx context.Context, cfg *config.Config, clk clock.Clock, log zerolog.Logger) error {
	a.clock = clk
	a.log = logging.Component(log, "chime")
	a.cfg.Store(cfg)

	database, err := openDatabase(cfg.DatabaseDir(), a.log)
	if err != nil {
		return err
	}

	a.DB = database
	a.Tasks = stores.NewTaskStore(database, cfg.AlarmOptions(), clk)
	a.KV = stores.NewKVStore(database)
	a.Journal = stores.NewJobStore(database)
	a.Notifications = stores.NewNotifyStore(database)
	a.Events = stores.NewCalendarStore(database)

	a.Bus = eventbus.New(256)
	eventbus.RegisterDebugLogger(a.Bus, logging.Component(log, "eventbus"))

	a.Jobs = jobs.NewQueue(a.Journal, jobs.Options{
		MaxAttempts:    cfg.Jobs.MaxAttempts,
		InitialBackoff: cfg.Jobs.InitialBackoff,
		MaxBackoff:     cfg.Jobs.MaxBackoff,
	}, log)
	a.Jobs.OnStateChange(func(r jobs.Record) {
		a.Bus.PublishJobStateChanged(eventbus.JobStateChangedPayload{
			JobID: r.ID,
			Key:   r.Key,
			Kind:  r.Kind,
			State: string(r.State),
			Err:   r.Err,
		})
	})

	a.Timer = timer.NewPersistent(a.KV, clk, cfg.Timer.MaxSleep, logging.Component(log, "timer"))

	surface := notify.Gate{
		Surface: a.Notifications,
		Granted: func() bool { return a.Config().Notifications.Enabled },
	}

	a.Scheduler = NewScheduler(a.Tasks, a.Timer, a.Bus, log)
	a.Dispatcher = NewDispatcher(surface, a.Bus, clk, func() uint { return a.Config().Reminders.SnoozeShortMinutes }, log)
	a.Wake = NewWakeHandler(a.Tasks, a.Scheduler, a.Dispatcher, a.Bus, func() time.Duration { return a.Config().Grace() }, log)
	a.Actions = NewActionHandler(a.Tasks, a.Scheduler, a.Dispatcher, a.Bus, log)
	a.Boot = NewBootRecovery(a.Tasks, a.Scheduler, a.Wake, log)
	a.Calendar = NewCalendarSync(a.Tasks, a.Events, a.calendarOptions, clk, log)
	a.Importer = NewImporter(a.Tasks, clk, log)

	a.registerJobs()

	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go a.Bus.Start(a.ctx)
	a.Jobs.Start(a.ctx)

	return nil
}

func openDatabase(dir string, log zerolog.Logger) (*db.DB, error) {
	database, err := db.Open(dir, db.DefaultOpenOptions())
	if err == nil {
		return database, nil
	}
	if !stores.IsCorruptionError(err) {
		return nil, fmt.Errorf("open database: %w", err)
	}

	backup, rerr := stores.RecoverFromCorruption(dir)
	if rerr != nil {
		return nil, fmt.Errorf("open database: %w (recovery failed: %w)", err, rerr)
	}
	log.Warn().Err(err).Str("backup", backup).Msg("database corrupted, starting fresh")

	database, err = db.Open(dir, db.DefaultOpenOptions())
	if err != nil {
		return nil, fmt.Errorf("open database after recovery: %w", err)
	}
	return database, nil
}

// Close stops running jobs and closes the database. Interrupted jobs stay
// in the journal for the daemon to resume.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.Jobs != nil {
		a.Jobs.Wait()
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

// Now returns the current time of the app's clock.
func (a *App) Now() time.Time {
	return a.clock.Now()
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	return a.cfg.Load()
}

// ApplyConfig swaps in a reloaded configuration and refreshes the schedule.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.cfg.Store(cfg)
	a.Tasks.SetOptions(cfg.AlarmOptions())
	a.Bus.PublishConfigReloaded(eventbus.ConfigReloadedPayload{Config: cfg})

	if _, err := a.enqueueWake(a.ctx, TriggerConfig, time.Time{}); err != nil {
		a.log.Error().Err(err).Msg("failed to refresh after config reload")
	}
}

func (a *App) calendarOptions() calendar.Options {
	cfg := a.Config()
	return calendar.Options{
		CreateEvents:       cfg.Calendar.CreateEventsForTasks,
		DeleteOnCompletion: cfg.Calendar.DeleteEventsOnCompletion,
	}
}

// OnTimerFired handles the wake-up timer. A newer run replaces one still in
// flight.
func (a *App) OnTimerFired(ctx context.Context, at time.Time) (*jobs.Handle, error) {
	return a.enqueueWake(ctx, TriggerTimer, at)
}

// Refresh recomputes the schedule and posts anything firing, e.g. when the
// app comes to the foreground.
func (a *App) Refresh(ctx context.Context) (*jobs.Handle, error) {
	return a.enqueueWake(ctx, TriggerRefresh, time.Time{})
}

// OnBoot restores the schedule after the process starts.
func (a *App) OnBoot(ctx context.Context) (*jobs.Handle, error) {
	return a.enqueue(ctx, KeyBootRecovery, jobs.Replace, KindBootRecovery, nil)
}

// OnNotificationAction handles a button press on a notification. The
// payload is validated by the job so malformed input is reported on the
// handle.
func (a *App) OnNotificationAction(ctx context.Context, p ActionPayload) (*jobs.Handle, error) {
	return a.enqueue(ctx, ActionKey(p.AlarmID), jobs.Replace, KindAlarmAction, p)
}

// SyncCalendar mirrors tasks into calendar events.
func (a *App) SyncCalendar(ctx context.Context) (*jobs.Handle, error) {
	return a.enqueue(ctx, KeyCalendarSync, jobs.Replace, KindCalendarSync, nil)
}

// MigrateLegacy imports the legacy tasks file. Only one migration runs at a
// time.
func (a *App) MigrateLegacy(ctx context.Context) (*jobs.Handle, error) {
	return a.enqueue(ctx, KeyMigrateLegacy, jobs.Keep, KindMigrateLegacy, MigratePayload{Path: a.Config().LegacyTasksPath()})
}

func (a *App) enqueueWake(ctx context.Context, trigger Trigger, at time.Time) (*jobs.Handle, error) {
	return a.enqueue(ctx, KeyProcessAlarms, jobs.Replace, KindProcessAlarms, WakePayload{Trigger: trigger, At: at})
}

func (a *App) enqueue(ctx context.Context, key string, policy jobs.Policy, kind string, payload any) (*jobs.Handle, error) {
	req, err := jobs.NewRequest(kind, payload)
	if err != nil {
		return nil, err
	}
	return a.Jobs.EnqueueUnique(ctx, key, policy, req)
}

// SaveTask creates or updates a task, then waits for the schedule to catch up.
func (a *App) SaveTask(ctx context.Context, t alarm.Task) (alarm.Task, error) {
	saved, err := a.Tasks.Upsert(ctx, t)
	if err != nil {
		return alarm.Task{}, err
	}
	return saved, a.afterMutation(ctx)
}

// CompleteTask marks a task completed; its alarms stop firing.
func (a *App) CompleteTask(ctx context.Context, taskID string) (bool, error) {
	changed, err := a.Tasks.Complete(ctx, taskID)
	if err != nil {
		return false, err
	}
	if changed {
		a.removeNotifications(ctx, taskID)
	}
	return changed, a.afterMutation(ctx)
}

// DeleteTask removes a task and its alarms.
func (a *App) DeleteTask(ctx context.Context, taskID string) (bool, error) {
	deleted, err := a.Tasks.Delete(ctx, taskID)
	if err != nil {
		return false, err
	}
	if deleted {
		a.removeNotifications(ctx, taskID)
	}
	return deleted, a.afterMutation(ctx)
}

// ImportTasks upserts a task file, then waits for the schedule to catch up.
func (a *App) ImportTasks(ctx context.Context, file TaskFile) (ImportResult, error) {
	res, err := a.Importer.Import(ctx, file)
	if err != nil {
		return res, err
	}
	return res, a.afterMutation(ctx)
}

func (a *App) removeNotifications(ctx context.Context, taskID string) {
	shown, err := a.Notifications.List(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to list notifications")
		return
	}
	for _, n := range shown {
		if n.TaskID != taskID {
			continue
		}
		if err := a.Dispatcher.Remove(ctx, n.AlarmID); err != nil {
			a.log.Warn().Err(err).Str("alarm_id", n.AlarmID).Msg("failed to remove notification")
		}
	}
}

// afterMutation reschedules and, when enabled, resyncs the calendar, waiting
// for both.
func (a *App) afterMutation(ctx context.Context) error {
	handles := make([]*jobs.Handle, 0, 2)

	h, err := a.Refresh(ctx)
	if err != nil {
		return err
	}
	handles = append(handles, h)

	if opts := a.calendarOptions(); opts.CreateEvents || opts.DeleteOnCompletion {
		h, err := a.SyncCalendar(ctx)
		if err != nil {
			return err
		}
		handles = append(handles, h)
	}

	for _, h := range handles {
		if err := h.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", h.Key, err)
		}
	}
	return nil
}

// Serve runs the daemon: it resumes interrupted jobs, recovers the schedule,
// fires the timer, sweeps old records and reloads configPath on change. It
// blocks until ctx is cancelled.
func (a *App) Serve(ctx context.Context, configPath string) error {
	resumed, err := a.Jobs.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume jobs: %w", err)
	}
	a.log.Info().Int("resumed", len(resumed)).Msg("daemon starting")

	if _, err := a.OnBoot(ctx); err != nil {
		return fmt.Errorf("boot recovery: %w", err)
	}
	if _, err := a.MigrateLegacy(ctx); err != nil {
		return fmt.Errorf("legacy migration: %w", err)
	}

	var wg sync.WaitGroup

	wg.Go(func() {
		err := a.Timer.Run(ctx, func(ctx context.Context, at time.Time) {
			if _, err := a.OnTimerFired(ctx, at); err != nil {
				a.log.Error().Err(err).Msg("failed to enqueue timer run")
			}
		})
		if err != nil {
			a.log.Error().Err(err).Msg("timer stopped")
		}
	})

	wg.Go(func() {
		RunSweeper(ctx, sweepInterval, func(ctx context.Context) (SweepResult, error) {
			return Sweep(ctx, a.Jobs, a.KV, a.Config().Jobs.PruneAfter)
		}, a.log)
	})

	if configPath != "" {
		w, err := config.NewWatcher(configPath, a.Config().DataDir, a.log, a.ApplyConfig)
		if err != nil {
			a.log.Warn().Err(err).Msg("config watcher disabled")
		} else {
			wg.Go(func() {
				if err := w.Run(ctx); err != nil {
					a.log.Error().Err(err).Msg("config watcher stopped")
				}
			})
		}
	}

	<-ctx.Done()
	wg.Wait()
	a.log.Info().Msg("daemon stopped")
	return nil
}
