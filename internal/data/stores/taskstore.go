package stores

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/clock"
	"github.com/colonyops/chime/internal/data/db"
	"github.com/google/uuid"
)

// TaskStore implements alarm.Store on SQLite. Queries are answered from an
// in-memory snapshot hydrated by Load; mutations read the task fresh from the
// database, write through, and update the snapshot. One mutex serialises all
// access.
type TaskStore struct {
	db    *db.DB
	clock clock.Clock

	mu     sync.Mutex
	opts   alarm.Options
	loaded bool
	tasks  map[string]alarm.Task
}

var _ alarm.Store = (*TaskStore)(nil)

// NewTaskStore creates a task store computing alarms with opts.
func NewTaskStore(db *db.DB, opts alarm.Options, clk clock.Clock) *TaskStore {
	return &TaskStore{
		db:    db,
		clock: clk,
		opts:  opts,
		tasks: make(map[string]alarm.Task),
	}
}

// SetOptions replaces the alarm computation options, e.g. after a config reload.
func (s *TaskStore) SetOptions(opts alarm.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts
}

// Load replaces the in-memory snapshot with the database contents.
func (s *TaskStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.db.Queries()

	rows, err := q.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	alarmRows, err := q.ListAlarms(ctx)
	if err != nil {
		return fmt.Errorf("load alarms: %w", err)
	}

	byTask := make(map[string][]db.Alarm)
	for _, a := range alarmRows {
		byTask[a.TaskID] = append(byTask[a.TaskID], a)
	}

	tasks := make(map[string]alarm.Task, len(rows))
	for _, row := range rows {
		tasks[row.ID] = rowToTask(row, byTask[row.ID])
	}

	s.tasks = tasks
	s.loaded = true
	return nil
}

// Loaded reports whether Load has completed at least once.
func (s *TaskStore) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// FiringAlarms returns pending alarms with now-grace <= trigger <= now.
func (s *TaskStore) FiringAlarms(_ context.Context, grace time.Duration) ([]alarm.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, alarm.ErrNotLoaded
	}
	return alarm.Firing(s.snapshot(), s.opts, s.clock.Now(), grace), nil
}

// NextAlarm returns the earliest pending trigger strictly after now.
func (s *TaskStore) NextAlarm(_ context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return time.Time{}, false, alarm.ErrNotLoaded
	}
	next, ok := alarm.NextWake(s.snapshot(), s.opts, s.clock.Now())
	return next, ok, nil
}

// Pending returns every pending alarm in trigger order.
func (s *TaskStore) Pending(_ context.Context) ([]alarm.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, alarm.ErrNotLoaded
	}
	return alarm.Pending(s.snapshot(), s.opts), nil
}

// SnoozeAlarm snoozes an alarm for minutes.
func (s *TaskStore) SnoozeAlarm(ctx context.Context, taskID, alarmID string, minutes uint) (bool, error) {
	return s.mutate(ctx, taskID, func(t *alarm.Task, now time.Time) (bool, error) {
		_, changed, err := t.Snooze(alarmID, time.Duration(minutes)*time.Minute, now)
		return changed, err
	})
}

// DismissAlarm permanently acknowledges an alarm.
func (s *TaskStore) DismissAlarm(ctx context.Context, taskID, alarmID string) (bool, error) {
	return s.mutate(ctx, taskID, func(t *alarm.Task, now time.Time) (bool, error) {
		return t.Dismiss(alarmID, now)
	})
}

// Complete marks a task completed. Returns false when it already was.
func (s *TaskStore) Complete(ctx context.Context, taskID string) (bool, error) {
	return s.mutate(ctx, taskID, func(t *alarm.Task, _ time.Time) (bool, error) {
		if t.Completed {
			return false, nil
		}
		t.Completed = true
		return true, nil
	})
}

// Upsert creates or replaces a task and its alarms. Tasks and alarms without
// ids get new ones. Acknowledgements and snoozes of an existing task survive.
func (s *TaskStore) Upsert(ctx context.Context, t alarm.Task) (alarm.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return alarm.Task{}, fmt.Errorf("task title is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	for i := range t.Alarms {
		if t.Alarms[i].ID == "" {
			t.Alarms[i].ID = uuid.NewString()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t.UpdatedAt = s.clock.Now().UTC()
	createdAt := t.UpdatedAt
	stored, storedCreatedAt, err := s.read(ctx, t.ID)
	switch {
	case err == nil:
		createdAt = storedCreatedAt
		t.MergeState(stored)
	case !errors.Is(err, alarm.ErrTaskNotFound):
		return alarm.Task{}, err
	}

	if err := s.save(ctx, t, createdAt); err != nil {
		return alarm.Task{}, err
	}
	return t, nil
}

// Delete removes a task and its alarms. Returns false when it did not exist.
func (s *TaskStore) Delete(ctx context.Context, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.db.Queries().DeleteTask(ctx, taskID)
	if err != nil {
		return false, fmt.Errorf("delete task %s: %w", taskID, err)
	}
	delete(s.tasks, taskID)
	return n > 0, nil
}

// Get returns a task read from the database.
func (s *TaskStore) Get(ctx context.Context, taskID string) (alarm.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, _, err := s.read(ctx, taskID)
	return t, err
}

// List returns all loaded tasks ordered by id.
func (s *TaskStore) List(_ context.Context) ([]alarm.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, alarm.ErrNotLoaded
	}
	return s.snapshot(), nil
}

func (s *TaskStore) mutate(ctx context.Context, taskID string, fn func(*alarm.Task, time.Time) (bool, error)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, createdAt, err := s.read(ctx, taskID)
	if err != nil {
		return false, err
	}

	now := s.clock.Now().UTC()
	changed, err := fn(&t, now)
	if err != nil {
		return false, err
	}
	if !changed {
		s.tasks[t.ID] = t
		return false, nil
	}

	t.UpdatedAt = now
	if err := s.save(ctx, t, createdAt); err != nil {
		return false, err
	}
	return true, nil
}

// read loads one task from the database. Caller holds s.mu.
func (s *TaskStore) read(ctx context.Context, taskID string) (alarm.Task, time.Time, error) {
	q := s.db.Queries()

	row, err := q.GetTask(ctx, taskID)
	if err != nil {
		if IsNotFoundError(err) {
			return alarm.Task{}, time.Time{}, fmt.Errorf("%w: %s", alarm.ErrTaskNotFound, taskID)
		}
		return alarm.Task{}, time.Time{}, fmt.Errorf("get task %s: %w", taskID, err)
	}

	alarms, err := q.ListTaskAlarms(ctx, taskID)
	if err != nil {
		return alarm.Task{}, time.Time{}, fmt.Errorf("get alarms for %s: %w", taskID, err)
	}

	return rowToTask(row, alarms), time.Unix(0, row.CreatedAt), nil
}

// save writes a task and replaces its alarms in one transaction. Caller holds s.mu.
func (s *TaskStore) save(ctx context.Context, t alarm.Task, createdAt time.Time) error {
	row, alarms := taskToRows(t, createdAt)

	err := s.db.WithTx(ctx, func(q *db.Queries) error {
		if err := q.UpsertTask(ctx, row); err != nil {
			return err
		}
		if err := q.DeleteTaskAlarms(ctx, t.ID); err != nil {
			return err
		}
		for _, a := range alarms {
			if err := q.InsertAlarm(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}

	s.tasks[t.ID] = t
	return nil
}

func (s *TaskStore) snapshot() []alarm.Task {
	ids := slices.Sorted(maps.Keys(s.tasks))
	out := make([]alarm.Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.tasks[id])
	}
	return out
}

// IsTransient reports whether a store error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, alarm.ErrNotLoaded) || IsBusyError(err)
}
