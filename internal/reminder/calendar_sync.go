package reminder

import (
	"context"
	"fmt"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/calendar"
	"github.com/colonyops/chime/internal/core/clock"
	"github.com/colonyops/chime/internal/core/logging"
	"github.com/rs/zerolog"
)

// TaskLister reads the current task set.
type TaskLister interface {
	Load(ctx context.Context) error
	List(ctx context.Context) ([]alarm.Task, error)
}

// CalendarSyncResult is the job output of a calendar sync.
type CalendarSyncResult struct {
	Upserted int `json:"upserted"`
	Deleted  int `json:"deleted"`
}

// CalendarSync mirrors tasks with due dates into the calendar store.
type CalendarSync struct {
	tasks  TaskLister
	events calendar.Store
	opts   func() calendar.Options
	clock  clock.Clock
	log    zerolog.Logger
}

// NewCalendarSync creates a calendar sync. opts is read on every run.
func NewCalendarSync(tasks TaskLister, events calendar.Store, opts func() calendar.Options, clk clock.Clock, log zerolog.Logger) *CalendarSync {
	return &CalendarSync{
		tasks:  tasks,
		events: events,
		opts:   opts,
		clock:  clk,
		log:    logging.Component(log, "calendar-sync"),
	}
}

// Run brings the calendar in line with the task store.
func (c *CalendarSync) Run(ctx context.Context) (CalendarSyncResult, error) {
	if err := c.tasks.Load(ctx); err != nil {
		return CalendarSyncResult{}, fmt.Errorf("load store: %w", err)
	}
	tasks, err := c.tasks.List(ctx)
	if err != nil {
		return CalendarSyncResult{}, err
	}
	existing, err := c.events.List(ctx)
	if err != nil {
		return CalendarSyncResult{}, err
	}

	upserts, deletes := calendar.Plan(tasks, existing, c.opts(), c.clock.Now())

	var result CalendarSyncResult
	for _, e := range upserts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := c.events.Upsert(ctx, e); err != nil {
			return result, err
		}
		result.Upserted++
	}
	for _, id := range deletes {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		deleted, err := c.events.Delete(ctx, id)
		if err != nil {
			return result, err
		}
		if deleted {
			result.Deleted++
		}
	}

	c.log.Debug().Int("upserted", result.Upserted).Int("deleted", result.Deleted).Msg("calendar synced")
	return result, nil
}
