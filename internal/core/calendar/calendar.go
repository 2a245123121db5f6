// Package calendar mirrors open tasks with due dates as calendar events.
package calendar

import (
	"context"
	"time"

	"github.com/colonyops/chime/internal/core/alarm"
)

// Event is the calendar entry created for a task.
type Event struct {
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	StartsAt  time.Time `json:"starts_at"`
	AllDay    bool      `json:"all_day"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists calendar events keyed by task.
type Store interface {
	Upsert(ctx context.Context, e Event) error
	Delete(ctx context.Context, taskID string) (bool, error)
	List(ctx context.Context) ([]Event, error)
}

// Options mirror the calendar config section.
type Options struct {
	CreateEvents       bool
	DeleteOnCompletion bool
}

// Plan returns the events to upsert and the task ids whose events should be
// removed so that the calendar reflects tasks.
//
// Open tasks with a due date get an event when CreateEvents is set. Events of
// completed tasks are removed when DeleteOnCompletion is set. Events of
// deleted tasks, or tasks that lost their due date, are always removed.
func Plan(tasks []alarm.Task, existing []Event, opts Options, now time.Time) ([]Event, []string) {
	current := make(map[string]Event, len(existing))
	for _, e := range existing {
		current[e.TaskID] = e
	}

	var (
		upserts []Event
		deletes []string
		seen    = make(map[string]bool, len(tasks))
	)

	for _, t := range tasks {
		seen[t.ID] = true
		ev, exists := current[t.ID]

		switch {
		case t.Completed:
			if exists && opts.DeleteOnCompletion {
				deletes = append(deletes, t.ID)
			}
		case t.Due == nil:
			if exists {
				deletes = append(deletes, t.ID)
			}
		case opts.CreateEvents:
			want := Event{
				TaskID:   t.ID,
				Title:    t.Title,
				StartsAt: t.Due.Time,
				AllDay:   t.Due.AllDay,
			}
			if exists && ev.Title == want.Title && ev.StartsAt.Equal(want.StartsAt) && ev.AllDay == want.AllDay {
				continue
			}
			want.UpdatedAt = now
			upserts = append(upserts, want)
		}
	}

	for _, e := range existing {
		if !seen[e.TaskID] {
			deletes = append(deletes, e.TaskID)
		}
	}

	return upserts, deletes
}
