package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/colonyops/chime/internal/core/calendar"
	"github.com/colonyops/chime/internal/data/db"
)

// CalendarStore implements calendar.Store using SQLite.
type CalendarStore struct {
	db *db.DB
}

var _ calendar.Store = (*CalendarStore)(nil)

func NewCalendarStore(db *db.DB) *CalendarStore {
	return &CalendarStore{db: db}
}

func (s *CalendarStore) Upsert(ctx context.Context, e calendar.Event) error {
	if err := s.db.Queries().UpsertCalendarEvent(ctx, db.CalendarEvent{
		TaskID:    e.TaskID,
		Title:     e.Title,
		StartsAt:  e.StartsAt.UnixNano(),
		AllDay:    e.AllDay,
		UpdatedAt: e.UpdatedAt.UnixNano(),
	}); err != nil {
		return fmt.Errorf("upsert calendar event %s: %w", e.TaskID, err)
	}
	return nil
}

func (s *CalendarStore) Delete(ctx context.Context, taskID string) (bool, error) {
	n, err := s.db.Queries().DeleteCalendarEvent(ctx, taskID)
	if err != nil {
		return false, fmt.Errorf("delete calendar event %s: %w", taskID, err)
	}
	return n > 0, nil
}

func (s *CalendarStore) List(ctx context.Context) ([]calendar.Event, error) {
	rows, err := s.db.Queries().ListCalendarEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}

	out := make([]calendar.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, calendar.Event{
			TaskID:    row.TaskID,
			Title:     row.Title,
			StartsAt:  time.Unix(0, row.StartsAt).UTC(),
			AllDay:    row.AllDay,
			UpdatedAt: time.Unix(0, row.UpdatedAt).UTC(),
		})
	}
	return out, nil
}
