package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/colonyops/chime/internal/core/notify"
	"github.com/colonyops/chime/internal/data/db"
)

// NotifyStore is the notification surface backed by SQLite: posted alerts
// are rows keyed by notification id, so re-posting replaces.
type NotifyStore struct {
	db *db.DB
}

var _ notify.Surface = (*NotifyStore)(nil)

// NewNotifyStore creates a new SQLite-backed notification store.
func NewNotifyStore(db *db.DB) *NotifyStore {
	return &NotifyStore{db: db}
}

// Post shows a notification, replacing any with the same id.
func (s *NotifyStore) Post(ctx context.Context, n notify.Notification) error {
	actions, err := json.Marshal(n.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	if err := s.db.Queries().UpsertNotification(ctx, db.Notification{
		ID:       int64(n.ID),
		TaskID:   n.TaskID,
		AlarmID:  n.AlarmID,
		Title:    n.Title,
		Body:     n.Body,
		Actions:  actions,
		PostedAt: n.PostedAt.UnixNano(),
	}); err != nil {
		return fmt.Errorf("post notification %d: %w", n.ID, err)
	}

	return nil
}

// Cancel removes a notification. Unknown ids are ignored.
func (s *NotifyStore) Cancel(ctx context.Context, id uint32) error {
	if err := s.db.Queries().DeleteNotification(ctx, int64(id)); err != nil {
		return fmt.Errorf("cancel notification %d: %w", id, err)
	}
	return nil
}

// List returns visible notifications, newest first.
func (s *NotifyStore) List(ctx context.Context) ([]notify.Notification, error) {
	rows, err := s.db.Queries().ListNotifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	result := make([]notify.Notification, 0, len(rows))
	for _, row := range rows {
		n := notify.Notification{
			ID:       uint32(row.ID),
			TaskID:   row.TaskID,
			AlarmID:  row.AlarmID,
			Title:    row.Title,
			Body:     row.Body,
			PostedAt: time.Unix(0, row.PostedAt),
		}
		if err := json.Unmarshal(row.Actions, &n.Actions); err != nil {
			return nil, fmt.Errorf("decode actions of notification %d: %w", row.ID, err)
		}
		result = append(result, n)
	}

	return result, nil
}
