// Package notify describes the user-facing notification surface alarms are
// posted to.
package notify

import (
	"context"
	"errors"
	"hash/fnv"
	"time"
)

// ErrPermissionDenied is returned by a Surface that may not show alerts.
var ErrPermissionDenied = errors.New("notification permission denied")

// ActionKind identifies a notification button.
type ActionKind string

const (
	ActionSnooze  ActionKind = "snooze"
	ActionDismiss ActionKind = "dismiss"
)

// Action is a button on a notification, bound to the alarm it acts on.
type Action struct {
	Kind    ActionKind `json:"kind"`
	Label   string     `json:"label"`
	TaskID  string     `json:"task_id"`
	AlarmID string     `json:"alarm_id"`
	Minutes uint       `json:"minutes,omitempty"`
}

// Notification is a posted alert. Posting an ID that is already shown
// replaces the previous alert.
type Notification struct {
	ID       uint32    `json:"id"`
	TaskID   string    `json:"task_id"`
	AlarmID  string    `json:"alarm_id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Actions  []Action  `json:"actions"`
	PostedAt time.Time `json:"posted_at"`
}

// Surface shows and removes notifications.
type Surface interface {
	Post(ctx context.Context, n Notification) error
	Cancel(ctx context.Context, id uint32) error
	List(ctx context.Context) ([]Notification, error)
}

// ID returns the notification id for an alarm: the 32-bit FNV-1a hash of
// the alarm id, so re-posting an alarm replaces its alert.
func ID(alarmID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(alarmID))
	return h.Sum32()
}

// Gate wraps a Surface and refuses new alerts while Granted reports false.
// Cancel and List always pass through.
type Gate struct {
	Surface
	Granted func() bool
}

func (g Gate) Post(ctx context.Context, n Notification) error {
	if g.Granted != nil && !g.Granted() {
		return ErrPermissionDenied
	}
	return g.Surface.Post(ctx, n)
}
