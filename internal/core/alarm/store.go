package alarm

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrAlarmNotFound  = errors.New("alarm not found")
	ErrInvalidAlarmID = errors.New("invalid alarm id")
	// ErrNotLoaded is returned by queries issued before Load. It is transient.
	ErrNotLoaded = errors.New("task store not loaded")
)

// Store is the single source of truth for tasks and their alarms. All access
// is serialised by the implementation.
type Store interface {
	// Load hydrates the store from persistent storage. Safe to call repeatedly.
	Load(ctx context.Context) error
	// FiringAlarms returns pending alarms triggered within the last grace period.
	FiringAlarms(ctx context.Context, grace time.Duration) ([]Info, error)
	// NextAlarm returns the earliest pending trigger strictly after now.
	NextAlarm(ctx context.Context) (time.Time, bool, error)
	// SnoozeAlarm snoozes an alarm for the given number of minutes. Returns
	// false when the alarm was already acknowledged.
	SnoozeAlarm(ctx context.Context, taskID, alarmID string, minutes uint) (bool, error)
	// DismissAlarm permanently acknowledges an alarm. Returns false when the
	// alarm was already acknowledged.
	DismissAlarm(ctx context.Context, taskID, alarmID string) (bool, error)
}
