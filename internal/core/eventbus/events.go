// Package eventbus provides a typed publish/subscribe event bus for
// cross-component communication within chime.
package eventbus

import (
	"time"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/config"
)

// Event names a kind of event published on the bus.
type Event string

const (
	// Keep list sorted A-Z
	EventAlarmDismissed     Event = "alarm.dismissed"
	EventAlarmFired         Event = "alarm.fired"
	EventAlarmSnoozed       Event = "alarm.snoozed"
	EventConfigReloaded     Event = "config.reloaded"
	EventJobStateChanged    Event = "job.state-changed"
	EventNotificationPosted Event = "notification.posted"
	EventTimerArmed         Event = "timer.armed"
	EventTimerCancelled     Event = "timer.cancelled"
)

// AlarmFiredPayload is emitted when the wake handler surfaces a firing alarm.
type AlarmFiredPayload struct {
	Alarm alarm.Info
}

// AlarmSnoozedPayload is emitted after an alarm is snoozed.
type AlarmSnoozedPayload struct {
	TaskID  string
	AlarmID string
	Minutes uint
}

// AlarmDismissedPayload is emitted after an alarm is dismissed.
type AlarmDismissedPayload struct {
	TaskID  string
	AlarmID string
}

// TimerArmedPayload is emitted when the wake timer is armed.
type TimerArmedPayload struct {
	At time.Time
}

// TimerCancelledPayload is emitted when no wake is pending.
type TimerCancelledPayload struct{}

// JobStateChangedPayload is emitted on every job state transition.
type JobStateChangedPayload struct {
	JobID string
	Key   string
	Kind  string
	State string
	Err   string
}

// NotificationPostedPayload is emitted after an alert is shown.
type NotificationPostedPayload struct {
	NotificationID uint32
	Alarm          alarm.Info
}

// ConfigReloadedPayload is emitted when configuration is reloaded.
type ConfigReloadedPayload struct {
	Config *config.Config
}
