// Package alarm models task alarms and computes which of them are pending,
// firing, or next to wake the process.
//
// Explicit alarms are stored with their task. Implicit alarms are derived on
// every query from a task's due and start dates when auto-reminders are
// enabled; they have no storage of their own and are identified by a
// deterministic id built from (kind, trigger instant, task id).
//
// Per-alarm lifecycle:
//
//	Pending -> Fired (awaiting ack) -> Snoozed (a new Pending alarm)
//	                                -> Dismissed (terminal)
//	Pending -> Dismissed when the owning task is completed or deleted
package alarm

import (
	"time"

	"github.com/google/uuid"
)

// RelationSnooze marks an alarm created by snoozing another alarm.
const RelationSnooze = "SNOOZE"

// TriggerKind selects how an alarm's trigger instant is resolved.
type TriggerKind string

const (
	// TriggerRelative is an offset from the task's due instant, or its start
	// instant when there is no specific due instant.
	TriggerRelative TriggerKind = "relative"
	// TriggerAbsolute is a fixed instant. Snoozes are absolute.
	TriggerAbsolute TriggerKind = "absolute"
)

// Trigger describes when an alarm fires.
type Trigger struct {
	Kind   TriggerKind
	Offset time.Duration // relative only; negative means before the anchor
	At     time.Time     // absolute only
}

// Relative returns a trigger offset from the task's anchor date.
func Relative(offset time.Duration) Trigger {
	return Trigger{Kind: TriggerRelative, Offset: offset}
}

// Absolute returns a trigger at a fixed instant.
func Absolute(at time.Time) Trigger {
	return Trigger{Kind: TriggerAbsolute, At: at.UTC().Truncate(time.Second)}
}

// Alarm is an explicit alarm stored with a task.
type Alarm struct {
	ID             string
	Trigger        Trigger
	Description    string
	AcknowledgedAt *time.Time
	RelatedTo      string // root alarm id for snoozes
	Relation       string
}

// NewAlarm returns an unacknowledged alarm with a fresh id.
func NewAlarm(trigger Trigger) Alarm {
	return Alarm{ID: uuid.NewString(), Trigger: trigger}
}

// Acknowledged reports whether the alarm was dismissed or snoozed.
func (a Alarm) Acknowledged() bool { return a.AcknowledgedAt != nil }

// IsSnooze reports whether the alarm was created by a snooze.
func (a Alarm) IsSnooze() bool { return a.Relation == RelationSnooze }

// Date is a task date: either a specific instant or a whole day.
type Date struct {
	Time   time.Time
	AllDay bool
}

// At returns a Date for a specific instant.
func At(t time.Time) *Date {
	return &Date{Time: t.UTC().Truncate(time.Second)}
}

// OnDay returns an all-day Date.
func OnDay(year int, month time.Month, day int) *Date {
	return &Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), AllDay: true}
}

// Specific returns the instant of a non all-day date.
func (d *Date) Specific() (time.Time, bool) {
	if d == nil || d.AllDay {
		return time.Time{}, false
	}
	return d.Time, true
}

// Resolve returns the instant an implicit reminder for this date fires at.
// All-day dates fire at the default time of day in loc.
func (d Date) Resolve(def TimeOfDay, loc *time.Location) time.Time {
	if !d.AllDay {
		return d.Time
	}
	if loc == nil {
		loc = time.Local
	}
	y, m, day := d.Time.Date()
	return time.Date(y, m, day, def.Hour, def.Minute, 0, 0, loc).UTC()
}

// Task is the subset of a task relevant to alarm scheduling.
type Task struct {
	ID        string
	Title     string
	Calendar  string
	Due       *Date
	Start     *Date
	Completed bool
	Alarms    []Alarm
	UpdatedAt time.Time
}

// HasAlarmAt reports whether any explicit alarm, acknowledged or not, has an
// absolute trigger at the given instant.
func (t *Task) HasAlarmAt(at time.Time) bool {
	at = at.UTC().Truncate(time.Second)
	for _, a := range t.Alarms {
		if a.Trigger.Kind == TriggerAbsolute && a.Trigger.At.Equal(at) {
			return true
		}
	}
	return false
}

// hasActiveExplicit reports whether the task has an unacknowledged explicit
// alarm, snoozes included.
func (t *Task) hasActiveExplicit() bool {
	for _, a := range t.Alarms {
		if !a.Acknowledged() {
			return true
		}
	}
	return false
}

// anchor is the instant relative triggers are measured from.
func (t *Task) anchor() (time.Time, bool) {
	if at, ok := t.Due.Specific(); ok {
		return at, true
	}
	return t.Start.Specific()
}

// Info is a resolved alarm ready to be shown or scheduled.
type Info struct {
	TaskID    string    `json:"task_id"`
	AlarmID   string    `json:"alarm_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	TriggerAt time.Time `json:"trigger_at"`
	Implicit  bool      `json:"implicit"`
}
