package alarm

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time used for all-day dates.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// DefaultReminderTime is used when no valid reminder time is configured.
var DefaultReminderTime = TimeOfDay{Hour: 9}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Options control how alarms are derived from tasks.
type Options struct {
	// AutoReminders enables implicit alarms for due and start dates.
	AutoReminders bool
	// DefaultTime is the time of day all-day dates fire at.
	DefaultTime TimeOfDay
	// ImplicitLead moves implicit alarms earlier than the date they derive from.
	ImplicitLead time.Duration
	// Location resolves all-day dates. Nil means time.Local.
	Location *time.Location
	// Excluded reports whether a calendar contributes no alarms. Nil excludes nothing.
	Excluded func(calendar string) bool
}

// DefaultOptions returns options with auto-reminders on at 09:00 local time.
func DefaultOptions() Options {
	return Options{
		AutoReminders: true,
		DefaultTime:   DefaultReminderTime,
	}
}

func (o Options) excluded(calendar string) bool {
	return o.Excluded != nil && o.Excluded(calendar)
}
