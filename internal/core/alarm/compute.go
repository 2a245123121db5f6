package alarm

import (
	"slices"
	"time"
)

const defaultBody = "Reminder"

// Pending returns every unacknowledged alarm of the given tasks, explicit and
// implicit, ordered by trigger time. Completed tasks and tasks in excluded
// calendars contribute nothing.
func Pending(tasks []Task, opts Options) []Info {
	var out []Info
	for i := range tasks {
		out = append(out, taskPending(&tasks[i], opts)...)
	}

	slices.SortStableFunc(out, func(a, b Info) int {
		return a.TriggerAt.Compare(b.TriggerAt)
	})
	return out
}

// NextWake returns the earliest pending trigger strictly after now.
func NextWake(tasks []Task, opts Options, now time.Time) (time.Time, bool) {
	var (
		next  time.Time
		found bool
	)
	for _, info := range Pending(tasks, opts) {
		if !info.TriggerAt.After(now) {
			continue
		}
		if !found || info.TriggerAt.Before(next) {
			next, found = info.TriggerAt, true
		}
	}
	return next, found
}

// Firing returns pending alarms whose trigger lies within [now-grace, now].
// Triggers exactly grace old are included.
func Firing(tasks []Task, opts Options, now time.Time, grace time.Duration) []Info {
	var out []Info
	for _, info := range Pending(tasks, opts) {
		if info.TriggerAt.After(now) {
			continue
		}
		if now.Sub(info.TriggerAt) > grace {
			continue
		}
		out = append(out, info)
	}
	return out
}

func taskPending(t *Task, opts Options) []Info {
	if t.Completed || opts.excluded(t.Calendar) {
		return nil
	}

	var out []Info
	for _, a := range t.Alarms {
		if a.Acknowledged() {
			continue
		}

		at, ok := resolveTrigger(t, a.Trigger)
		if !ok {
			continue
		}

		body := a.Description
		if body == "" {
			body = defaultBody
		}
		out = append(out, Info{
			TaskID:    t.ID,
			AlarmID:   a.ID,
			Title:     t.Title,
			Body:      body,
			TriggerAt: at,
		})
	}

	if !opts.AutoReminders || t.hasActiveExplicit() {
		return out
	}

	for _, d := range []struct {
		kind ImplicitKind
		date *Date
	}{
		{KindDue, t.Due},
		{KindStart, t.Start},
	} {
		if d.date == nil {
			continue
		}

		at := d.date.Resolve(opts.DefaultTime, opts.Location).Add(-opts.ImplicitLead).Truncate(time.Second)
		if t.HasAlarmAt(at) {
			continue
		}

		out = append(out, Info{
			TaskID:    t.ID,
			AlarmID:   ImplicitID(d.kind, at, t.ID),
			Title:     t.Title,
			Body:      d.kind.Body(),
			TriggerAt: at,
			Implicit:  true,
		})
	}
	return out
}

func resolveTrigger(t *Task, tr Trigger) (time.Time, bool) {
	switch tr.Kind {
	case TriggerAbsolute:
		return tr.At, true
	case TriggerRelative:
		anchor, ok := t.anchor()
		if !ok {
			return time.Time{}, false
		}
		return anchor.Add(tr.Offset), true
	default:
		return time.Time{}, false
	}
}
