package reminder

import (
	"fmt"
	"strings"
	"time"

	"github.com/colonyops/chime/internal/core/alarm"
)

const dayLayout = "2006-01-02"

// TaskFile is the JSON document read by task import and the legacy
// tasks.json migration.
//
//	{"tasks": [{"title": "Pay rent", "due": "2025-02-01", "alarms": [{"trigger": "-1h"}]}]}
type TaskFile struct {
	Tasks []TaskEntry `json:"tasks"`
}

// TaskEntry is one task of a TaskFile. Dates are either a day
// (2006-01-02, all-day) or an RFC 3339 instant.
type TaskEntry struct {
	ID        string       `json:"id,omitempty"`
	Title     string       `json:"title"`
	Calendar  string       `json:"calendar,omitempty"`
	Due       string       `json:"due,omitempty"`
	Start     string       `json:"start,omitempty"`
	Completed bool         `json:"completed,omitempty"`
	Alarms    []AlarmEntry `json:"alarms,omitempty"`
}

// AlarmEntry is an explicit alarm. Trigger is a Go duration relative to the
// task's due (or start) instant, or an RFC 3339 instant. Snoozes name the
// alarm they were created from in RelatedTo.
type AlarmEntry struct {
	ID           string `json:"id,omitempty"`
	Trigger      string `json:"trigger"`
	Description  string `json:"description,omitempty"`
	Acknowledged bool   `json:"acknowledged,omitempty"`
	RelatedTo    string `json:"related_to,omitempty"`
	Relation     string `json:"relation,omitempty"`
}

// ParseDate parses a task date. Days become all-day dates.
func ParseDate(s string) (*alarm.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	if day, err := time.Parse(dayLayout, s); err == nil {
		return alarm.OnDay(day.Date()), nil
	}

	at, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("date %q is neither %s nor RFC 3339", s, dayLayout)
	}
	return alarm.At(at), nil
}

// FormatDate is the inverse of ParseDate.
func FormatDate(d *alarm.Date) string {
	switch {
	case d == nil:
		return ""
	case d.AllDay:
		return d.Time.Format(dayLayout)
	default:
		return d.Time.Format(time.RFC3339)
	}
}

// ParseTrigger parses an alarm trigger: a duration such as "-15m" is relative,
// an RFC 3339 instant is absolute.
func ParseTrigger(s string) (alarm.Trigger, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return alarm.Relative(d), nil
	}
	at, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return alarm.Trigger{}, fmt.Errorf("trigger %q is neither a duration nor RFC 3339", s)
	}
	return alarm.Absolute(at), nil
}

// Task converts the entry into a task. now stamps acknowledged alarms.
func (e TaskEntry) Task(now time.Time) (alarm.Task, error) {
	if strings.TrimSpace(e.Title) == "" {
		return alarm.Task{}, &ValidationError{Field: "title", Message: "is required"}
	}

	due, err := ParseDate(e.Due)
	if err != nil {
		return alarm.Task{}, &ValidationError{Field: "due", Message: err.Error()}
	}
	start, err := ParseDate(e.Start)
	if err != nil {
		return alarm.Task{}, &ValidationError{Field: "start", Message: err.Error()}
	}

	t := alarm.Task{
		ID:        e.ID,
		Title:     e.Title,
		Calendar:  e.Calendar,
		Due:       due,
		Start:     start,
		Completed: e.Completed,
	}

	for i, a := range e.Alarms {
		trigger, err := ParseTrigger(a.Trigger)
		if err != nil {
			return alarm.Task{}, &ValidationError{Field: fmt.Sprintf("alarms[%d].trigger", i), Message: err.Error()}
		}
		al := alarm.Alarm{
			ID:          a.ID,
			Trigger:     trigger,
			Description: a.Description,
			RelatedTo:   a.RelatedTo,
			Relation:    a.Relation,
		}
		if a.Acknowledged {
			ack := now.UTC()
			al.AcknowledgedAt = &ack
		}
		t.Alarms = append(t.Alarms, al)
	}

	return t, nil
}

// EntryFor converts a task back into its file form. Acknowledgement times
// are reduced to a flag.
func EntryFor(t alarm.Task) TaskEntry {
	e := TaskEntry{
		ID:        t.ID,
		Title:     t.Title,
		Calendar:  t.Calendar,
		Due:       FormatDate(t.Due),
		Start:     FormatDate(t.Start),
		Completed: t.Completed,
	}
	for _, a := range t.Alarms {
		e.Alarms = append(e.Alarms, AlarmEntry{
			ID:           a.ID,
			Trigger:      FormatTrigger(a.Trigger),
			Description:  a.Description,
			Acknowledged: a.Acknowledged(),
			RelatedTo:    a.RelatedTo,
			Relation:     a.Relation,
		})
	}
	return e
}

// FormatTrigger is the inverse of ParseTrigger.
func FormatTrigger(tr alarm.Trigger) string {
	if tr.Kind == alarm.TriggerRelative {
		return tr.Offset.String()
	}
	return tr.At.Format(time.RFC3339)
}
