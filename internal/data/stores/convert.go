package stores

import (
	"database/sql"
	"time"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/data/db"
)

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func dateToRow(d *alarm.Date) (sql.NullInt64, bool) {
	if d == nil {
		return sql.NullInt64{}, false
	}
	return sql.NullInt64{Int64: d.Time.UnixNano(), Valid: true}, d.AllDay
}

func rowToDate(at sql.NullInt64, allDay bool) *alarm.Date {
	if !at.Valid {
		return nil
	}
	return &alarm.Date{Time: time.Unix(0, at.Int64).UTC(), AllDay: allDay}
}

func taskToRows(t alarm.Task, createdAt time.Time) (db.Task, []db.Alarm) {
	row := db.Task{
		ID:        t.ID,
		Title:     t.Title,
		Calendar:  t.Calendar,
		Completed: t.Completed,
		CreatedAt: createdAt.UnixNano(),
		UpdatedAt: t.UpdatedAt.UnixNano(),
	}
	row.DueAt, row.DueAllDay = dateToRow(t.Due)
	row.StartAt, row.StartAllDay = dateToRow(t.Start)

	alarms := make([]db.Alarm, 0, len(t.Alarms))
	for i, a := range t.Alarms {
		ar := db.Alarm{
			ID:             a.ID,
			TaskID:         t.ID,
			Position:       int64(i),
			TriggerKind:    string(a.Trigger.Kind),
			TriggerOffset:  int64(a.Trigger.Offset / time.Second),
			Description:    a.Description,
			AcknowledgedAt: nullTime(a.AcknowledgedAt),
			RelatedTo:      a.RelatedTo,
			Relation:       a.Relation,
		}
		if a.Trigger.Kind == alarm.TriggerAbsolute {
			at := a.Trigger.At
			ar.TriggerAt = nullTime(&at)
		}
		alarms = append(alarms, ar)
	}

	return row, alarms
}

func rowToTask(row db.Task, alarms []db.Alarm) alarm.Task {
	t := alarm.Task{
		ID:        row.ID,
		Title:     row.Title,
		Calendar:  row.Calendar,
		Due:       rowToDate(row.DueAt, row.DueAllDay),
		Start:     rowToDate(row.StartAt, row.StartAllDay),
		Completed: row.Completed,
		UpdatedAt: time.Unix(0, row.UpdatedAt).UTC(),
	}

	for _, ar := range alarms {
		a := alarm.Alarm{
			ID:             ar.ID,
			Description:    ar.Description,
			AcknowledgedAt: timePtr(ar.AcknowledgedAt),
			RelatedTo:      ar.RelatedTo,
			Relation:       ar.Relation,
		}
		switch alarm.TriggerKind(ar.TriggerKind) {
		case alarm.TriggerAbsolute:
			if at := timePtr(ar.TriggerAt); at != nil {
				a.Trigger = alarm.Absolute(*at)
			}
		default:
			a.Trigger = alarm.Relative(time.Duration(ar.TriggerOffset) * time.Second)
		}
		t.Alarms = append(t.Alarms, a)
	}

	return t
}
