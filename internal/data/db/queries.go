package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds every statement chime runs against the database.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q that runs inside tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

func (q *Queries) execRows(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- tasks ---

const taskColumns = `id, title, calendar, due_at, due_all_day, start_at, start_all_day, completed, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.Title, &t.Calendar, &t.DueAt, &t.DueAllDay, &t.StartAt,
		&t.StartAllDay, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

const upsertTask = `
INSERT INTO tasks (` + taskColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    title = excluded.title,
    calendar = excluded.calendar,
    due_at = excluded.due_at,
    due_all_day = excluded.due_all_day,
    start_at = excluded.start_at,
    start_all_day = excluded.start_all_day,
    completed = excluded.completed,
    updated_at = excluded.updated_at`

func (q *Queries) UpsertTask(ctx context.Context, t Task) error {
	_, err := q.db.ExecContext(ctx, upsertTask, t.ID, t.Title, t.Calendar, t.DueAt, t.DueAllDay,
		t.StartAt, t.StartAllDay, t.Completed, t.CreatedAt, t.UpdatedAt)
	return err
}

func (q *Queries) GetTask(ctx context.Context, id string) (Task, error) {
	return scanTask(q.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
}

func (q *Queries) ListTasks(ctx context.Context) ([]Task, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (q *Queries) DeleteTask(ctx context.Context, id string) (int64, error) {
	return q.execRows(ctx, `DELETE FROM tasks WHERE id = ?`, id)
}

// --- alarms ---

const alarmColumns = `id, task_id, position, trigger_kind, trigger_offset, trigger_at, description, acknowledged_at, related_to, relation`

func scanAlarms(rows *sql.Rows) ([]Alarm, error) {
	defer func() { _ = rows.Close() }()

	var items []Alarm
	for rows.Next() {
		var a Alarm
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Position, &a.TriggerKind, &a.TriggerOffset,
			&a.TriggerAt, &a.Description, &a.AcknowledgedAt, &a.RelatedTo, &a.Relation); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (q *Queries) ListAlarms(ctx context.Context) ([]Alarm, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+alarmColumns+` FROM alarms ORDER BY task_id, position`)
	if err != nil {
		return nil, err
	}
	return scanAlarms(rows)
}

func (q *Queries) ListTaskAlarms(ctx context.Context, taskID string) ([]Alarm, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+alarmColumns+` FROM alarms WHERE task_id = ? ORDER BY position`, taskID)
	if err != nil {
		return nil, err
	}
	return scanAlarms(rows)
}

func (q *Queries) InsertAlarm(ctx context.Context, a Alarm) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO alarms (`+alarmColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TaskID, a.Position, a.TriggerKind, a.TriggerOffset, a.TriggerAt,
		a.Description, a.AcknowledgedAt, a.RelatedTo, a.Relation)
	return err
}

func (q *Queries) DeleteTaskAlarms(ctx context.Context, taskID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM alarms WHERE task_id = ?`, taskID)
	return err
}

// --- kv_store ---

func (q *Queries) KVGet(ctx context.Context, key string) (KvStore, error) {
	var row KvStore
	err := q.db.QueryRowContext(ctx,
		`SELECT key, value, expires_at, created_at, updated_at FROM kv_store WHERE key = ?`, key,
	).Scan(&row.Key, &row.Value, &row.ExpiresAt, &row.CreatedAt, &row.UpdatedAt)
	return row, err
}

func (q *Queries) KVSet(ctx context.Context, row KvStore) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO kv_store (key, value, expires_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (key) DO UPDATE SET
    value = excluded.value,
    expires_at = excluded.expires_at,
    updated_at = excluded.updated_at`,
		row.Key, row.Value, row.ExpiresAt, row.CreatedAt, row.UpdatedAt)
	return err
}

func (q *Queries) KVDelete(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key)
	return err
}

func (q *Queries) KVSweepExpired(ctx context.Context, now sql.NullInt64) (int64, error) {
	return q.execRows(ctx, `DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
}

// --- jobs ---

const jobColumns = `id, key, kind, payload, state, attempts, output, error, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Key, &j.Kind, &j.Payload, &j.State, &j.Attempts, &j.Output,
		&j.Error, &j.CreatedAt, &j.UpdatedAt)
	return j, err
}

func (q *Queries) queryJobs(ctx context.Context, query string, args ...any) ([]Job, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, j)
	}
	return items, rows.Err()
}

func (q *Queries) UpsertJob(ctx context.Context, j Job) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO jobs (`+jobColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    state = excluded.state,
    attempts = excluded.attempts,
    output = excluded.output,
    error = excluded.error,
    updated_at = excluded.updated_at`,
		j.ID, j.Key, j.Kind, j.Payload, j.State, j.Attempts, j.Output, j.Error, j.CreatedAt, j.UpdatedAt)
	return err
}

func (q *Queries) GetJob(ctx context.Context, id string) (Job, error) {
	return scanJob(q.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
}

func (q *Queries) ListJobsInStates(ctx context.Context, states ...string) ([]Job, error) {
	if len(states) == 0 {
		return nil, nil
	}

	placeholders := "?"
	args := []any{states[0]}
	for _, s := range states[1:] {
		placeholders += ", ?"
		args = append(args, s)
	}

	return q.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE state IN (`+placeholders+`) ORDER BY created_at, id`, args...)
}

func (q *Queries) ListRecentJobs(ctx context.Context, limit int64) ([]Job, error) {
	return q.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id LIMIT ?`, limit)
}

func (q *Queries) PruneJobs(ctx context.Context, before int64, states ...string) (int64, error) {
	if len(states) == 0 {
		return 0, nil
	}

	placeholders := "?"
	args := []any{before, states[0]}
	for _, s := range states[1:] {
		placeholders += ", ?"
		args = append(args, s)
	}

	return q.execRows(ctx,
		`DELETE FROM jobs WHERE updated_at < ? AND state IN (`+placeholders+`)`, args...)
}

// --- notifications ---

func (q *Queries) UpsertNotification(ctx context.Context, n Notification) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO notifications (id, task_id, alarm_id, title, body, actions, posted_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    task_id = excluded.task_id,
    alarm_id = excluded.alarm_id,
    title = excluded.title,
    body = excluded.body,
    actions = excluded.actions,
    posted_at = excluded.posted_at`,
		n.ID, n.TaskID, n.AlarmID, n.Title, n.Body, n.Actions, n.PostedAt)
	return err
}

func (q *Queries) DeleteNotification(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	return err
}

func (q *Queries) ListNotifications(ctx context.Context) ([]Notification, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, task_id, alarm_id, title, body, actions, posted_at FROM notifications ORDER BY posted_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.TaskID, &n.AlarmID, &n.Title, &n.Body, &n.Actions, &n.PostedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// --- calendar_events ---

func (q *Queries) UpsertCalendarEvent(ctx context.Context, e CalendarEvent) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO calendar_events (task_id, title, starts_at, all_day, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (task_id) DO UPDATE SET
    title = excluded.title,
    starts_at = excluded.starts_at,
    all_day = excluded.all_day,
    updated_at = excluded.updated_at`,
		e.TaskID, e.Title, e.StartsAt, e.AllDay, e.UpdatedAt)
	return err
}

func (q *Queries) DeleteCalendarEvent(ctx context.Context, taskID string) (int64, error) {
	return q.execRows(ctx, `DELETE FROM calendar_events WHERE task_id = ?`, taskID)
}

func (q *Queries) ListCalendarEvents(ctx context.Context) ([]CalendarEvent, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT task_id, title, starts_at, all_day, updated_at FROM calendar_events ORDER BY starts_at, task_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []CalendarEvent
	for rows.Next() {
		var e CalendarEvent
		if err := rows.Scan(&e.TaskID, &e.Title, &e.StartsAt, &e.AllDay, &e.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
