package db

import "database/sql"

// Task is a row of the tasks table. Instants are unix nanoseconds; all-day
// dates hold UTC midnight of the day.
type Task struct {
	ID          string
	Title       string
	Calendar    string
	DueAt       sql.NullInt64
	DueAllDay   bool
	StartAt     sql.NullInt64
	StartAllDay bool
	Completed   bool
	CreatedAt   int64
	UpdatedAt   int64
}

// Alarm is a row of the alarms table. TriggerOffset is in seconds.
type Alarm struct {
	ID             string
	TaskID         string
	Position       int64
	TriggerKind    string
	TriggerOffset  int64
	TriggerAt      sql.NullInt64
	Description    string
	AcknowledgedAt sql.NullInt64
	RelatedTo      string
	Relation       string
}

type KvStore struct {
	Key       string
	Value     []byte
	ExpiresAt sql.NullInt64
	CreatedAt int64
	UpdatedAt int64
}

type Job struct {
	ID        string
	Key       string
	Kind      string
	Payload   []byte
	State     string
	Attempts  int64
	Output    []byte
	Error     string
	CreatedAt int64
	UpdatedAt int64
}

type Notification struct {
	ID       int64
	TaskID   string
	AlarmID  string
	Title    string
	Body     string
	Actions  []byte
	PostedAt int64
}

type CalendarEvent struct {
	TaskID    string
	Title     string
	StartsAt  int64
	AllDay    bool
	UpdatedAt int64
}
