package logging

import "context"

type contextKey string

const (
	jobIDKey   contextKey = "job_id"
	jobKeyKey  contextKey = "job_key"
	alarmIDKey contextKey = "alarm_id"
)

// WithJobID adds a background job ID to the context.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// WithJobKey adds a background job's unique key to the context.
func WithJobKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, jobKeyKey, key)
}

// WithAlarmID adds an alarm ID to the context.
func WithAlarmID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, alarmIDKey, id)
}

// GetJobID retrieves the job ID from the context.
// Returns empty string if not present.
func GetJobID(ctx context.Context) string {
	return str(ctx, jobIDKey)
}

// GetJobKey retrieves the job key from the context.
func GetJobKey(ctx context.Context) string {
	return str(ctx, jobKeyKey)
}

// GetAlarmID retrieves the alarm ID from the context.
func GetAlarmID(ctx context.Context) string {
	return str(ctx, alarmIDKey)
}

func str(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
