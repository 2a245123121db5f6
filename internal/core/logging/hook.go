package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// ContextHook adds job_id, job_key and alarm_id from the event context.
type ContextHook struct{}

// Run adds contextual fields to the zerolog event.
func (h ContextHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == context.Background() || ctx == nil {
		return
	}

	if id := GetJobID(ctx); id != "" {
		e.Str("job_id", id)
	}

	if key := GetJobKey(ctx); key != "" {
		e.Str("job_key", key)
	}

	if id := GetAlarmID(ctx); id != "" {
		e.Str("alarm_id", id)
	}
}
