package reminder

import (
	"context"
	"encoding/json"

	"github.com/colonyops/chime/internal/core/jobs"
)

// Job kinds.
const (
	KindProcessAlarms = "process-alarms"
	KindBootRecovery  = "boot-recovery"
	KindAlarmAction   = "alarm-action"
	KindCalendarSync  = "calendar-sync"
	KindMigrateLegacy = "migrate-legacy"
)

// Unique job keys. Alarm actions are keyed per alarm, see ActionKey.
const (
	KeyProcessAlarms = "process-alarms"
	KeyBootRecovery  = "boot-recovery"
	KeyCalendarSync  = "calendar-sync"
	KeyMigrateLegacy = "migrate-legacy"
)

// ActionKey is the unique key of notification actions on one alarm.
func ActionKey(alarmID string) string {
	return KindAlarmAction + ":" + alarmID
}

// MigratePayload is the job payload of the legacy migration.
type MigratePayload struct {
	Path string `json:"path"`
}

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, &ValidationError{Field: "payload", Message: err.Error()}
	}
	return v, nil
}

func (a *App) registerJobs() {
	a.Jobs.Register(KindProcessAlarms, func(ctx context.Context, payload json.RawMessage) jobs.Result {
		p, err := decode[WakePayload](payload)
		if err != nil {
			return toResult(nil, err)
		}
		return toResult(a.Wake.Run(ctx, p.Trigger))
	})

	a.Jobs.Register(KindBootRecovery, func(ctx context.Context, _ json.RawMessage) jobs.Result {
		return toResult(a.Boot.Recover(ctx))
	})

	a.Jobs.Register(KindAlarmAction, func(ctx context.Context, payload json.RawMessage) jobs.Result {
		p, err := decode[ActionPayload](payload)
		if err != nil {
			return toResult(nil, err)
		}
		return toResult(a.Actions.Handle(ctx, p))
	})

	a.Jobs.Register(KindCalendarSync, func(ctx context.Context, _ json.RawMessage) jobs.Result {
		return toResult(a.Calendar.Run(ctx))
	})

	a.Jobs.Register(KindMigrateLegacy, func(ctx context.Context, payload json.RawMessage) jobs.Result {
		p, err := decode[MigratePayload](payload)
		if err != nil {
			return toResult(nil, err)
		}
		if p.Path == "" {
			return toResult(nil, &ValidationError{Field: "path", Message: "is required"})
		}
		return toResult(a.Importer.MigrateLegacy(ctx, p.Path))
	})
}
