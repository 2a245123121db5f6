package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/eventbus"
	"github.com/colonyops/chime/internal/core/logging"
	"github.com/colonyops/chime/internal/core/notify"
	"github.com/rs/zerolog"
)

// ActionPayload is the job payload of a notification action.
type ActionPayload struct {
	Action  notify.ActionKind `json:"action"`
	TaskID  string            `json:"task_id"`
	AlarmID string            `json:"alarm_id"`
	Minutes uint              `json:"minutes,omitempty"`
}

// Validate checks that the payload names an action and its target.
func (p ActionPayload) Validate() error {
	switch {
	case strings.TrimSpace(p.TaskID) == "":
		return &ValidationError{Field: "task_id", Message: "is required"}
	case strings.TrimSpace(p.AlarmID) == "":
		return &ValidationError{Field: "alarm_id", Message: "is required"}
	}

	switch p.Action {
	case notify.ActionSnooze:
		if p.Minutes == 0 {
			return &ValidationError{Field: "minutes", Message: "must be positive for snooze"}
		}
	case notify.ActionDismiss:
	default:
		return &ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", p.Action)}
	}
	return nil
}

// ActionResult is the job output of a notification action.
type ActionResult struct {
	Changed  bool       `json:"changed"`
	NextWake *time.Time `json:"next_wake,omitempty"`
}

// ActionHandler applies snooze and dismiss responses.
type ActionHandler struct {
	store      alarm.Store
	scheduler  *Scheduler
	dispatcher *Dispatcher
	bus        *eventbus.EventBus
	log        zerolog.Logger
}

// NewActionHandler creates an action handler.
func NewActionHandler(store alarm.Store, scheduler *Scheduler, dispatcher *Dispatcher, bus *eventbus.EventBus, log zerolog.Logger) *ActionHandler {
	return &ActionHandler{
		store:      store,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		bus:        bus,
		log:        logging.Component(log, "actions"),
	}
}

// Handle validates p and runs the action it names.
func (h *ActionHandler) Handle(ctx context.Context, p ActionPayload) (ActionResult, error) {
	if err := p.Validate(); err != nil {
		return ActionResult{}, err
	}

	if p.Action == notify.ActionSnooze {
		return h.Snooze(ctx, p.TaskID, p.AlarmID, p.Minutes)
	}
	return h.Dismiss(ctx, p.TaskID, p.AlarmID)
}

// Snooze acknowledges the alarm and schedules a snooze minutes from now.
// Repeating it after the first call completed changes nothing.
func (h *ActionHandler) Snooze(ctx context.Context, taskID, alarmID string, minutes uint) (ActionResult, error) {
	if minutes == 0 {
		return ActionResult{}, &ValidationError{Field: "minutes", Message: "must be positive for snooze"}
	}

	return h.apply(ctx, alarmID, func(ctx context.Context) (bool, error) {
		changed, err := h.store.SnoozeAlarm(ctx, taskID, alarmID, minutes)
		if changed {
			h.bus.PublishAlarmSnoozed(eventbus.AlarmSnoozedPayload{TaskID: taskID, AlarmID: alarmID, Minutes: minutes})
		}
		return changed, err
	})
}

// Dismiss permanently acknowledges the alarm. Repeating it is a no-op.
func (h *ActionHandler) Dismiss(ctx context.Context, taskID, alarmID string) (ActionResult, error) {
	return h.apply(ctx, alarmID, func(ctx context.Context) (bool, error) {
		changed, err := h.store.DismissAlarm(ctx, taskID, alarmID)
		if changed {
			h.bus.PublishAlarmDismissed(eventbus.AlarmDismissedPayload{TaskID: taskID, AlarmID: alarmID})
		}
		return changed, err
	})
}

// apply loads the store, runs the mutation, removes the alarm's notification
// and reschedules. A task or alarm that no longer exists counts as already
// handled: a snooze that was itself snoozed is deleted, and so is the alarm
// of a deleted task.
func (h *ActionHandler) apply(ctx context.Context, alarmID string, mutate func(context.Context) (bool, error)) (ActionResult, error) {
	ctx = logging.WithAlarmID(ctx, alarmID)

	if err := h.store.Load(ctx); err != nil {
		return ActionResult{}, fmt.Errorf("load store: %w", err)
	}

	changed, err := mutate(ctx)
	switch {
	case errors.Is(err, alarm.ErrTaskNotFound), errors.Is(err, alarm.ErrAlarmNotFound):
		h.log.Debug().Ctx(ctx).Err(err).Msg("alarm already gone, nothing to do")
		changed = false
	case err != nil:
		return ActionResult{}, err
	}

	if err := h.dispatcher.Remove(ctx, alarmID); err != nil {
		return ActionResult{Changed: changed}, err
	}

	next, err := h.scheduler.Reschedule(ctx)
	if err != nil {
		return ActionResult{Changed: changed}, err
	}

	result := ActionResult{Changed: changed}
	if !next.IsZero() {
		result.NextWake = &next
	}
	return result, nil
}
