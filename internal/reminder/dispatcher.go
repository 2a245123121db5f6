package reminder

import (
	"context"
	"errors"
	"fmt"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/clock"
	"github.com/colonyops/chime/internal/core/eventbus"
	"github.com/colonyops/chime/internal/core/logging"
	"github.com/colonyops/chime/internal/core/notify"
	"github.com/rs/zerolog"
)

// Dispatcher turns firing alarms into notifications.
type Dispatcher struct {
	surface notify.Surface
	bus     *eventbus.EventBus
	clock   clock.Clock
	snooze  func() uint
	log     zerolog.Logger
}

// NewDispatcher creates a dispatcher posting to surface. snoozeMinutes is
// read on every post and sets the duration of the snooze action.
func NewDispatcher(surface notify.Surface, bus *eventbus.EventBus, clk clock.Clock, snoozeMinutes func() uint, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		surface: surface,
		bus:     bus,
		clock:   clk,
		snooze:  snoozeMinutes,
		log:     logging.Component(log, "dispatcher"),
	}
}

// Post shows a notification for a firing alarm, replacing any alert already
// shown for it. Returns false when the surface refused because notification
// permission is revoked; that is not an error.
func (d *Dispatcher) Post(ctx context.Context, a alarm.Info) (bool, error) {
	n := notify.Notification{
		ID:      notify.ID(a.AlarmID),
		TaskID:  a.TaskID,
		AlarmID: a.AlarmID,
		Title:   a.Title,
		Body:    a.Body,
		Actions: []notify.Action{
			{
				Kind:    notify.ActionSnooze,
				Label:   fmt.Sprintf("Snooze %dm", d.snooze()),
				TaskID:  a.TaskID,
				AlarmID: a.AlarmID,
				Minutes: d.snooze(),
			},
			{
				Kind:    notify.ActionDismiss,
				Label:   "Dismiss",
				TaskID:  a.TaskID,
				AlarmID: a.AlarmID,
			},
		},
		PostedAt: d.clock.Now(),
	}

	if err := d.surface.Post(ctx, n); err != nil {
		if errors.Is(err, notify.ErrPermissionDenied) {
			d.log.Warn().Str("alarm_id", a.AlarmID).Msg("notification permission denied, alert skipped")
			return false, nil
		}
		return false, fmt.Errorf("post notification for %s: %w", a.AlarmID, err)
	}

	d.bus.PublishNotificationPosted(eventbus.NotificationPostedPayload{NotificationID: n.ID, Alarm: a})
	return true, nil
}

// Remove takes down the notification of an alarm, if shown.
func (d *Dispatcher) Remove(ctx context.Context, alarmID string) error {
	if err := d.surface.Cancel(ctx, notify.ID(alarmID)); err != nil {
		return fmt.Errorf("remove notification for %s: %w", alarmID, err)
	}
	return nil
}
