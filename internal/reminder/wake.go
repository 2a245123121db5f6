package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/eventbus"
	"github.com/colonyops/chime/internal/core/logging"
	"github.com/rs/zerolog"
)

// Trigger names what woke the process.
type Trigger string

const (
	TriggerTimer   Trigger = "timer"
	TriggerBoot    Trigger = "boot"
	TriggerRefresh Trigger = "refresh"
	TriggerConfig  Trigger = "config"
)

// WakePayload is the job payload of a process-alarms run.
type WakePayload struct {
	Trigger Trigger   `json:"trigger"`
	At      time.Time `json:"at,omitzero"`
}

// WakeResult is the job output of a process-alarms run.
type WakeResult struct {
	Fired    []string   `json:"fired"`
	Posted   int        `json:"posted"`
	NextWake *time.Time `json:"next_wake,omitempty"`
}

// WakeHandler posts notifications for firing alarms and re-arms the timer.
type WakeHandler struct {
	store      alarm.Store
	scheduler  *Scheduler
	dispatcher *Dispatcher
	bus        *eventbus.EventBus
	grace      func() time.Duration
	log        zerolog.Logger
}

// NewWakeHandler creates a wake handler. grace is read on every run.
func NewWakeHandler(store alarm.Store, scheduler *Scheduler, dispatcher *Dispatcher, bus *eventbus.EventBus, grace func() time.Duration, log zerolog.Logger) *WakeHandler {
	return &WakeHandler{
		store:      store,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		bus:        bus,
		grace:      grace,
		log:        logging.Component(log, "wake"),
	}
}

// Run reloads the store, posts every alarm inside the grace window and
// reschedules. A run whose context was cancelled, because a newer run
// replaced it, stops without touching the timer.
func (h *WakeHandler) Run(ctx context.Context, trigger Trigger) (WakeResult, error) {
	result := WakeResult{Fired: []string{}}

	if err := h.store.Load(ctx); err != nil {
		return result, fmt.Errorf("load store: %w", err)
	}

	firing, err := h.store.FiringAlarms(ctx, h.grace())
	if err != nil {
		return result, fmt.Errorf("firing alarms: %w", err)
	}

	h.log.Debug().Str("trigger", string(trigger)).Int("firing", len(firing)).Msg("processing alarms")

	var postErrs []error
	for _, a := range firing {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		actx := logging.WithAlarmID(ctx, a.AlarmID)
		h.bus.PublishAlarmFired(eventbus.AlarmFiredPayload{Alarm: a})
		result.Fired = append(result.Fired, a.AlarmID)

		posted, err := h.dispatcher.Post(actx, a)
		if err != nil {
			h.log.Error().Ctx(actx).Err(err).Msg("failed to post notification")
			postErrs = append(postErrs, err)
			continue
		}
		if posted {
			result.Posted++
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	next, err := h.scheduler.Reschedule(ctx)
	if err != nil {
		return result, err
	}
	if !next.IsZero() {
		result.NextWake = &next
	}

	return result, errors.Join(postErrs...)
}
