package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/eventbus"
	"github.com/colonyops/chime/internal/core/logging"
	"github.com/colonyops/chime/internal/core/timer"
	"github.com/rs/zerolog"
)

// Scheduler keeps the wake-up timer armed at the earliest pending alarm.
type Scheduler struct {
	store alarm.Store
	timer timer.Timer
	bus   *eventbus.EventBus
	log   zerolog.Logger

	// compute and arm happen as one step so the last caller always wins
	mu sync.Mutex
}

// NewScheduler creates a scheduler arming t from store.
func NewScheduler(store alarm.Store, t timer.Timer, bus *eventbus.EventBus, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store: store,
		timer: t,
		bus:   bus,
		log:   logging.Component(log, "scheduler"),
	}
}

// ComputeNextWake returns the earliest pending trigger strictly after now.
func (s *Scheduler) ComputeNextWake(ctx context.Context) (time.Time, bool, error) {
	return s.store.NextAlarm(ctx)
}

// Schedule arms the timer at at, replacing any armed deadline. A zero at
// cancels the timer.
func (s *Scheduler) Schedule(ctx context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule(ctx, at)
}

func (s *Scheduler) schedule(ctx context.Context, at time.Time) error {
	if at.IsZero() {
		if err := s.timer.Cancel(ctx); err != nil {
			return err
		}
		s.log.Debug().Msg("no pending alarms, timer cancelled")
		s.bus.PublishTimerCancelled(eventbus.TimerCancelledPayload{})
		return nil
	}

	if err := s.timer.Arm(ctx, at); err != nil {
		return err
	}
	s.log.Debug().Time("at", at).Msg("timer armed")
	s.bus.PublishTimerArmed(eventbus.TimerArmedPayload{At: at})
	return nil
}

// Reschedule recomputes the next wake and arms the timer for it. It returns
// the armed deadline, zero when nothing is pending.
func (s *Scheduler) Reschedule(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	next, ok, err := s.ComputeNextWake(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("compute next wake: %w", err)
	}
	if !ok {
		next = time.Time{}
	}

	if err := s.schedule(ctx, next); err != nil {
		return time.Time{}, fmt.Errorf("schedule: %w", err)
	}
	return next, nil
}
