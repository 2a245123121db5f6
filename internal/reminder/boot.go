package reminder

import (
	"context"
	"fmt"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/logging"
	"github.com/rs/zerolog"
)

// BootRecovery restores the schedule after the process starts.
type BootRecovery struct {
	store     alarm.Store
	scheduler *Scheduler
	wake      *WakeHandler
	log       zerolog.Logger
}

// NewBootRecovery creates a boot recovery step.
func NewBootRecovery(store alarm.Store, scheduler *Scheduler, wake *WakeHandler, log zerolog.Logger) *BootRecovery {
	return &BootRecovery{
		store:     store,
		scheduler: scheduler,
		wake:      wake,
		log:       logging.Component(log, "boot"),
	}
}

// Recover loads the store, arms the timer for the next alarm, then posts
// alarms missed while the process was down that are still inside the grace
// window.
func (b *BootRecovery) Recover(ctx context.Context) (WakeResult, error) {
	if err := b.store.Load(ctx); err != nil {
		return WakeResult{}, fmt.Errorf("load store: %w", err)
	}

	next, err := b.scheduler.Reschedule(ctx)
	if err != nil {
		return WakeResult{}, err
	}
	b.log.Info().Time("next_wake", next).Msg("schedule restored")

	return b.wake.Run(ctx, TriggerBoot)
}
