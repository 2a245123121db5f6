// Package timer provides the process wake-up timer. At most one deadline is
// armed at a time; arming replaces the previous one.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/colonyops/chime/internal/core/clock"
	"github.com/colonyops/chime/internal/core/kv"
	"github.com/rs/zerolog"
)

// Timer arms a single wake-up deadline.
type Timer interface {
	// Arm replaces any armed deadline with at.
	Arm(ctx context.Context, at time.Time) error
	// Cancel disarms the timer. Cancelling an unarmed timer is a no-op.
	Cancel(ctx context.Context) error
	// Armed returns the armed deadline, if any.
	Armed(ctx context.Context) (time.Time, bool, error)
}

const (
	namespace = "timer"
	wakeKey   = "wake"
	firedKey  = "fired"

	// FiredTTL is how long the last fired deadline is remembered.
	FiredTTL = 24 * time.Hour
)

// Persistent keeps the deadline in the KV store so it survives restarts and
// can be armed by any process sharing the database. Run fires it.
type Persistent struct {
	slot     *kv.TypedKV[time.Time]
	clk      clock.Clock
	maxSleep time.Duration
	log      zerolog.Logger

	wake chan struct{}

	mu      sync.Mutex
	running bool
}

var _ Timer = (*Persistent)(nil)

// NewPersistent creates a timer stored in store. Run re-reads the deadline
// at least every maxSleep so changes from other processes are noticed.
func NewPersistent(store kv.KV, clk clock.Clock, maxSleep time.Duration, log zerolog.Logger) *Persistent {
	if maxSleep <= 0 {
		maxSleep = time.Minute
	}
	return &Persistent{
		slot:     kv.Scoped[time.Time](store, namespace),
		clk:      clk,
		maxSleep: maxSleep,
		log:      log,
		wake:     make(chan struct{}, 1),
	}
}

func (p *Persistent) Arm(ctx context.Context, at time.Time) error {
	if err := p.slot.Set(ctx, wakeKey, at.UTC()); err != nil {
		return fmt.Errorf("arm timer: %w", err)
	}
	p.poke()
	return nil
}

func (p *Persistent) Cancel(ctx context.Context) error {
	if err := p.slot.Delete(ctx, wakeKey); err != nil {
		return fmt.Errorf("cancel timer: %w", err)
	}
	p.poke()
	return nil
}

func (p *Persistent) Armed(ctx context.Context) (time.Time, bool, error) {
	at, ok, err := p.slot.Lookup(ctx, wakeKey)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read timer: %w", err)
	}
	return at, ok, nil
}

// LastFired returns the most recent deadline that fired within FiredTTL.
func (p *Persistent) LastFired(ctx context.Context) (time.Time, bool, error) {
	at, ok, err := p.slot.Lookup(ctx, firedKey)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read fired timer: %w", err)
	}
	return at, ok, nil
}

func (p *Persistent) poke() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run waits for the armed deadline and calls onFire with it once it has
// passed. The deadline is disarmed before onFire runs; onFire is expected to
// arm the next one. Run blocks until ctx is done and may only be called once
// at a time.
func (p *Persistent) Run(ctx context.Context, onFire func(ctx context.Context, at time.Time)) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("timer already running")
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	for {
		sleep := p.maxSleep

		at, ok, err := p.Armed(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			p.log.Warn().Err(err).Msg("timer read failed")
		case ok:
			if until := at.Sub(p.clk.Now()); until > 0 {
				sleep = min(until, p.maxSleep)
			} else if p.fire(ctx, at, onFire) {
				continue
			}
		}

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-p.wake:
			t.Stop()
		case <-t.C:
		}
	}
}

// fire reports false when the store failed and the loop should back off.
func (p *Persistent) fire(ctx context.Context, at time.Time, onFire func(context.Context, time.Time)) bool {
	// another process may have re-armed since the read
	current, ok, err := p.Armed(ctx)
	if err != nil {
		return false
	}
	if !ok || !current.Equal(at) {
		return true
	}

	if err := p.slot.Delete(ctx, wakeKey); err != nil {
		p.log.Error().Err(err).Msg("failed to disarm fired timer")
		return false
	}

	if err := p.slot.SetTTL(ctx, firedKey, at, FiredTTL); err != nil {
		p.log.Warn().Err(err).Msg("failed to record fired timer")
	}

	p.log.Debug().Time("at", at).Msg("timer fired")
	onFire(ctx, at)
	return true
}
