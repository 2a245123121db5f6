package timer

import (
	"context"
	"sync"
	"time"
)

// Fake is an in-memory Timer that records every call.
type Fake struct {
	mu      sync.Mutex
	at      time.Time
	armed   bool
	arms    []time.Time
	cancels int
}

var _ Timer = (*Fake)(nil)

func (f *Fake) Arm(_ context.Context, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.at, f.armed = at, true
	f.arms = append(f.arms, at)
	return nil
}

func (f *Fake) Cancel(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.at, f.armed = time.Time{}, false
	f.cancels++
	return nil
}

func (f *Fake) Armed(context.Context) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.at, f.armed, nil
}

// Arms returns every deadline passed to Arm, in order.
func (f *Fake) Arms() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.arms...)
}

// Cancels returns how many times Cancel was called.
func (f *Fake) Cancels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}
