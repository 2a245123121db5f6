package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Handle observes one enqueued job.
type Handle struct {
	ID   string
	Key  string
	Kind string

	done    chan struct{}
	updates chan State
	cancel  context.CancelFunc

	mu       sync.Mutex
	state    State
	attempts int
	output   json.RawMessage
	err      error
	replaced bool
}

func newHandle(id, key, kind string, attempts int) *Handle {
	return &Handle{
		ID:       id,
		Key:      key,
		Kind:     kind,
		done:     make(chan struct{}),
		updates:  make(chan State, 16),
		state:    StateEnqueued,
		attempts: attempts,
	}
}

// Done is closed once the job reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Updates delivers state transitions and is closed after the terminal state.
// Slow readers may miss intermediate states; State is always current.
func (h *Handle) Updates() <-chan State { return h.updates }

// Wait blocks until the job finishes or ctx is done, then returns the job
// error. A cancelled job returns context.Canceled.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case StateCancelled:
		return context.Canceled
	case StateFailed:
		if h.err == nil {
			return errors.New("job failed")
		}
		return h.err
	default:
		return nil
	}
}

// State returns the current state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Attempts returns how many times the body has been started.
func (h *Handle) Attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}

// Output returns the JSON output of a succeeded job.
func (h *Handle) Output() json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.output
}

// Err returns the last error reported by the job body.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) set(state State) {
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()

	select {
	case h.updates <- state:
	default:
	}
}

func (h *Handle) markReplaced() {
	h.mu.Lock()
	h.replaced = true
	h.mu.Unlock()
	h.cancel()
}

func (h *Handle) wasReplaced() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.replaced
}
