package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/colonyops/chime/internal/core/logging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options control retries.
type Options struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultOptions returns five attempts with backoff from 1s up to 1m.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
	}
}

// Backoff returns the wait before the attempt following attempt n (1-based).
func (o Options) Backoff(n int) time.Duration {
	wait := o.InitialBackoff
	for i := 1; i < n; i++ {
		wait *= 2
		if wait >= o.MaxBackoff {
			return o.MaxBackoff
		}
	}
	return min(wait, o.MaxBackoff)
}

// Queue executes registered job kinds. At most one job runs per key; the
// conflict policy of EnqueueUnique decides what happens to the previous one.
type Queue struct {
	journal Journal
	opts    Options
	log     zerolog.Logger

	mu       sync.Mutex
	ctx      context.Context
	handlers map[string]Func
	active   map[string]*Handle
	wg       sync.WaitGroup

	hookMu   sync.RWMutex
	onChange []func(Record)
}

// NewQueue creates a queue persisting to journal.
func NewQueue(journal Journal, opts Options, log zerolog.Logger) *Queue {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Queue{
		journal:  journal,
		opts:     opts,
		log:      logging.Component(log, "jobs"),
		handlers: make(map[string]Func),
		active:   make(map[string]*Handle),
	}
}

// Register binds a job kind to its body. Register before Start.
func (q *Queue) Register(kind string, fn Func) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = fn
}

// OnStateChange registers a hook called after every persisted transition.
func (q *Queue) OnStateChange(fn func(Record)) {
	q.hookMu.Lock()
	defer q.hookMu.Unlock()
	q.onChange = append(q.onChange, fn)
}

// Start enables enqueueing. Running jobs are cancelled when ctx is done.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ctx = ctx
}

// Wait blocks until every started job has stopped.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// EnqueueUnique schedules req under key using policy.
func (q *Queue) EnqueueUnique(ctx context.Context, key string, policy Policy, req Request) (*Handle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil {
		return nil, ErrNotStarted
	}

	fn, ok := q.handlers[req.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, req.Kind)
	}

	prev := q.active[key]
	if prev != nil && policy == Keep {
		q.log.Debug().Str("key", key).Str("job_id", prev.ID).Msg("job already active, keeping")
		return prev, nil
	}

	now := time.Now()
	rec := Record{
		ID:        uuid.NewString(),
		Key:       key,
		Kind:      req.Kind,
		Payload:   req.Payload,
		State:     StateEnqueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.journal.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	if prev != nil {
		q.log.Debug().Str("key", key).Str("job_id", prev.ID).Msg("replacing active job")
		prev.markReplaced()
	}

	return q.launch(rec, fn, prev), nil
}

// Resume restarts jobs left unfinished by a previous process. For each key
// only the newest record runs; older ones are cancelled.
func (q *Queue) Resume(ctx context.Context) ([]*Handle, error) {
	recs, err := q.journal.Unfinished(ctx)
	if err != nil {
		return nil, fmt.Errorf("load unfinished jobs: %w", err)
	}

	slices.SortStableFunc(recs, func(a, b Record) int { return b.CreatedAt.Compare(a.CreatedAt) })

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil {
		return nil, ErrNotStarted
	}

	var (
		handles []*Handle
		seen    = make(map[string]bool)
	)
	for _, rec := range recs {
		if seen[rec.Key] || q.active[rec.Key] != nil {
			rec.State = StateCancelled
			q.persist(ctx, rec)
			continue
		}
		seen[rec.Key] = true

		fn, ok := q.handlers[rec.Kind]
		if !ok {
			rec.State = StateFailed
			rec.Err = fmt.Sprintf("%v: %s", ErrUnknownKind, rec.Kind)
			q.persist(ctx, rec)
			continue
		}

		q.log.Info().Str("key", rec.Key).Str("job_id", rec.ID).Int("attempts", rec.Attempts).Msg("resuming job")
		rec.State = StateEnqueued
		handles = append(handles, q.launch(rec, fn, nil))
	}

	return handles, nil
}

// Prune removes finished records older than age.
func (q *Queue) Prune(ctx context.Context, age time.Duration) (int64, error) {
	return q.journal.Prune(ctx, time.Now().Add(-age))
}

// launch starts a run goroutine. Caller holds q.mu.
func (q *Queue) launch(rec Record, fn Func, prev *Handle) *Handle {
	h := newHandle(rec.ID, rec.Key, rec.Kind, rec.Attempts)

	runCtx, cancel := context.WithCancel(q.ctx)
	runCtx = logging.WithJobKey(logging.WithJobID(runCtx, rec.ID), rec.Key)
	h.cancel = cancel

	q.active[rec.Key] = h
	q.wg.Add(1)
	go q.run(runCtx, h, rec, fn, prev)

	return h
}

func (q *Queue) run(ctx context.Context, h *Handle, rec Record, fn Func, prev *Handle) {
	defer q.wg.Done()
	defer close(h.done)
	defer close(h.updates)
	defer h.cancel()
	defer func() {
		q.mu.Lock()
		if q.active[h.Key] == h {
			delete(q.active, h.Key)
		}
		q.mu.Unlock()
	}()

	if prev != nil {
		<-prev.Done()
	}

	// persistence must outlive cancellation of the run
	bg := context.WithoutCancel(ctx)
	log := q.log.With().Str("job_id", h.ID).Str("key", h.Key).Str("kind", h.Kind).Logger()

	for {
		if ctx.Err() != nil {
			q.stop(bg, h, &rec)
			return
		}

		rec.Attempts++
		h.mu.Lock()
		h.attempts = rec.Attempts
		h.mu.Unlock()
		q.transition(bg, h, &rec, StateRunning)

		res := invoke(ctx, fn, rec.Payload)

		if ctx.Err() != nil {
			q.stop(bg, h, &rec)
			return
		}

		switch res.outcome {
		case outcomeSuccess:
			out, err := res.marshalOutput()
			if err != nil {
				log.Warn().Err(err).Msg("job output not serializable")
			}
			rec.Output = out
			rec.Err = ""
			h.mu.Lock()
			h.output = out
			h.mu.Unlock()
			q.transition(bg, h, &rec, StateSucceeded)
			return

		case outcomeFailure:
			q.fail(bg, h, &rec, res.err)
			log.Error().Err(res.err).Int("attempt", rec.Attempts).Msg("job failed permanently")
			return

		case outcomeRetry:
			if rec.Attempts >= q.opts.MaxAttempts {
				q.fail(bg, h, &rec, fmt.Errorf("giving up after %d attempts: %w", rec.Attempts, res.err))
				log.Error().Err(res.err).Int("attempt", rec.Attempts).Msg("job retries exhausted")
				return
			}

			wait := q.opts.Backoff(rec.Attempts)
			log.Warn().Err(res.err).Int("attempt", rec.Attempts).Dur("backoff", wait).Msg("job failed, retrying")

			h.mu.Lock()
			h.err = res.err
			h.mu.Unlock()
			rec.Err = res.err.Error()
			q.transition(bg, h, &rec, StateEnqueued)

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
}

// stop ends a run whose context was cancelled. Replaced jobs are cancelled;
// jobs interrupted by shutdown go back to Enqueued so Resume picks them up.
func (q *Queue) stop(ctx context.Context, h *Handle, rec *Record) {
	if h.wasReplaced() {
		q.transition(ctx, h, rec, StateCancelled)
		return
	}

	rec.State = StateEnqueued
	rec.UpdatedAt = time.Now()
	q.persist(ctx, *rec)
	h.set(StateCancelled)
}

func (q *Queue) fail(ctx context.Context, h *Handle, rec *Record, err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	rec.Err = err.Error()
	q.transition(ctx, h, rec, StateFailed)
}

func (q *Queue) transition(ctx context.Context, h *Handle, rec *Record, state State) {
	rec.State = state
	rec.UpdatedAt = time.Now()
	q.persist(ctx, *rec)
	h.set(state)
}

func (q *Queue) persist(ctx context.Context, rec Record) {
	if err := q.journal.Save(ctx, rec); err != nil {
		q.log.Error().Err(err).Str("job_id", rec.ID).Str("state", string(rec.State)).Msg("failed to persist job state")
	}

	q.hookMu.RLock()
	hooks := slices.Clone(q.onChange)
	q.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(rec)
	}
}

// invoke runs fn, converting a panic into a permanent failure.
func invoke(ctx context.Context, fn Func, payload json.RawMessage) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure(&PanicError{Value: r})
		}
	}()
	return fn(ctx, payload)
}
