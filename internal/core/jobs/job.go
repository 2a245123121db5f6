// Package jobs runs background work under unique keys with a conflict
// policy, persistent state, and retry with exponential backoff.
//
// Job lifecycle:
//
//	Enqueued -> Running -> Succeeded
//	                    -> Enqueued (retry, after backoff)
//	                    -> Failed (permanent, panic, or attempts exhausted)
//	Enqueued/Running -> Cancelled (replaced under REPLACE)
//
// Jobs interrupted by process shutdown stay Enqueued in the journal and are
// picked up again by Resume.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownKind = errors.New("unknown job kind")
	ErrNotStarted  = errors.New("job queue not started")
)

// State is the lifecycle state of a job.
type State string

const (
	StateEnqueued  State = "enqueued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Finished reports whether the state is terminal.
func (s State) Finished() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Policy decides what happens when a job is enqueued under a key that
// already has an enqueued or running job.
type Policy int

const (
	// Replace cancels the existing job and starts the new one once the old
	// one has stopped.
	Replace Policy = iota
	// Keep ignores the new request and returns the existing job's handle.
	Keep
)

func (p Policy) String() string {
	if p == Keep {
		return "keep"
	}
	return "replace"
}

// Request is the work to run: a registered kind plus its JSON payload.
type Request struct {
	Kind    string
	Payload json.RawMessage
}

// NewRequest marshals payload into a Request.
func NewRequest(kind string, payload any) (Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Request{Kind: kind, Payload: data}, nil
}

// Record is the persisted form of a job.
type Record struct {
	ID        string          `json:"id"`
	Key       string          `json:"key"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	State     State           `json:"state"`
	Attempts  int             `json:"attempts"`
	Output    json.RawMessage `json:"output,omitempty"`
	Err       string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Journal persists job records so they survive process death.
type Journal interface {
	Save(ctx context.Context, r Record) error
	// Unfinished returns enqueued and running records, oldest first.
	Unfinished(ctx context.Context) ([]Record, error)
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	// Prune deletes finished records last updated before the cutoff.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Func is the body of a job.
type Func func(ctx context.Context, payload json.RawMessage) Result
