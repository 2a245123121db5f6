package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/colonyops/chime/internal/core/jobs"
	"github.com/colonyops/chime/internal/data/db"
)

// JobStore implements jobs.Journal using SQLite.
type JobStore struct {
	db *db.DB
}

var _ jobs.Journal = (*JobStore)(nil)

// NewJobStore creates a new SQLite-backed job journal.
func NewJobStore(db *db.DB) *JobStore {
	return &JobStore{db: db}
}

// Save inserts or updates a job record.
func (s *JobStore) Save(ctx context.Context, r jobs.Record) error {
	payload := []byte(r.Payload)
	if payload == nil {
		payload = []byte("null")
	}

	err := s.db.Queries().UpsertJob(ctx, db.Job{
		ID:        r.ID,
		Key:       r.Key,
		Kind:      r.Kind,
		Payload:   payload,
		State:     string(r.State),
		Attempts:  int64(r.Attempts),
		Output:    r.Output,
		Error:     r.Err,
		CreatedAt: r.CreatedAt.UnixNano(),
		UpdatedAt: r.UpdatedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("save job %s: %w", r.ID, err)
	}
	return nil
}

// Get returns one job record.
func (s *JobStore) Get(ctx context.Context, id string) (jobs.Record, error) {
	row, err := s.db.Queries().GetJob(ctx, id)
	if err != nil {
		return jobs.Record{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return rowToRecord(row), nil
}

// Unfinished returns enqueued and running jobs, oldest first.
func (s *JobStore) Unfinished(ctx context.Context) ([]jobs.Record, error) {
	rows, err := s.db.Queries().ListJobsInStates(ctx, string(jobs.StateEnqueued), string(jobs.StateRunning))
	if err != nil {
		return nil, fmt.Errorf("list unfinished jobs: %w", err)
	}
	return rowsToRecords(rows), nil
}

// Recent returns up to limit jobs, newest first.
func (s *JobStore) Recent(ctx context.Context, limit int) ([]jobs.Record, error) {
	rows, err := s.db.Queries().ListRecentJobs(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return rowsToRecords(rows), nil
}

// Prune deletes finished jobs last updated before the cutoff.
func (s *JobStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.db.Queries().PruneJobs(ctx, before.UnixNano(),
		string(jobs.StateSucceeded), string(jobs.StateFailed), string(jobs.StateCancelled))
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return n, nil
}

func rowsToRecords(rows []db.Job) []jobs.Record {
	out := make([]jobs.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToRecord(row))
	}
	return out
}

func rowToRecord(row db.Job) jobs.Record {
	return jobs.Record{
		ID:        row.ID,
		Key:       row.Key,
		Kind:      row.Kind,
		Payload:   row.Payload,
		State:     jobs.State(row.State),
		Attempts:  int(row.Attempts),
		Output:    row.Output,
		Err:       row.Error,
		CreatedAt: time.Unix(0, row.CreatedAt),
		UpdatedAt: time.Unix(0, row.UpdatedAt),
	}
}
