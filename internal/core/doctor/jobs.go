package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/colonyops/chime/internal/core/jobs"
)

// JobHistory is the read side of the job journal.
type JobHistory interface {
	Unfinished(ctx context.Context) ([]jobs.Record, error)
	Recent(ctx context.Context, limit int) ([]jobs.Record, error)
}

// recentJobs bounds how far back failures are reported.
const recentJobs = 50

// JobsCheck reports failed jobs and jobs left unfinished by a previous
// process.
type JobsCheck struct {
	journal JobHistory
	now     func() time.Time
	stale   time.Duration
}

// NewJobsCheck creates a new jobs check. Unfinished jobs not updated for
// longer than stale are reported.
func NewJobsCheck(journal JobHistory, now func() time.Time, stale time.Duration) *JobsCheck {
	return &JobsCheck{journal: journal, now: now, stale: stale}
}

func (c *JobsCheck) Name() string {
	return "Jobs"
}

func (c *JobsCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	recent, err := c.journal.Recent(ctx, recentJobs)
	if err != nil {
		result.Items = append(result.Items, fail("Journal", err.Error()))
		return result
	}

	// only the newest record per key matters
	seen := map[string]bool{}
	reported := false
	for _, r := range recent {
		if seen[r.Key] {
			continue
		}
		seen[r.Key] = true
		if r.State != jobs.StateFailed {
			continue
		}
		reported = true
		result.Items = append(result.Items, warn(r.Key, "last run failed: "+r.Err))
	}
	if !reported {
		result.Items = append(result.Items, pass("Recent jobs", fmt.Sprintf("%d checked, none failing", len(recent))))
	}

	unfinished, err := c.journal.Unfinished(ctx)
	if err != nil {
		result.Items = append(result.Items, fail("Journal", err.Error()))
		return result
	}

	stale := 0
	for _, r := range unfinished {
		if c.now().Sub(r.UpdatedAt) > c.stale {
			stale++
		}
	}
	if stale > 0 {
		result.Items = append(result.Items, warn("Unfinished jobs", fmt.Sprintf("%d interrupted job(s); start the daemon to resume them", stale)))
	} else {
		result.Items = append(result.Items, pass("Unfinished jobs", fmt.Sprintf("%d in flight", len(unfinished))))
	}

	return result
}
