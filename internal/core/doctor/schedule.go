package doctor

import (
	"context"
	"fmt"
	"time"
)

// ScheduleSource is the alarm view the schedule check compares the timer
// against.
type ScheduleSource interface {
	Load(ctx context.Context) error
	NextAlarm(ctx context.Context) (time.Time, bool, error)
}

// ArmedTimer reports the armed wake deadline.
type ArmedTimer interface {
	Armed(ctx context.Context) (time.Time, bool, error)
}

// ScheduleCheck verifies that the wake timer is armed for the next alarm.
type ScheduleCheck struct {
	store ScheduleSource
	timer ArmedTimer
}

// NewScheduleCheck creates a new schedule check.
func NewScheduleCheck(store ScheduleSource, timer ArmedTimer) *ScheduleCheck {
	return &ScheduleCheck{store: store, timer: timer}
}

func (c *ScheduleCheck) Name() string {
	return "Schedule"
}

func (c *ScheduleCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	if err := c.store.Load(ctx); err != nil {
		result.Items = append(result.Items, fail("Task store", err.Error()))
		return result
	}
	result.Items = append(result.Items, pass("Task store", "loaded"))

	next, hasNext, err := c.store.NextAlarm(ctx)
	if err != nil {
		result.Items = append(result.Items, fail("Next alarm", err.Error()))
		return result
	}
	armed, isArmed, err := c.timer.Armed(ctx)
	if err != nil {
		result.Items = append(result.Items, fail("Wake timer", err.Error()))
		return result
	}

	switch {
	case !hasNext && !isArmed:
		result.Items = append(result.Items, pass("Wake timer", "idle, no pending alarms"))
	case !hasNext:
		item := warn("Wake timer", fmt.Sprintf("armed for %s but no alarm is pending", armed.Format(time.RFC3339)))
		item.Fixable = true
		result.Items = append(result.Items, item)
	case !isArmed:
		item := fail("Wake timer", fmt.Sprintf("not armed, next alarm at %s", next.Format(time.RFC3339)))
		item.Fixable = true
		result.Items = append(result.Items, item)
	case !armed.Equal(next):
		item := fail("Wake timer", fmt.Sprintf("armed for %s, next alarm at %s", armed.Format(time.RFC3339), next.Format(time.RFC3339)))
		item.Fixable = true
		result.Items = append(result.Items, item)
	default:
		result.Items = append(result.Items, pass("Wake timer", "armed for "+armed.Format(time.RFC3339)))
	}

	return result
}
