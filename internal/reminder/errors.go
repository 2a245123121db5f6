package reminder

import (
	"errors"
	"fmt"

	"github.com/colonyops/chime/internal/core/alarm"
	"github.com/colonyops/chime/internal/core/jobs"
	"github.com/colonyops/chime/internal/data/stores"
)

// ValidationError reports a malformed job or action payload. It is never
// retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// toResult maps a handler outcome to a job result. Malformed input fails the
// job; everything else, including busy databases and an unloaded store, is
// retried.
func toResult(output any, err error) jobs.Result {
	if err == nil {
		return jobs.Success(output)
	}

	switch {
	case IsValidationError(err), errors.Is(err, alarm.ErrInvalidAlarmID):
		return jobs.Failure(err)
	case stores.IsTransient(err):
		return jobs.Retry(err)
	default:
		return jobs.FromError(output, err)
	}
}
