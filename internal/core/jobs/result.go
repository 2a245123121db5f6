package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetry
	outcomeFailure
)

// Result is the explicit outcome of one job attempt.
type Result struct {
	outcome outcome
	output  any
	err     error
}

// Success completes the job with an optional output value.
func Success(output any) Result {
	return Result{outcome: outcomeSuccess, output: output}
}

// Retry reports a transient error. The job is attempted again after backoff
// until the attempt limit is reached.
func Retry(err error) Result {
	return Result{outcome: outcomeRetry, err: err}
}

// Failure reports a permanent error. The job is not retried.
func Failure(err error) Result {
	return Result{outcome: outcomeFailure, err: err}
}

// FromError maps a conventional (output, error) pair to a Result. Errors
// wrapped with Permanent fail the job, any other error is retried.
func FromError(output any, err error) Result {
	switch {
	case err == nil:
		return Success(output)
	case IsPermanent(err):
		return Failure(err)
	default:
		return Retry(err)
	}
}

func (r Result) marshalOutput() (json.RawMessage, error) {
	if r.output == nil {
		return nil, nil
	}
	if raw, ok := r.output.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(r.output)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// PanicError is the failure recorded when a job body panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.Value)
}
