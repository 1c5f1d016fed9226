// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUninitialized is returned when a worker is used before Initialize.
	ErrUninitialized = errors.New("worker must be initialized before receiving jobs")
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("worker is already initialized")
	// ErrInvalidArgument is returned for malformed requests.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotLeader is returned when a master that does not hold leadership
	// is asked to accept jobs.
	ErrNotLeader = errors.New("master is not the leader")
)

// TransportError wraps a failure talking to a remote collaborator.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AccumulateError wraps a model failure while folding a job.
type AccumulateError struct {
	JobID string
	Err   error
}

func (e *AccumulateError) Error() string {
	return fmt.Sprintf("failed to accumulate job %s: %v", e.JobID, e.Err)
}

func (e *AccumulateError) Unwrap() error { return e.Err }
