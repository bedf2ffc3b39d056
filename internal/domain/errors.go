package domain

import (
	"errors"
	"fmt"
)

// InsufficientDataError is returned when alignment or a statistical test has
// fewer observations than its required minimum. It marks the hypothesis
// Failed and is never retried automatically: more data will not appear
// before the next ingestion cycle.
type InsufficientDataError struct {
	Got      int
	Required int
	Stage    string // "align", "correlation", "granger", ...
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: %d observations, need at least %d", e.Stage, e.Got, e.Required)
}

// CollaboratorUnavailableError wraps a transient I/O failure talking to an
// external collaborator (event/price queries, result sink). Retried with
// exponential backoff by the scheduler.
type CollaboratorUnavailableError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorUnavailableError) Error() string {
	return fmt.Sprintf("collaborator %s unavailable: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorUnavailableError) Unwrap() error {
	return e.Err
}

// NumericalError indicates degenerate input to a statistical computation,
// e.g. a singular design matrix in the Granger regression. Not retried:
// the same input will fail the same way.
type NumericalError struct {
	Test   string
	Reason string
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("%s: numerical error: %s", e.Test, e.Reason)
}

// ErrPopulationSnapshotStale is returned when the population counter moved
// between the snapshot read and the verdict write. Fatal to that attempt;
// the evaluation is retried with a fresh snapshot.
var ErrPopulationSnapshotStale = errors.New("population snapshot stale, correction would be inconsistent")

// IsRetryable reports whether a failed evaluation attempt may be retried.
// Insufficient data and numerical errors are permanent for a given input;
// collaborator outages and snapshot races are not.
func IsRetryable(err error) bool {
	var insufficient *InsufficientDataError
	var numerical *NumericalError
	if errors.As(err, &insufficient) || errors.As(err, &numerical) {
		return false
	}
	var unavailable *CollaboratorUnavailableError
	if errors.As(err, &unavailable) {
		return true
	}
	return errors.Is(err, ErrPopulationSnapshotStale)
}
