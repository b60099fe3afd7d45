package progress

import (
	"fmt"
	"time"
)

// NotFoundError is returned when no record exists for a run id. For Wait it
// means the record never appeared within the creation grace period.
type NotFoundError struct {
	Project string
	RunID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("progress record not found for run %s (project %s)", e.RunID, e.Project)
}

// StaleError is returned by Wait when the record exists but the owning
// process stopped heartbeating.
type StaleError struct {
	RunID     string
	Threshold time.Duration
	Phase     string
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("run %s appears stuck: no heartbeat in %s (last phase: %q)", e.RunID, e.Threshold, e.Phase)
}

// TimeoutError is returned by Wait when the timeout elapses while the run is
// still alive and non-terminal.
type TimeoutError struct {
	RunID      string
	Timeout    time.Duration
	LastStatus Status
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("run %s did not reach a terminal state within %s (last status: %s)", e.RunID, e.Timeout, e.LastStatus)
}

// ErrTerminal is returned by Update when a mutation attempts to change the
// status of a record that has already reached a terminal state.
var ErrTerminal = fmt.Errorf("progress record is terminal and cannot change status")
