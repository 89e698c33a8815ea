// Package dto defines application-level errors
package dto

import (
	"errors"
	"fmt"
)

// Application errors - defined once, used everywhere
var (
	// ErrCollaborator marks a node's external call failing. The run
	// transitions to failed; the partial super-step is discarded so the
	// last checkpoint stays valid for a future resume attempt.
	ErrCollaborator = errors.New("collaborator call failed")

	// ErrCancelled marks a run cancelled by the caller.
	ErrCancelled = errors.New("run cancelled")

	// ErrNotPaused rejects a resume on a run that is not suspended at
	// an interrupt point.
	ErrNotPaused = errors.New("run is not paused at an interrupt")

	// ErrThreadPaused rejects starting a fresh run on a thread suspended
	// at an interrupt; the pending input belongs to Resume.
	ErrThreadPaused = errors.New("thread is paused at an interrupt")

	// ErrRunInFlight rejects a second submit while a thread's run is
	// still executing; a thread has exactly one active super-step.
	ErrRunInFlight = errors.New("run already in flight for thread")

	// ErrMaxSteps aborts a run exceeding the configured super-step
	// bound, guarding cyclic graphs.
	ErrMaxSteps = errors.New("maximum super-steps exceeded")
)

// NodeError wraps a failure raised by a node function, recording which
// node produced it.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() []error { return []error{ErrCollaborator, e.Err} }
