// Package checkpoint provides the core checkpoint domain entities and interfaces
// following Clean Architecture principles with zero external dependencies.
package checkpoint

import (
	"time"

	"github.com/stategraph/stategraph/internal/core/state"
)

// Status is the run lifecycle state recorded with a checkpoint.
type Status string

const (
	// StatusRunning marks a run between super-steps.
	StatusRunning Status = "running"
	// StatusPaused marks a run suspended at an interrupt point.
	StatusPaused Status = "paused_at_interrupt"
	// StatusCompleted marks a run that reached the End marker.
	StatusCompleted Status = "completed"
	// StatusFailed marks a run aborted by a node error or cancellation.
	StatusFailed Status = "failed"
)

// Checkpoint is the durable snapshot of one run: the state after the
// last fully-completed super-step plus the node set pending next.
// Created on the first invocation of a thread id, replaced atomically
// after every super-step, never deleted automatically.
type Checkpoint struct {
	ThreadID  string      `json:"thread_id" msgpack:"thread_id"`
	GraphName string      `json:"graph_name" msgpack:"graph_name"`
	Step      int         `json:"step" msgpack:"step"`
	State     state.State `json:"state" msgpack:"state"`
	// PendingNodes is the node set the next super-step will invoke.
	// Empty once the run has completed.
	PendingNodes []string `json:"pending_nodes" msgpack:"pending_nodes"`
	Status       Status   `json:"status" msgpack:"status"`
	// Failure records the error of a failed super-step alongside the
	// last good state, which stays valid for a later resume attempt.
	Failure   string    `json:"failure,omitempty" msgpack:"failure,omitempty"`
	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`
}

// Validate ensures checkpoint integrity before persistence.
func (c *Checkpoint) Validate() error {
	if c.ThreadID == "" {
		return ErrInvalidThreadID
	}
	if c.State == nil {
		return ErrNilState
	}
	if c.Status == "" {
		return ErrInvalidStatus
	}
	return nil
}

// Clone returns a copy safe to hand to callers while the executor keeps
// mutating its own working state.
func (c *Checkpoint) Clone() *Checkpoint {
	dup := *c
	dup.State = c.State.Clone()
	dup.PendingNodes = append([]string(nil), c.PendingNodes...)
	return &dup
}
