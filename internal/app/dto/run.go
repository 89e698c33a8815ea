package dto

import (
	"time"

	"github.com/stategraph/stategraph/internal/core/state"
)

// RunStatus represents the lifecycle state of a run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused_at_interrupt"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Interrupt describes a run suspended at an interrupt point: the nodes
// whose invocation is deferred and the message the paused state carries
// for the caller (typically a clarification request).
type Interrupt struct {
	Nodes   []string    `json:"nodes"`
	Message string      `json:"message,omitempty"`
	State   state.State `json:"state,omitempty"`
}

// RunResult reports the outcome of one Submit: the final state on
// completion, or an awaiting-input signal when paused.
type RunResult struct {
	ThreadID  string        `json:"thread_id"`
	Status    RunStatus     `json:"status"`
	Output    state.State   `json:"output,omitempty"`
	Interrupt *Interrupt    `json:"interrupt,omitempty"`
	Steps     int           `json:"steps"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
}

// Paused reports whether the run is awaiting external input.
func (r *RunResult) Paused() bool {
	return r.Status == RunStatusPaused
}

// ThreadStatus is a point-in-time view of a thread's persisted run.
type ThreadStatus struct {
	ThreadID     string      `json:"thread_id"`
	Known        bool        `json:"known"`
	Status       RunStatus   `json:"status,omitempty"`
	Step         int         `json:"step"`
	PendingNodes []string    `json:"pending_nodes,omitempty"`
	Failure      string      `json:"failure,omitempty"`
	State        state.State `json:"state,omitempty"`
}
