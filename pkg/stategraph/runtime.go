package stategraph

import (
	"context"
	"log/slog"

	memory "github.com/stategraph/stategraph/internal/adapters/repository/memory"
	"github.com/stategraph/stategraph/internal/app/dto"
	"github.com/stategraph/stategraph/internal/app/usecases"
	"github.com/stategraph/stategraph/internal/core/checkpoint"
	coregraph "github.com/stategraph/stategraph/internal/core/graph"
	corestate "github.com/stategraph/stategraph/internal/core/state"
)

// Re-export core types for convenience
type (
	State      = corestate.State
	Schema     = corestate.Schema
	Field      = corestate.Field
	Reducer    = corestate.Reducer
	ListUpdate = corestate.ListUpdate

	Graph      = coregraph.Graph
	Builder    = coregraph.Builder
	NodeFunc   = coregraph.NodeFunc
	Runnable   = coregraph.Runnable
	Router     = coregraph.Router
	Decision   = coregraph.Decision
	Projection = coregraph.Projection

	Saver      = checkpoint.Saver
	Checkpoint = checkpoint.Checkpoint

	RunResult    = dto.RunResult
	Interrupt    = dto.Interrupt
	ThreadStatus = dto.ThreadStatus
)

// Reserved routing markers.
const (
	Start = coregraph.Start
	End   = coregraph.End
)

// Schema and reducer constructors.
var (
	NewSchema         = corestate.NewSchema
	Replace           = corestate.Replace
	ReplaceIfNonEmpty = corestate.ReplaceIfNonEmpty
	AppendWithReset   = corestate.AppendWithReset
	Append            = corestate.Append
	ResetList         = corestate.ResetList
)

// Routing decision constructors.
var (
	Goto   = coregraph.Goto
	Finish = coregraph.Finish
	Spawn  = coregraph.Spawn
)

// Graph construction.
var NewBuilder = coregraph.NewBuilder

// NewThreadID mints an id for a new conversation thread.
var NewThreadID = usecases.NewThreadID

// Sentinel errors callers branch on.
var (
	ErrNotFound     = checkpoint.ErrNotFound
	ErrCollaborator = dto.ErrCollaborator
	ErrCancelled    = dto.ErrCancelled
	ErrNotPaused    = dto.ErrNotPaused
	ErrRunInFlight  = dto.ErrRunInFlight
)

// Options configures a Runtime.
type Options struct {
	// Saver persists checkpoints between super-steps. Nil defaults to
	// the in-memory saver.
	Saver checkpoint.Saver
	// Logger receives structured run events. Nil defaults to
	// slog.Default().
	Logger *slog.Logger
	// MaxSteps bounds the super-step loop of one submit. Zero keeps the
	// executor default.
	MaxSteps int
	// PauseMessage derives the prompt surfaced when a run pauses at an
	// interrupt. Nil reads the "clarification" state field.
	PauseMessage func(State) string
}

// Runtime bundles a compiled graph with its executor and run
// controller. The zero-config path uses in-memory checkpoints and is
// suitable for local usage and tests.
type Runtime struct {
	graph      *coregraph.Graph
	controller *usecases.Controller
}

// NewRuntime wires a runtime around a compiled graph.
func NewRuntime(g *coregraph.Graph, opts Options) *Runtime {
	saver := opts.Saver
	if saver == nil {
		saver = memory.NewSaver(nil)
	}

	var execOpts []usecases.ExecutorOption
	var ctrlOpts []usecases.ControllerOption
	if opts.Logger != nil {
		execOpts = append(execOpts, usecases.WithLogger(opts.Logger))
		ctrlOpts = append(ctrlOpts, usecases.WithControllerLogger(opts.Logger))
	}
	if opts.MaxSteps > 0 {
		execOpts = append(execOpts, usecases.WithMaxSteps(opts.MaxSteps))
	}
	if opts.PauseMessage != nil {
		ctrlOpts = append(ctrlOpts, usecases.WithPauseMessage(opts.PauseMessage))
	}

	executor := usecases.NewExecutor(g, saver, execOpts...)
	return &Runtime{
		graph:      g,
		controller: usecases.NewController(executor, saver, ctrlOpts...),
	}
}

// Graph returns the compiled graph the runtime executes.
func (rt *Runtime) Graph() *coregraph.Graph { return rt.graph }

// Submit starts a fresh run on the thread, or resumes it when it is
// paused at an interrupt.
func (rt *Runtime) Submit(ctx context.Context, threadID string, input State) (*RunResult, error) {
	return rt.controller.Submit(ctx, threadID, input)
}

// Status reports the thread's persisted run state.
func (rt *Runtime) Status(ctx context.Context, threadID string) (*ThreadStatus, error) {
	return rt.controller.Status(ctx, threadID)
}

// Cancel aborts the thread's in-flight run, if any.
func (rt *Runtime) Cancel(threadID string) bool {
	return rt.controller.Cancel(threadID)
}

// Reset abandons the thread by returning a fresh thread id; the old
// thread's checkpoint is left untouched.
func (rt *Runtime) Reset(threadID string) string {
	return rt.controller.Reset(threadID)
}
