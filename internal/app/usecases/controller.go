package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/stategraph/stategraph/internal/app/dto"
	"github.com/stategraph/stategraph/internal/core/checkpoint"
	"github.com/stategraph/stategraph/internal/core/state"
)

// PauseMessage derives a human-facing prompt from the state a run
// paused on, shown to whoever supplies the resume input.
type PauseMessage func(s state.State) string

// defaultPauseMessage reads the conventional "clarification" field.
func defaultPauseMessage(s state.State) string {
	msg, _ := s.GetString("clarification")
	return msg
}

// Controller is the conversational entrypoint: each Submit call either
// starts a fresh run on the thread or, when the thread is paused at an
// interrupt, resumes it with the new input. Callers never need to know
// which of the two happened.
type Controller struct {
	executor *Executor
	saver    checkpoint.Saver
	logger   *slog.Logger
	pauseMsg PauseMessage

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithControllerLogger sets the structured logger.
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// WithPauseMessage overrides how the interrupt prompt is derived from
// the paused state.
func WithPauseMessage(fn PauseMessage) ControllerOption {
	return func(c *Controller) {
		if fn != nil {
			c.pauseMsg = fn
		}
	}
}

// NewController wires a controller around an executor and the saver the
// executor checkpoints to.
func NewController(executor *Executor, saver checkpoint.Saver, opts ...ControllerOption) *Controller {
	c := &Controller{
		executor: executor,
		saver:    saver,
		logger:   slog.Default(),
		pauseMsg: defaultPauseMessage,
		inFlight: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit routes input to the thread: unknown, completed, and failed
// threads start a fresh run; a paused thread resumes with the input
// merged into its checkpointed state. A thread already executing
// rejects the call with ErrRunInFlight.
func (c *Controller) Submit(ctx context.Context, threadID string, input state.State) (*dto.RunResult, error) {
	runCtx, err := c.acquire(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer c.release(threadID)

	cp, err := c.saver.Load(ctx, threadID)
	resume := false
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		// Unknown thread: start fresh.
	case err != nil:
		return nil, fmt.Errorf("load thread %q: %w", threadID, err)
	case cp.Status == checkpoint.StatusPaused:
		resume = true
	}

	var result *dto.RunResult
	if resume {
		result, err = c.executor.Resume(runCtx, threadID, input)
	} else {
		result, err = c.executor.Start(runCtx, threadID, input)
	}
	if result != nil && result.Interrupt != nil {
		result.Interrupt.Message = c.pauseMsg(result.Interrupt.State)
	}
	return result, err
}

// Status reports the thread's persisted run state.
func (c *Controller) Status(ctx context.Context, threadID string) (*dto.ThreadStatus, error) {
	return c.executor.Status(ctx, threadID)
}

// Cancel aborts the thread's in-flight run, if any. The run fails as
// cancelled and its last completed super-step stays checkpointed.
func (c *Controller) Cancel(threadID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cancel, ok := c.inFlight[threadID]
	if ok {
		cancel()
	}
	return ok
}

// Reset abandons the thread by directing subsequent submits to a fresh
// thread id. The old thread's checkpoint is left untouched; it stays
// loadable for inspection.
func (c *Controller) Reset(threadID string) string {
	fresh := uuid.New().String()
	c.logger.Info("thread reset",
		slog.String("old_thread_id", threadID),
		slog.String("new_thread_id", fresh))
	return fresh
}

// NewThreadID mints an id for a new conversation thread.
func NewThreadID() string { return uuid.New().String() }

func (c *Controller) acquire(ctx context.Context, threadID string) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[threadID]; busy {
		return nil, fmt.Errorf("thread %q: %w", threadID, dto.ErrRunInFlight)
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.inFlight[threadID] = cancel
	return runCtx, nil
}

func (c *Controller) release(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.inFlight[threadID]; ok {
		cancel()
		delete(c.inFlight, threadID)
	}
}
