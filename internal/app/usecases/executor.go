package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stategraph/stategraph/internal/app/dto"
	"github.com/stategraph/stategraph/internal/core/checkpoint"
	"github.com/stategraph/stategraph/internal/core/graph"
	"github.com/stategraph/stategraph/internal/core/state"
	"github.com/stategraph/stategraph/internal/infrastructure/metrics"
)

// DefaultMaxSteps bounds the super-step loop of a single submit, so a
// cyclic graph cannot spin forever.
const DefaultMaxSteps = 100

// Executor walks a compiled graph in synchronous super-steps: it
// invokes the pending node set, folds the partial updates back into the
// shared state via the schema's reducers in declaration order, routes
// to the next pending set, and checkpoints after every fully-completed
// super-step. Execution suspends at declared interrupt points and on
// graph completion.
// PRINCIPLES:
// - SRP: Orchestration only; node semantics live in the Runnables
// - Only fully-completed super-steps are ever checkpointed
type Executor struct {
	graph    *graph.Graph
	saver    checkpoint.Saver
	logger   *slog.Logger
	maxSteps int

	// One active super-step per thread: submits on the same thread
	// serialize, distinct threads proceed independently.
	locks sync.Map // threadID -> *sync.Mutex
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithMaxSteps overrides the super-step bound.
func WithMaxSteps(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewExecutor creates an executor for one compiled graph.
func NewExecutor(g *graph.Graph, saver checkpoint.Saver, opts ...ExecutorOption) *Executor {
	e := &Executor{
		graph:    g,
		saver:    saver,
		logger:   slog.Default(),
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins a new run for the thread. An unknown thread seeds from
// an empty state; a thread with a completed or failed run carries its
// checkpointed state into the new run, so append fields accumulate
// across runs until a node resets them. A paused thread rejects Start
// with ErrThreadPaused: its pending input belongs to Resume.
func (e *Executor) Start(ctx context.Context, threadID string, input state.State) (*dto.RunResult, error) {
	unlock := e.lockThread(threadID)
	defer unlock()

	schema := e.graph.Schema()
	base := schema.NewState()
	prior, err := e.saver.Load(ctx, threadID)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load thread %q: %w", threadID, err)
	case prior.Status == checkpoint.StatusPaused:
		return nil, fmt.Errorf("thread %q: %w", threadID, dto.ErrThreadPaused)
	default:
		base = prior.State
	}

	st, err := schema.Apply(base, input)
	if err != nil {
		return nil, fmt.Errorf("seed initial state: %w", err)
	}

	cp := &checkpoint.Checkpoint{
		ThreadID:     threadID,
		GraphName:    e.graph.Name(),
		Step:         0,
		State:        st,
		PendingNodes: []string{e.graph.Entry()},
		Status:       checkpoint.StatusRunning,
	}
	if err := e.persist(ctx, cp); err != nil {
		return nil, err
	}
	return e.run(ctx, cp, false)
}

// Resume continues a paused run: the external input is merged into the
// checkpointed state via the reducers and the previously deferred
// pending set executes.
func (e *Executor) Resume(ctx context.Context, threadID string, input state.State) (*dto.RunResult, error) {
	unlock := e.lockThread(threadID)
	defer unlock()

	cp, err := e.saver.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if cp.Status != checkpoint.StatusPaused {
		return nil, fmt.Errorf("thread %q has status %s: %w", threadID, cp.Status, dto.ErrNotPaused)
	}

	if len(input) > 0 {
		cp.State, err = e.graph.Schema().Apply(cp.State, input)
		if err != nil {
			return nil, fmt.Errorf("merge resume input: %w", err)
		}
	}
	cp.Status = checkpoint.StatusRunning
	if err := e.persist(ctx, cp); err != nil {
		return nil, err
	}
	return e.run(ctx, cp, true)
}

// Status returns the thread's persisted run state. An unknown thread is
// not an error; it reports Known=false, meaning "start fresh".
func (e *Executor) Status(ctx context.Context, threadID string) (*dto.ThreadStatus, error) {
	cp, err := e.saver.Load(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return &dto.ThreadStatus{ThreadID: threadID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &dto.ThreadStatus{
		ThreadID:     threadID,
		Known:        true,
		Status:       dto.RunStatus(cp.Status),
		Step:         cp.Step,
		PendingNodes: append([]string(nil), cp.PendingNodes...),
		Failure:      cp.Failure,
		State:        cp.State.Clone(),
	}, nil
}

// run drives the super-step loop from the given checkpoint until the
// graph completes, pauses at an interrupt, fails, or is cancelled.
// resumed suppresses the initial interrupt check: a resumed run must
// execute the pending set it paused on rather than pause again.
func (e *Executor) run(ctx context.Context, cp *checkpoint.Checkpoint, resumed bool) (*dto.RunResult, error) {
	start := time.Now()
	result := &dto.RunResult{ThreadID: cp.ThreadID, StartTime: start}
	finish := func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}

	// A fresh run whose entry node is an interrupt point pauses before
	// invoking anything.
	if !resumed && e.shouldInterrupt(cp.PendingNodes) {
		return e.pause(ctx, cp, result, finish)
	}

	for steps := 0; len(cp.PendingNodes) > 0; steps++ {
		if steps >= e.maxSteps {
			return e.failRun(ctx, cp, result, finish, dto.ErrMaxSteps)
		}
		if err := ctx.Err(); err != nil {
			return e.failRun(ctx, cp, result, finish, fmt.Errorf("%w: %w", dto.ErrCancelled, err))
		}

		newState, newPending, err := e.superStep(ctx, e.graph, cp.State, cp.PendingNodes)
		if err != nil {
			if ctx.Err() != nil && !errors.Is(err, dto.ErrCancelled) {
				err = fmt.Errorf("%w: %w", dto.ErrCancelled, err)
			}
			return e.failRun(ctx, cp, result, finish, err)
		}

		cp.State = newState
		cp.PendingNodes = newPending
		cp.Step++
		result.Steps++
		metrics.IncSupersteps()

		if len(newPending) > 0 && e.shouldInterrupt(newPending) {
			return e.pause(ctx, cp, result, finish)
		}
		if err := e.persist(ctx, cp); err != nil {
			finish()
			return result, err
		}
	}

	cp.Status = checkpoint.StatusCompleted
	if err := e.persist(ctx, cp); err != nil {
		finish()
		return result, err
	}

	result.Status = dto.RunStatusCompleted
	result.Output = cp.State.Clone()
	finish()
	e.logger.Info("run completed",
		slog.String("thread_id", cp.ThreadID),
		slog.Int("steps", result.Steps),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// superStep invokes every node of the pending set, evaluates routing on
// each node's post-update view, executes any dynamic fan-out, and folds
// all partial updates into the shared state in declaration order.
func (e *Executor) superStep(ctx context.Context, g *graph.Graph, st state.State, pending []string) (state.State, []string, error) {
	nodes, err := orderedNodes(g, pending)
	if err != nil {
		return nil, nil, err
	}

	var updates []state.State
	nextSet := make(map[string]bool)

	for _, node := range nodes {
		out, err := e.invoke(ctx, g, node, st)
		if err != nil {
			return nil, nil, err
		}
		updates = append(updates, out)
		metrics.IncNodeExecs(1)

		next, branchUpdates, err := e.route(ctx, g, node, st, out)
		if err != nil {
			return nil, nil, err
		}
		updates = append(updates, branchUpdates...)
		if next != graph.End {
			nextSet[next] = true
		}
	}

	merged := st
	for _, upd := range updates {
		merged, err = g.Schema().Apply(merged, upd)
		if err != nil {
			return nil, nil, err
		}
	}

	newPending := make([]string, 0, len(nextSet))
	for name := range nextSet {
		newPending = append(newPending, name)
	}
	sort.Slice(newPending, func(i, j int) bool {
		a, _ := g.Node(newPending[i])
		b, _ := g.Node(newPending[j])
		return a.Seq < b.Seq
	})
	return merged, newPending, nil
}

// route determines a node's successor. Conditional routers see the
// state after the node's own update has been folded in; a spawn
// decision runs the declared fan-out and yields the join node plus the
// branch updates in branch-index order.
func (e *Executor) route(ctx context.Context, g *graph.Graph, node *graph.Node, st state.State, out state.State) (string, []state.State, error) {
	if target, ok := g.StaticTarget(node.Name); ok {
		return target, nil, nil
	}

	edge, ok := g.Conditional(node.Name)
	if !ok {
		if join, ok := g.JoinFor(node.Name); ok {
			return join, nil, nil
		}
		return graph.End, nil, nil
	}

	view, err := g.Schema().Apply(st, out)
	if err != nil {
		return "", nil, err
	}
	decision, err := edge.Router(ctx, view)
	if err != nil {
		return "", nil, &dto.NodeError{Node: node.Name, Err: err}
	}

	if decision.IsFanOut() {
		fo, ok := g.FanOut(node.Name)
		if !ok {
			return "", nil, &graph.RoutingError{Node: node.Name, Destination: "<fan-out>"}
		}
		branchUpdates, err := e.runBranches(ctx, g, fo, decision.Branches)
		if err != nil {
			return "", nil, err
		}
		return fo.Join, branchUpdates, nil
	}

	if !edge.Allows(decision.Next) {
		return "", nil, &graph.RoutingError{Node: node.Name, Destination: decision.Next}
	}
	return decision.Next, nil, nil
}

// runBranches executes one branch per seed against the fan-out target,
// each on an isolated state container; branches run in parallel and all
// must finish before the shared state is touched. Results fold in
// branch-index order regardless of completion timing.
func (e *Executor) runBranches(ctx context.Context, g *graph.Graph, fo *graph.FanOutEdge, seeds []state.State) ([]state.State, error) {
	target, ok := g.Node(fo.Target)
	if !ok {
		return nil, &graph.RoutingError{Node: fo.Source, Destination: fo.Target}
	}

	metrics.IncBranches(int64(len(seeds)))
	results := make([]state.State, len(seeds))
	eg, bctx := errgroup.WithContext(ctx)
	for i, seed := range seeds {
		i, seed := i, seed
		eg.Go(func() error {
			out, err := e.invoke(bctx, g, target, seed.Clone())
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// invoke runs one node against a read-only view of the state. Subgraph
// nodes run their inner graph to completion synchronously on an
// independent state container.
func (e *Executor) invoke(ctx context.Context, g *graph.Graph, node *graph.Node, st state.State) (state.State, error) {
	if node.Type == graph.NodeTypeSubgraph {
		return e.runSubgraph(ctx, node, st)
	}
	out, err := node.Runner.Run(ctx, st.Clone())
	if err != nil {
		return nil, &dto.NodeError{Node: node.Name, Err: err}
	}
	if out == nil {
		out = state.State{}
	}
	return out, nil
}

// runSubgraph seeds a fresh inner state container from the outer view,
// super-steps the inner graph to its End marker, and projects the inner
// final state back as the node's partial update. Inner interrupts are
// rejected at compile time, so the loop never pauses.
func (e *Executor) runSubgraph(ctx context.Context, node *graph.Node, outer state.State) (state.State, error) {
	sub := node.Sub
	inner := sub.Inner

	ist, err := inner.Schema().Apply(inner.Schema().NewState(), sub.In(outer.Clone()))
	if err != nil {
		return nil, &dto.NodeError{Node: node.Name, Err: err}
	}

	pending := []string{inner.Entry()}
	for steps := 0; len(pending) > 0; steps++ {
		if steps >= e.maxSteps {
			return nil, &dto.NodeError{Node: node.Name, Err: dto.ErrMaxSteps}
		}
		ist, pending, err = e.superStep(ctx, inner, ist, pending)
		if err != nil {
			return nil, err
		}
	}
	return sub.Out(ist), nil
}

// pause checkpoints the deferred pending set and hands control back.
func (e *Executor) pause(ctx context.Context, cp *checkpoint.Checkpoint, result *dto.RunResult, finish func()) (*dto.RunResult, error) {
	cp.Status = checkpoint.StatusPaused
	if err := e.persist(ctx, cp); err != nil {
		finish()
		return result, err
	}
	metrics.IncInterrupts()

	result.Status = dto.RunStatusPaused
	result.Interrupt = &dto.Interrupt{
		Nodes: append([]string(nil), cp.PendingNodes...),
		State: cp.State.Clone(),
	}
	finish()
	e.logger.Info("run paused at interrupt",
		slog.String("thread_id", cp.ThreadID),
		slog.Any("pending", cp.PendingNodes))
	return result, nil
}

// failRun records the failure alongside the last good checkpoint. The
// partial super-step is discarded: cp still holds the state and pending
// set of the last fully-completed super-step.
func (e *Executor) failRun(ctx context.Context, cp *checkpoint.Checkpoint, result *dto.RunResult, finish func(), cause error) (*dto.RunResult, error) {
	cp.Status = checkpoint.StatusFailed
	cp.Failure = cause.Error()
	if err := e.persist(ctx, cp); err != nil {
		e.logger.Error("persist failure checkpoint",
			slog.String("thread_id", cp.ThreadID),
			slog.String("error", err.Error()))
	}

	result.Status = dto.RunStatusFailed
	finish()
	e.logger.Error("run failed",
		slog.String("thread_id", cp.ThreadID),
		slog.String("error", cause.Error()))
	return result, cause
}

func (e *Executor) persist(ctx context.Context, cp *checkpoint.Checkpoint) error {
	cp.UpdatedAt = time.Now()
	if err := e.saver.Save(ctx, cp.Clone()); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}
	metrics.IncCheckpointSaves()
	return nil
}

func (e *Executor) shouldInterrupt(pending []string) bool {
	for _, name := range pending {
		if e.graph.InterruptBefore(name) {
			return true
		}
	}
	return false
}

func (e *Executor) lockThread(threadID string) func() {
	v, _ := e.locks.LoadOrStore(threadID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// orderedNodes resolves the pending names to nodes sorted by
// declaration sequence, fixing the fold order of the super-step.
func orderedNodes(g *graph.Graph, pending []string) ([]*graph.Node, error) {
	nodes := make([]*graph.Node, 0, len(pending))
	for _, name := range pending {
		node, ok := g.Node(name)
		if !ok {
			return nil, fmt.Errorf("pending node %q: %w", name, graph.ErrUnknownNode)
		}
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Seq < nodes[j].Seq })
	return nodes, nil
}
