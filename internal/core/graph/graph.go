// Package graph provides the immutable workflow graph definition
// following Clean Architecture principles with zero external dependencies.
package graph

import (
	"context"

	"github.com/stategraph/stategraph/internal/core/state"
)

// Reserved routing markers. Start names the virtual predecessor of the
// entry node; End names the terminal marker a run converges on.
const (
	Start = "__start__"
	End   = "__end__"
)

// Runnable is anything invocable as a node: a plain function, or a
// nested graph wrapped by Subgraph. Implementations receive a read-only
// view of the state and return a partial update; they must not mutate
// the input.
type Runnable interface {
	Run(ctx context.Context, s state.State) (state.State, error)
}

// NodeFunc adapts a plain function to the Runnable interface.
type NodeFunc func(ctx context.Context, s state.State) (state.State, error)

// Run implements Runnable.
func (f NodeFunc) Run(ctx context.Context, s state.State) (state.State, error) {
	return f(ctx, s)
}

// NodeType represents the kind of node
type NodeType string

const (
	// NodeTypeFunction represents a plain function node
	NodeTypeFunction NodeType = "function"
	// NodeTypeSubgraph represents a nested graph embedded as a node
	NodeTypeSubgraph NodeType = "subgraph"
)

// Node is a named unit of computation.
type Node struct {
	Name   string
	Type   NodeType
	Runner Runnable
	Sub    *Subgraph
	// Seq is the declaration index, used to fold the updates of one
	// super-step in a fixed deterministic order.
	Seq int
}

// Projection maps between an outer state and an inner subgraph state.
type Projection func(s state.State) state.State

// Subgraph embeds a nested graph as a single node of an outer graph.
// The inner graph runs to its own End marker each time the node is
// invoked, on an independent state container seeded by In; Out projects
// the inner final state back into the outer node's partial update.
// Inner graphs used this way must not declare interrupt points; the
// builder rejects them at compile time.
type Subgraph struct {
	Inner *Graph
	In    Projection
	Out   Projection
}

// ConditionalEdge routes from a node by inspecting state after the
// node's own update has been folded in.
type ConditionalEdge struct {
	Source       string
	Router       Router
	Destinations map[string]bool
}

// Allows reports whether the router may return the given destination.
func (e *ConditionalEdge) Allows(dest string) bool {
	return e.Destinations[dest]
}

// FanOutEdge declares the single source node allowed to spawn dynamic
// branches, the node each branch invokes, and the fan-in successor all
// branches converge on.
type FanOutEdge struct {
	Source string
	Target string
	Join   string
}

// Graph is the compiled, immutable workflow definition.
type Graph struct {
	name            string
	schema          *state.Schema
	nodes           map[string]*Node
	order           []string
	static          map[string]string
	conditional     map[string]*ConditionalEdge
	fanOut          map[string]*FanOutEdge
	entry           string
	interruptBefore map[string]bool
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// Schema returns the state schema the graph executes against.
func (g *Graph) Schema() *state.Schema { return g.schema }

// Entry returns the entry node name.
func (g *Graph) Entry() string { return g.entry }

// Node looks up a node by name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// StaticTarget returns the unconditional successor of a node, if any.
func (g *Graph) StaticTarget(name string) (string, bool) {
	t, ok := g.static[name]
	return t, ok
}

// Conditional returns the conditional edge leaving a node, if any.
func (g *Graph) Conditional(name string) (*ConditionalEdge, bool) {
	e, ok := g.conditional[name]
	return e, ok
}

// FanOut returns the fan-out edge leaving a node, if any.
func (g *Graph) FanOut(name string) (*FanOutEdge, bool) {
	e, ok := g.fanOut[name]
	return e, ok
}

// JoinFor returns the fan-in successor of a node that is the target of
// a fan-out edge, if any.
func (g *Graph) JoinFor(target string) (string, bool) {
	for _, e := range g.fanOut {
		if e.Target == target {
			return e.Join, true
		}
	}
	return "", false
}

// NodeNames returns the node names in declaration order.
func (g *Graph) NodeNames() []string {
	return append([]string(nil), g.order...)
}

// InterruptBefore reports whether execution must pause before the node.
func (g *Graph) InterruptBefore(name string) bool {
	return g.interruptBefore[name]
}

// HasInterrupts reports whether the graph declares any interrupt point.
func (g *Graph) HasInterrupts() bool {
	return len(g.interruptBefore) > 0
}
