// Package graph provides routing decisions for conditional edges
package graph

import (
	"context"

	"github.com/stategraph/stategraph/internal/core/state"
)

// Router inspects state and decides where control flows next. It runs
// against the state after its source node's own update has been folded
// in, so routing always sees that node's fresh output.
type Router func(ctx context.Context, s state.State) (Decision, error)

// Decision is the outcome of a Router: a single named destination, the
// End marker, or a dynamic fan-out carrying one seed state per branch.
type Decision struct {
	Next     string
	Branches []state.State
}

// IsFanOut reports whether the decision spawns dynamic branches.
func (d Decision) IsFanOut() bool { return d.Branches != nil }

// Goto routes to a single named destination.
func Goto(name string) Decision { return Decision{Next: name} }

// Finish routes to the End marker.
func Finish() Decision { return Decision{Next: End} }

// Spawn fans out one branch per seed state. Each branch invokes the
// fan-out edge's declared target node with an isolated state container
// seeded from the given input.
func Spawn(inputs ...state.State) Decision {
	if inputs == nil {
		inputs = []state.State{}
	}
	return Decision{Branches: inputs}
}
