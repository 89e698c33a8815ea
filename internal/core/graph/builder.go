// Package graph provides the graph builder and its compile-time checks
package graph

import (
	"errors"
	"fmt"

	"github.com/stategraph/stategraph/internal/core/state"
)

// Builder accumulates nodes and edges and validates the whole structure
// at Compile time. All Add* methods are fluent; construction errors are
// collected and reported together by Compile.
// PRINCIPLES:
// - SRP: Only responsible for construction and structural validation
// - Fail fast: every structural defect is a compile error, not a runtime surprise
type Builder struct {
	name            string
	schema          *state.Schema
	nodes           map[string]*Node
	order           []string
	static          map[string]string
	conditional     map[string]*ConditionalEdge
	fanOut          map[string]*FanOutEdge
	entry           string
	interruptBefore []string
	errs            []error
}

// NewBuilder creates a builder for a graph executing against the given
// state schema.
func NewBuilder(name string, schema *state.Schema) *Builder {
	return &Builder{
		name:        name,
		schema:      schema,
		nodes:       make(map[string]*Node),
		static:      make(map[string]string),
		conditional: make(map[string]*ConditionalEdge),
		fanOut:      make(map[string]*FanOutEdge),
	}
}

// AddNode registers a function node under a unique name.
func (b *Builder) AddNode(name string, r Runnable) *Builder {
	b.addNode(&Node{Name: name, Type: NodeTypeFunction, Runner: r})
	return b
}

// AddSubgraph registers a nested graph as a node. The in projection
// seeds the inner state from the outer one; out projects the inner
// final state back as the node's partial update. Nil projections
// default to identity.
func (b *Builder) AddSubgraph(name string, inner *Graph, in, out Projection) *Builder {
	if inner == nil {
		b.fail(fmt.Errorf("subgraph %q: %w", name, ErrNilRunner))
		return b
	}
	if inner.HasInterrupts() {
		b.fail(fmt.Errorf("subgraph %q: %w", name, ErrSubgraphInterrupts))
		return b
	}
	if in == nil {
		in = identity
	}
	if out == nil {
		out = identity
	}
	b.addNode(&Node{
		Name: name,
		Type: NodeTypeSubgraph,
		Sub:  &Subgraph{Inner: inner, In: in, Out: out},
	})
	return b
}

// AddEdge registers an unconditional edge. Start as the source sets the
// entry point; End as the target terminates the run after the source.
func (b *Builder) AddEdge(from, to string) *Builder {
	if from == Start {
		if b.entry != "" {
			b.fail(fmt.Errorf("entry point already set to %q: %w", b.entry, ErrAmbiguousRouting))
			return b
		}
		b.entry = to
		return b
	}
	if _, dup := b.static[from]; dup {
		b.fail(fmt.Errorf("node %q: %w", from, ErrAmbiguousRouting))
		return b
	}
	b.static[from] = to
	return b
}

// AddConditionalEdge registers a routing function on a node together
// with the closed set of destinations it may return. End is a valid
// destination when listed.
func (b *Builder) AddConditionalEdge(from string, router Router, destinations ...string) *Builder {
	if router == nil {
		b.fail(fmt.Errorf("conditional edge from %q: %w", from, ErrNilRunner))
		return b
	}
	if len(destinations) == 0 {
		b.fail(fmt.Errorf("conditional edge from %q: %w", from, ErrNoDestinations))
		return b
	}
	if _, dup := b.conditional[from]; dup {
		b.fail(fmt.Errorf("node %q: %w", from, ErrAmbiguousRouting))
		return b
	}
	dests := make(map[string]bool, len(destinations))
	for _, d := range destinations {
		dests[d] = true
	}
	b.conditional[from] = &ConditionalEdge{Source: from, Router: router, Destinations: dests}
	return b
}

// AddFanOutEdge permits the router on source to spawn dynamic branches.
// Each branch invokes target on an isolated state container; all
// branches converge on join before the shared state is updated.
func (b *Builder) AddFanOutEdge(source, target, join string) *Builder {
	if _, dup := b.fanOut[source]; dup {
		b.fail(fmt.Errorf("node %q: %w", source, ErrDuplicateFanOut))
		return b
	}
	b.fanOut[source] = &FanOutEdge{Source: source, Target: target, Join: join}
	return b
}

// InterruptBefore marks nodes whose invocation is deferred until
// external input arrives.
func (b *Builder) InterruptBefore(names ...string) *Builder {
	b.interruptBefore = append(b.interruptBefore, names...)
	return b
}

// Compile validates the accumulated structure and returns the immutable
// graph.
func (b *Builder) Compile() (*Graph, error) {
	if b.name == "" {
		b.fail(ErrInvalidGraphName)
	}
	if b.schema == nil {
		b.fail(ErrNilSchema)
	}
	b.checkEntry()
	b.checkEdges()
	b.checkRouting()
	b.checkInterrupts()
	b.checkReachability()

	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	interrupts := make(map[string]bool, len(b.interruptBefore))
	for _, n := range b.interruptBefore {
		interrupts[n] = true
	}
	return &Graph{
		name:            b.name,
		schema:          b.schema,
		nodes:           b.nodes,
		order:           b.order,
		static:          b.static,
		conditional:     b.conditional,
		fanOut:          b.fanOut,
		entry:           b.entry,
		interruptBefore: interrupts,
	}, nil
}

func (b *Builder) addNode(n *Node) {
	if n.Name == "" || n.Name == Start || n.Name == End {
		b.fail(fmt.Errorf("node %q: %w", n.Name, ErrInvalidNodeName))
		return
	}
	if n.Type == NodeTypeFunction && n.Runner == nil {
		b.fail(fmt.Errorf("node %q: %w", n.Name, ErrNilRunner))
		return
	}
	if _, exists := b.nodes[n.Name]; exists {
		b.fail(fmt.Errorf("node %q: %w", n.Name, ErrDuplicateNode))
		return
	}
	n.Seq = len(b.order)
	b.nodes[n.Name] = n
	b.order = append(b.order, n.Name)
}

func (b *Builder) fail(err error) {
	b.errs = append(b.errs, err)
}

// requireNode records a compile error when an edge endpoint is not a
// registered node.
func (b *Builder) requireNode(name string) {
	if _, ok := b.nodes[name]; !ok {
		b.fail(fmt.Errorf("node %q: %w", name, ErrUnknownNode))
	}
}

func (b *Builder) checkEntry() {
	if b.entry == "" {
		b.fail(ErrNoEntryPoint)
		return
	}
	if _, ok := b.nodes[b.entry]; !ok {
		b.fail(fmt.Errorf("entry point %q: %w", b.entry, ErrUnknownNode))
	}
}

func (b *Builder) checkEdges() {
	for from, to := range b.static {
		b.requireNode(from)
		if to != End {
			b.requireNode(to)
		}
	}
	for from, e := range b.conditional {
		b.requireNode(from)
		for dest := range e.Destinations {
			if dest != End {
				b.requireNode(dest)
			}
		}
	}
	for src, e := range b.fanOut {
		b.requireNode(src)
		b.requireNode(e.Target)
		b.requireNode(e.Join)
		// A spawn decision only comes out of a routing function.
		if _, ok := b.conditional[src]; !ok {
			b.fail(fmt.Errorf("fan-out source %q has no conditional edge: %w", src, ErrDanglingNode))
		}
	}
}

// checkRouting enforces unambiguous routing: each node leaves through
// exactly one of a static edge, a conditional edge, or the join of the
// fan-out it is the target of.
func (b *Builder) checkRouting() {
	joinTargets := make(map[string]bool)
	for _, e := range b.fanOut {
		joinTargets[e.Target] = true
	}

	for _, name := range b.order {
		_, hasStatic := b.static[name]
		_, hasCond := b.conditional[name]
		isFanTarget := joinTargets[name]

		routes := 0
		for _, has := range []bool{hasStatic, hasCond, isFanTarget} {
			if has {
				routes++
			}
		}
		switch {
		case routes > 1:
			b.fail(fmt.Errorf("node %q: %w", name, ErrAmbiguousRouting))
		case routes == 0:
			b.fail(fmt.Errorf("node %q: %w", name, ErrDanglingNode))
		}
	}
}

func (b *Builder) checkInterrupts() {
	for _, name := range b.interruptBefore {
		if _, ok := b.nodes[name]; !ok {
			b.fail(fmt.Errorf("interrupt-before %q: %w", name, ErrInterruptUnknown))
		}
	}
}

func (b *Builder) checkReachability() {
	if b.entry == "" {
		return
	}
	seen := map[string]bool{}
	frontier := []string{b.entry}
	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]
		if name == End || seen[name] {
			continue
		}
		seen[name] = true
		if to, ok := b.static[name]; ok {
			frontier = append(frontier, to)
		}
		if e, ok := b.conditional[name]; ok {
			for dest := range e.Destinations {
				frontier = append(frontier, dest)
			}
		}
		if e, ok := b.fanOut[name]; ok {
			frontier = append(frontier, e.Target, e.Join)
		}
	}
	for _, name := range b.order {
		if !seen[name] {
			b.fail(fmt.Errorf("node %q: %w", name, ErrUnreachableNode))
		}
	}
}

func identity(s state.State) state.State { return s }
