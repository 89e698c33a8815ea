// Package graph defines domain-specific errors
package graph

import (
	"errors"
	"fmt"
)

// Domain errors - defined once, used everywhere
var (
	// Build errors
	ErrInvalidGraphName   = errors.New("invalid graph name")
	ErrNilSchema          = errors.New("graph schema cannot be nil")
	ErrNoEntryPoint       = errors.New("no entry point specified")
	ErrInvalidNodeName    = errors.New("invalid node name")
	ErrNilRunner          = errors.New("node runner cannot be nil")
	ErrDuplicateNode      = errors.New("duplicate node name")
	ErrUnknownNode        = errors.New("edge references unknown node")
	ErrUnreachableNode    = errors.New("node unreachable from entry point")
	ErrAmbiguousRouting   = errors.New("node has more than one outgoing route")
	ErrDanglingNode       = errors.New("node has no outgoing route")
	ErrNoDestinations     = errors.New("conditional edge declares no destinations")
	ErrDuplicateFanOut    = errors.New("node already declares a fan-out edge")
	ErrSubgraphInterrupts = errors.New("subgraph must not declare interrupt points")
	ErrInterruptUnknown   = errors.New("interrupt-before references unknown node")

	// ErrUndeclaredDestination marks a router returning a destination
	// outside its declared set. Fatal: it aborts the run.
	ErrUndeclaredDestination = errors.New("undeclared routing destination")
)

// RoutingError reports the node whose router returned a destination not
// present in its declared destination set.
type RoutingError struct {
	Node        string
	Destination string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("node %q routed to undeclared destination %q", e.Node, e.Destination)
}

func (e *RoutingError) Unwrap() error { return ErrUndeclaredDestination }
