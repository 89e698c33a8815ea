// Package metrics exposes expvar-published counters used by the
// StateGraph executor (super-steps, node and branch executions,
// interrupts, checkpoint saves). It intentionally avoids external
// dependencies and is readable through the standard /debug/vars
// endpoint.
package metrics
