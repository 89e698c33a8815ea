// Package stategraph provides the public façade for building and running
// stateful workflow graphs without importing internal packages. It
// re-exports the schema, builder, and routing types and exposes a
// Runtime that wires an executor and a run controller over a chosen
// checkpoint saver.
package stategraph
