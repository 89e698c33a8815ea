// Package prebuilt provides opinionated, ready-made workflow graph
// templates ("prebuilts") such as the conversational assistant. Each
// prebuilt exposes a typed configuration and returns a compiled
// *stategraph.Graph that you can run with the default runtime or
// customize as needed.
package prebuilt
