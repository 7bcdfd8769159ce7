// Package flowmachine routes inbound chat messages through user-authored
// automation flows. A flow is a directed graph of typed nodes; the engine
// matches messages against trigger nodes, walks the graph executing node
// side effects, and suspends into a persisted session whenever a node waits
// for user input. The next message from the same conversation resumes the
// session exactly where it stopped.
//
// The top-level Engine in this package is the batteries-included entry
// point. Hosts that need finer control can assemble the pieces from
// internal packages via pkg/ports interfaces.
package flowmachine
