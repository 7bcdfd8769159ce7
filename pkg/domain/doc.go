// Package domain contains the core data model of the flow execution engine:
// flows (node/edge graphs), per-conversation sessions, inbound messages and
// the events emitted over a session's lifecycle.
//
// The package is dependency-light on purpose. Everything here is plain data
// plus pure functions over it; orchestration lives in the internal packages.
package domain
