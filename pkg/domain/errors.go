package domain

import "errors"

// ErrSessionNotFound is returned when a session id cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrFlowNotFound is returned when the flow provider has no such flow.
var ErrFlowNotFound = errors.New("flow not found")

// ErrNodeNotFound is returned when a session points at a node missing from
// its owning flow.
var ErrNodeNotFound = errors.New("node not found in flow")

// ErrCycleDetected is returned when a traversal re-enters a node it already
// visited within the same run.
var ErrCycleDetected = errors.New("cycle detected in flow traversal")

// ErrMaxDepthExceeded is returned when a traversal exceeds the configured
// depth limit.
var ErrMaxDepthExceeded = errors.New("max traversal depth exceeded")

// ErrNoExecutor is returned when no executor is registered for a node type.
var ErrNoExecutor = errors.New("no executor registered for node type")

// ErrSessionTerminal is returned when an operation targets a session that
// already reached a terminal status.
var ErrSessionTerminal = errors.New("session is terminal")
