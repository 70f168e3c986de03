// Package transport executes calls against individual agents. It provides a
// stateless HTTP request/response transport (fallback path), a persistent
// WebSocket session transport (fast path), and an Executor that tries a
// preferred transport and falls back exactly once to the other.
package transport

import "fmt"

// Kind identifies a transport path.
type Kind string

const (
	// KindSession is the low-latency persistent-session fast path.
	KindSession Kind = "session"
	// KindHTTP is the stateless request/response fallback path.
	KindHTTP Kind = "http"
)

// Other returns the opposite transport kind.
func (k Kind) Other() Kind {
	if k == KindSession {
		return KindHTTP
	}
	return KindSession
}

// ErrorKind classifies an agent call failure.
type ErrorKind string

const (
	// ErrorKindConnection indicates the agent could not be reached.
	ErrorKindConnection ErrorKind = "connection"
	// ErrorKindTimeout indicates the call exceeded its deadline.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindProtocol indicates a malformed, unexpected, or error-carrying
	// envelope.
	ErrorKindProtocol ErrorKind = "protocol"
	// ErrorKindUnavailable indicates the transport is not configured or
	// initialized for the agent.
	ErrorKindUnavailable ErrorKind = "unavailable"
)

// CallError is a classified agent call failure.
type CallError struct {
	Kind   ErrorKind
	Detail string
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return fmt.Sprintf("transport: %s: %s", e.Kind, e.Detail)
}

// newCallError builds a CallError with a formatted detail.
func newCallError(kind ErrorKind, format string, args ...any) *CallError {
	return &CallError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Result is the tagged outcome of invoking one agent: either a successful
// text payload or a classified error, never both.
type Result struct {
	// AgentID identifies the called agent.
	AgentID string
	// Text is the agent's reply. May be empty on success; callers decide
	// whether empty text is meaningful.
	Text string
	// Served is the transport kind that produced the outcome.
	Served Kind
	// Err is the classified failure, nil on success.
	Err *CallError
}

// Failed reports whether the call ended in failure.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Label renders the agent ID annotated for the caller-facing call list:
// bare on success, "(failed)" when the agent answered with an error
// envelope, "(error)" for transport-level failures.
func (r Result) Label() string {
	if r.Err == nil {
		return r.AgentID
	}
	if r.Err.Kind == ErrorKindProtocol {
		return r.AgentID + " (failed)"
	}
	return r.AgentID + " (error)"
}
