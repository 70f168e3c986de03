package transport

import (
	"context"

	"github.com/transitmesh/dispatch/catalog"
)

// Transport delivers one message to one agent and returns the reply text.
// Implementations classify every failure as a CallError so the Executor can
// decide whether to fall back. Transports hold no per-request state; any
// state they keep (connections, sessions) is process-wide.
type Transport interface {
	// Kind identifies the transport path.
	Kind() Kind

	// Call sends the message and awaits the reply. The context carries the
	// per-attempt deadline set by the Executor.
	Call(ctx context.Context, agent catalog.AgentDescriptor, message, conversationID string) (string, *CallError)
}
