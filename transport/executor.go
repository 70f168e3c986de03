package transport

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/transitmesh/dispatch/catalog"
)

// ExecutorConfig holds configuration for the Executor.
type ExecutorConfig struct {
	// Preferred is the transport kind tried first.
	Preferred Kind
	// SessionTimeout bounds each session-path attempt.
	SessionTimeout time.Duration
	// HTTPTimeout bounds each HTTP-path attempt.
	HTTPTimeout time.Duration
}

// DefaultExecutorConfig returns an ExecutorConfig with sensible defaults.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		Preferred:      KindHTTP,
		SessionTimeout: 10 * time.Second,
		HTTPTimeout:    15 * time.Second,
	}
}

// Executor invokes one agent over the preferred transport and falls back
// exactly once to the other on failure. An agent call therefore makes at
// most two attempts, each under its own deadline; the final failure is the
// one reported.
type Executor struct {
	config     *ExecutorConfig
	transports map[Kind]Transport
	logger     *zap.Logger
}

// NewExecutor creates an Executor over the given transports. A kind the
// caller does not register is simply never attempted, so running with only
// the HTTP transport disables the fast path without further configuration.
func NewExecutor(config *ExecutorConfig, transports []Transport, logger *zap.Logger) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	byKind := make(map[Kind]Transport, len(transports))
	for _, tr := range transports {
		byKind[tr.Kind()] = tr
	}

	return &Executor{
		config:     config,
		transports: byKind,
		logger:     logger.With(zap.String("component", "transport.executor")),
	}
}

// attemptTimeout returns the per-attempt deadline for a transport kind.
func (e *Executor) attemptTimeout(kind Kind) time.Duration {
	if kind == KindSession {
		return e.config.SessionTimeout
	}
	return e.config.HTTPTimeout
}

// Execute calls the agent, preferring the configured transport and falling
// back once to the other kind. The returned Result records which path served
// (or last failed) and the classified error when both attempts fail. The
// parent context bounds the whole exchange; an expired parent stops the
// fallback attempt.
func (e *Executor) Execute(ctx context.Context, agent catalog.AgentDescriptor, message, conversationID string) Result {
	result := Result{AgentID: agent.ID}

	order := []Kind{e.config.Preferred, e.config.Preferred.Other()}
	attempted := false

	for _, kind := range order {
		tr, ok := e.transports[kind]
		if !ok {
			continue
		}
		if attempted && ctx.Err() != nil {
			break
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout(kind))
		text, cerr := tr.Call(attemptCtx, agent, message, conversationID)
		cancel()

		result.Served = kind
		attempted = true

		if cerr == nil {
			result.Text = text
			result.Err = nil
			return result
		}

		result.Err = cerr
		e.logger.Warn("agent call failed",
			zap.String("agent_id", agent.ID),
			zap.String("transport", string(kind)),
			zap.String("kind", string(cerr.Kind)),
			zap.String("detail", cerr.Detail))
	}

	if !attempted {
		result.Err = newCallError(ErrorKindUnavailable, "no transport registered")
	}
	return result
}
