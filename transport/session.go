package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/transitmesh/dispatch/catalog"
)

// SessionConfig holds configuration for the session transport.
type SessionConfig struct {
	// Endpoints maps agent IDs to their session endpoints. Agents absent
	// from the map cannot be reached over the fast path.
	Endpoints map[string]string
	// DialTimeout bounds session establishment at startup and on redial.
	DialTimeout time.Duration
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		Endpoints:   make(map[string]string),
		DialTimeout: 10 * time.Second,
	}
}

// session is one persistent connection to one agent. Calls on a session are
// serialized so request/response pairs never interleave on the wire.
type session struct {
	url  string
	mu   sync.Mutex
	conn *websocket.Conn
}

// SessionTransport is the low-latency fast path. It keeps one persistent
// WebSocket session per configured agent, established once at startup and
// redialed lazily after a failure. Agents without a configured endpoint get
// an unavailable error, which sends the Executor to the HTTP fallback.
type SessionTransport struct {
	config   *SessionConfig
	sessions map[string]*session
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
}

var _ Transport = (*SessionTransport)(nil)

// NewSessionTransport creates a SessionTransport with the given configuration.
// Connections are not dialed until Init is called.
func NewSessionTransport(config *SessionConfig, logger *zap.Logger) *SessionTransport {
	if config == nil {
		config = DefaultSessionConfig()
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sessions := make(map[string]*session, len(config.Endpoints))
	for agentID, url := range config.Endpoints {
		sessions[agentID] = &session{url: url}
	}

	return &SessionTransport{
		config:   config,
		sessions: sessions,
		logger:   logger.With(zap.String("component", "transport.session")),
	}
}

// Kind identifies the transport path.
func (t *SessionTransport) Kind() Kind {
	return KindSession
}

// Init dials every configured session. A dial failure is returned but leaves
// the transport usable: the failed session redials lazily on first use, and
// the Executor covers the gap through the fallback path in the meantime.
func (t *SessionTransport) Init(ctx context.Context) error {
	var firstErr error
	for agentID, s := range t.sessions {
		s.mu.Lock()
		err := t.dialLocked(ctx, s)
		s.mu.Unlock()
		if err != nil {
			t.logger.Warn("session dial failed",
				zap.String("agent_id", agentID),
				zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("dial session for %s: %w", agentID, err)
			}
			continue
		}
		t.logger.Info("session established", zap.String("agent_id", agentID))
	}
	return firstErr
}

// dialLocked establishes the session connection. Caller holds s.mu.
func (t *SessionTransport) dialLocked(ctx context.Context, s *session) error {
	if s.conn != nil {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, t.config.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	if err != nil {
		return err
	}
	// Agent replies can be large; the default read limit is 32 KiB.
	conn.SetReadLimit(1 << 20)
	s.conn = conn
	return nil
}

// Call sends the request envelope over the agent's persistent session and
// awaits the reply envelope. A broken connection is dropped and redialed on
// the next call rather than retried here; retry policy belongs to the
// Executor.
func (t *SessionTransport) Call(ctx context.Context, agent catalog.AgentDescriptor, message, conversationID string) (string, *CallError) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return "", newCallError(ErrorKindUnavailable, "session transport is closed")
	}

	s, ok := t.sessions[agent.ID]
	if !ok {
		return "", newCallError(ErrorKindUnavailable, "no session configured for agent %s", agent.ID)
	}

	body, cerr := encodeRequest(newRequestEnvelope(agent.ID, message, conversationID))
	if cerr != nil {
		return "", cerr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := t.dialLocked(ctx, s); err != nil {
		return "", newCallError(classifyTransportError(ctx, err), "dial %s: %v", s.url, err)
	}

	if err := s.conn.Write(ctx, websocket.MessageText, body); err != nil {
		t.dropLocked(s)
		return "", newCallError(classifyTransportError(ctx, err), "write to %s: %v", agent.ID, err)
	}

	_, data, err := s.conn.Read(ctx)
	if err != nil {
		t.dropLocked(s)
		return "", newCallError(classifyTransportError(ctx, err), "read from %s: %v", agent.ID, err)
	}

	return decodeResponse(data)
}

// dropLocked discards a broken connection so the next call redials.
// Caller holds s.mu.
func (t *SessionTransport) dropLocked(s *session) {
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusInternalError, "connection reset")
		s.conn = nil
	}
}

// Close shuts down every open session. The transport rejects calls after
// Close returns.
func (t *SessionTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	for _, s := range t.sessions {
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.Close(websocket.StatusNormalClosure, "shutting down")
			s.conn = nil
		}
		s.mu.Unlock()
	}
	return nil
}
