package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/transitmesh/dispatch/catalog"
)

// messagePath is the agent endpoint suffix for message delivery.
const messagePath = "/message"

// HTTPConfig holds configuration for the HTTP transport.
type HTTPConfig struct {
	// Timeout bounds each HTTP call when the context carries no deadline.
	Timeout time.Duration
	// Headers are additional headers to include in requests.
	Headers map[string]string
}

// DefaultHTTPConfig returns an HTTPConfig with sensible defaults.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Timeout: 15 * time.Second,
		Headers: make(map[string]string),
	}
}

// HTTPTransport is the stateless request/response fallback path. Each call
// is an independent POST to the agent's message endpoint; no connection
// state survives between calls.
type HTTPTransport struct {
	config     *HTTPConfig
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates an HTTPTransport with the given configuration.
func NewHTTPTransport(config *HTTPConfig, logger *zap.Logger) *HTTPTransport {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPTransport{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.With(zap.String("component", "transport.http")),
	}
}

// Kind identifies the transport path.
func (t *HTTPTransport) Kind() Kind {
	return KindHTTP
}

// Call posts the request envelope to the agent and decodes the reply
// envelope. Failures are classified so the Executor can decide whether the
// other path is worth trying.
func (t *HTTPTransport) Call(ctx context.Context, agent catalog.AgentDescriptor, message, conversationID string) (string, *CallError) {
	if agent.Endpoint == "" {
		return "", newCallError(ErrorKindUnavailable, "agent %s has no endpoint", agent.ID)
	}

	body, cerr := encodeRequest(newRequestEnvelope(agent.ID, message, conversationID))
	if cerr != nil {
		return "", cerr
	}

	url := strings.TrimRight(agent.Endpoint, "/") + messagePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", newCallError(ErrorKindConnection, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		kind := classifyTransportError(ctx, err)
		t.logger.Debug("http call failed",
			zap.String("agent_id", agent.ID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return "", newCallError(kind, "post %s: %v", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", newCallError(classifyTransportError(ctx, err), "read response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newCallError(ErrorKindProtocol, "agent returned status %d", resp.StatusCode)
	}

	return decodeResponse(data)
}

// classifyTransportError maps a Go-level transport error to an ErrorKind.
// Deadline expiry counts as a timeout whether it surfaced from the context
// or from the HTTP client; everything else is a connection failure.
func classifyTransportError(ctx context.Context, err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrorKindTimeout
	}
	var nerr interface{ Timeout() bool }
	if errors.As(err, &nerr) && nerr.Timeout() {
		return ErrorKindTimeout
	}
	return ErrorKindConnection
}
