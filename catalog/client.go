package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// reservedListKey is the non-agent bookkeeping key the registry includes in
// its listing; it must never be treated as an agent ID.
const reservedListKey = "agent_status"

// ClientConfig holds configuration for the registry client.
type ClientConfig struct {
	// BaseURL is the registry base URL.
	BaseURL string
	// HealthTimeout bounds the health probe.
	HealthTimeout time.Duration
	// FetchTimeout bounds a full catalog fetch.
	FetchTimeout time.Duration
	// FetchConcurrency bounds concurrent per-agent detail fetches.
	FetchConcurrency int
}

// DefaultClientConfig returns a ClientConfig with sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:          baseURL,
		HealthTimeout:    5 * time.Second,
		FetchTimeout:     10 * time.Second,
		FetchConcurrency: 4,
	}
}

// Client fetches agent descriptors from the registry over HTTP.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a registry client.
func NewClient(config ClientConfig, logger *zap.Logger) *Client {
	if config.HealthTimeout == 0 {
		config.HealthTimeout = 5 * time.Second
	}
	if config.FetchTimeout == 0 {
		config.FetchTimeout = 10 * time.Second
	}
	if config.FetchConcurrency < 1 {
		config.FetchConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.FetchTimeout,
		},
		logger: logger.With(zap.String("component", "registry_client")),
	}
}

// ValidateConnection performs a cheap health probe against the registry.
// It is used at process startup to fail fast before serving traffic.
func (c *Client) ValidateConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health probe: %v", ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health probe returned status %d", ErrRegistryUnavailable, resp.StatusCode)
	}
	return nil
}

// FetchSnapshot retrieves the full catalog: the agent ID listing followed by
// per-agent detail records. Agents whose detail fetch fails or whose liveness
// flag is false are excluded silently. Detail fetches run concurrently,
// bounded by FetchConcurrency; the resulting snapshot preserves a stable
// (sorted) ID order regardless of completion order.
func (c *Client) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.FetchTimeout)
	defer cancel()

	ids, err := c.listAgentIDs(ctx)
	if err != nil {
		return nil, err
	}

	// Each goroutine writes its own slice slot, so no lock is needed.
	descriptors := make([]*AgentDescriptor, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.FetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			desc, err := c.fetchAgent(gctx, id)
			if err != nil {
				c.logger.Debug("agent detail fetch failed, excluding from catalog",
					zap.String("agent_id", id),
					zap.Error(err),
				)
				return nil
			}
			if !desc.Alive {
				return nil
			}
			descriptors[i] = desc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	agents := make([]AgentDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if d != nil {
			agents = append(agents, *d)
		}
	}

	return &Snapshot{
		Agents:     agents,
		CapturedAt: time.Now(),
	}, nil
}

// listAgentIDs fetches the registry listing and returns the agent IDs in
// sorted order, skipping the reserved bookkeeping key.
func (c *Client) listAgentIDs(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/list", nil)
	if err != nil {
		return nil, fmt.Errorf("create list request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: list returned status %d", ErrRegistryUnavailable, resp.StatusCode)
	}

	var listing map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("%w: decode list: %v", ErrRegistryUnavailable, err)
	}

	ids := make([]string, 0, len(listing))
	for id := range listing {
		if id == reservedListKey {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// fetchAgent fetches one agent's detail record.
func (c *Client) fetchAgent(ctx context.Context, id string) (*AgentDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/agents/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("create agent request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch agent %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch agent %s: status %d", id, resp.StatusCode)
	}

	var desc AgentDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return nil, fmt.Errorf("decode agent %s: %w", id, err)
	}
	if desc.ID == "" {
		desc.ID = id
	}
	return &desc, nil
}
