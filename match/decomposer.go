package match

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/transitmesh/dispatch/catalog"
)

// decomposePrompt is the fixed contract for query decomposition. The model
// must answer with a flat JSON object mapping agent IDs to sub-queries.
const decomposePrompt = `You are decomposing a complex user query for multiple specialized agents.

Original User Query: %q

Matched Agents and their capabilities:
%s

For EACH matched agent, extract ONLY the relevant sub-question from the
original query. Make each sub-query standalone and focused on that agent's
capabilities; the agent will not see the original query.

Return ONLY valid JSON mapping agent IDs to their specific queries:
{
  "agent-id-1": "focused query for this agent",
  "agent-id-2": "focused query for that agent"
}
`

// LLMDecomposer splits queries with an LLM behind the ChatClient interface.
type LLMDecomposer struct {
	client ChatClient
	logger *zap.Logger
}

// NewLLMDecomposer creates an LLM-backed decomposer.
func NewLLMDecomposer(client ChatClient, logger *zap.Logger) *LLMDecomposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMDecomposer{
		client: client,
		logger: logger.With(zap.String("component", "decomposer")),
	}
}

// Decompose produces per-agent sub-queries for the matched agents. Keys the
// model produces for agents outside the matched set are dropped, so the
// returned map is always a subset of the matched IDs.
func (d *LLMDecomposer) Decompose(ctx context.Context, query string, matched []catalog.AgentDescriptor) (Decomposition, error) {
	prompt := fmt.Sprintf(decomposePrompt, query, catalogText(matched))

	raw, err := d.client.CompleteJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompositionUnavailable, err)
	}

	var parsed map[string]string
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode result: %v", ErrDecompositionUnavailable, err)
	}

	allowed := make(map[string]bool, len(matched))
	for _, a := range matched {
		allowed[a.ID] = true
	}

	result := make(Decomposition, len(parsed))
	for id, sub := range parsed {
		if !allowed[id] {
			d.logger.Warn("decomposer targeted unmatched agent, dropping",
				zap.String("agent_id", id),
			)
			continue
		}
		if sub == "" {
			continue
		}
		result[id] = sub
	}

	d.logger.Debug("query decomposed", zap.Int("sub_queries", len(result)))
	return result, nil
}

var _ Decomposer = (*LLMDecomposer)(nil)
