package match

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/transitmesh/dispatch/catalog"
)

// matchPrompt is the fixed contract sent to the matching capability. The
// model must answer with a JSON object carrying matched_agents, reasoning,
// and confidence.
const matchPrompt = `Match the user query to the available agents.

User Query: %q

Available Agents:
%s

Return JSON:
{
  "matched_agents": ["agent_id_1"],
  "reasoning": "explanation",
  "confidence": 0.9
}
`

// LLMMatcher ranks catalog agents with an LLM behind the ChatClient
// interface.
type LLMMatcher struct {
	client ChatClient
	logger *zap.Logger
}

// NewLLMMatcher creates an LLM-backed matcher.
func NewLLMMatcher(client ChatClient, logger *zap.Logger) *LLMMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMMatcher{
		client: client,
		logger: logger.With(zap.String("component", "matcher")),
	}
}

// Match ranks the snapshot's agents against the query. An empty catalog
// short-circuits to an empty result. IDs the model invents that are not in
// the catalog are dropped; ranking order is preserved otherwise.
func (m *LLMMatcher) Match(ctx context.Context, query string, snap *catalog.Snapshot) (*Result, error) {
	if snap.Empty() {
		return &Result{}, nil
	}

	prompt := fmt.Sprintf(matchPrompt, query, catalogText(snap.Agents))

	raw, err := m.client.CompleteJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMatchingUnavailable, err)
	}

	var parsed Result
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode result: %v", ErrMatchingUnavailable, err)
	}

	result := &Result{
		Confidence: clamp01(parsed.Confidence),
		Reasoning:  parsed.Reasoning,
	}
	for _, id := range parsed.Agents {
		if _, ok := snap.Lookup(id); !ok {
			m.logger.Warn("matcher returned unknown agent id, dropping",
				zap.String("agent_id", id),
			)
			continue
		}
		result.Agents = append(result.Agents, id)
	}

	m.logger.Debug("match completed",
		zap.Strings("matched_agents", result.Agents),
		zap.Float64("confidence", result.Confidence),
	)
	return result, nil
}

// catalogText renders agents as the bullet list the prompt contract expects.
func catalogText(agents []catalog.AgentDescriptor) string {
	var b strings.Builder
	for _, a := range agents {
		fmt.Fprintf(&b, "- %s: %s\n", a.ID, a.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ Matcher = (*LLMMatcher)(nil)
