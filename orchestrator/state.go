// Package orchestrator sequences the request pipeline: catalog lookup,
// semantic matching, optional query decomposition, agent execution over the
// transport executor, and response synthesis. One Orchestrator serves many
// concurrent requests; per-request state never leaves the pipeline run.
package orchestrator

import (
	"github.com/transitmesh/dispatch/match"
	"github.com/transitmesh/dispatch/transport"
)

// stage names the pipeline steps, used for spans and metrics labels.
type stage string

const (
	stageDiscover   stage = "discover"
	stageDecompose  stage = "decompose"
	stageExecute    stage = "execute"
	stageSynthesize stage = "synthesize"
)

// requestState is the single mutable record threaded through one pipeline
// run. It is created at request entry, touched only by that run, and
// discarded once the reply is built.
type requestState struct {
	query          string
	conversationID string

	matched    *match.Result
	intent     string
	confidence float64

	decomposition match.Decomposition
	results       []transport.Result

	response  string
	hadErrors bool
}

// Reply is the caller-facing outcome of one processed message.
type Reply struct {
	// Response is the synthesized natural-language answer.
	Response string `json:"response"`
	// Intent is a coarse informational label inferred from the top match.
	Intent string `json:"intent"`
	// Confidence is the matcher's confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// MatchedAgents lists matched agent IDs in priority order.
	MatchedAgents []string `json:"matched_agents"`
	// AgentsCalled lists each attempted agent, annotated with "(failed)"
	// or "(error)" when its call did not succeed.
	AgentsCalled []string `json:"agents_called"`
	// Metadata records how the request was served.
	Metadata ReplyMetadata `json:"metadata"`
}

// ReplyMetadata records per-request serving details.
type ReplyMetadata struct {
	// Transports maps each called agent to the transport kind that served
	// (or last failed) its call.
	Transports map[string]string `json:"transports"`
	// Decomposition is the sub-query map actually used during execution.
	Decomposition map[string]string `json:"decomposition"`
	// Reasoning is the matcher's free-text rationale.
	Reasoning string `json:"reasoning,omitempty"`
	// MatchConfidence is the matcher's own confidence in [0,1], distinct
	// from the intent-label confidence reported at the top level.
	MatchConfidence float64 `json:"match_confidence"`
	// PartialFailure is true when at least one agent call failed but the
	// request still produced an answer.
	PartialFailure bool `json:"partial_failure"`
}
