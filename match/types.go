// Package match provides the semantic matching and query decomposition
// capability boundaries. Both are backed by an external LLM behind a fixed
// JSON prompt/response contract; the package never reproduces the ranking
// intelligence itself, only the contract around it.
package match

import (
	"context"

	"github.com/transitmesh/dispatch/catalog"
)

// Result is a ranked matching outcome, scoped to one request. Agent order is
// significant: it is the priority order used downstream for intent inference,
// decomposition, execution, and display.
type Result struct {
	// Agents are matched agent IDs, most relevant first.
	Agents []string `json:"matched_agents"`

	// Confidence is the matcher's confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Reasoning is the matcher's free-text rationale.
	Reasoning string `json:"reasoning"`
}

// Decomposition maps agent IDs to focused, self-contained sub-queries.
// An agent absent from the map receives the original query verbatim.
type Decomposition map[string]string

// Matcher ranks catalog agents against a natural-language query.
//
// Implementations are NOT required to be deterministic: two calls with
// identical input may rank differently. An empty catalog yields an empty
// result, not an error. Any downstream failure surfaces as
// ErrMatchingUnavailable; callers must not retry automatically.
type Matcher interface {
	Match(ctx context.Context, query string, snap *catalog.Snapshot) (*Result, error)
}

// Decomposer splits a multi-intent query into per-agent sub-queries. It is
// only meaningful for two or more matched agents. Each produced sub-query
// must stand alone; the receiving agent never sees the original query.
type Decomposer interface {
	Decompose(ctx context.Context, query string, matched []catalog.AgentDescriptor) (Decomposition, error)
}
