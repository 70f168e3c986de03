// Package catalog maintains the cached view of live backend agents published
// by the registry. It provides a registry HTTP client, a TTL cache holding an
// atomically swapped snapshot, and an optional Redis-backed snapshot store
// used to warm-start the cache across restarts.
package catalog

import "time"

// AgentDescriptor is an immutable snapshot of one registered agent.
// The registry produces descriptors; this package never mutates them.
type AgentDescriptor struct {
	// ID is the unique agent identifier.
	ID string `json:"agent_id"`

	// Endpoint is the agent's base URL (scheme, host, port).
	Endpoint string `json:"agent_url"`

	// Description is the human-readable capability description used for
	// semantic matching.
	Description string `json:"description"`

	// Capabilities are optional capability tags.
	Capabilities []string `json:"capabilities,omitempty"`

	// Alive reports the registry's liveness view of the agent.
	Alive bool `json:"alive"`
}

// Snapshot is an ordered, fully populated set of live agents captured at one
// point in time. A snapshot is immutable after capture; the cache replaces
// whole snapshots, never patches them.
type Snapshot struct {
	// Agents are the live agents, in registry listing order.
	Agents []AgentDescriptor `json:"agents"`

	// CapturedAt is when the snapshot was fetched from the registry.
	CapturedAt time.Time `json:"captured_at"`
}

// Lookup returns the descriptor for the given agent ID.
func (s *Snapshot) Lookup(id string) (AgentDescriptor, bool) {
	if s == nil {
		return AgentDescriptor{}, false
	}
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentDescriptor{}, false
}

// Empty reports whether the snapshot holds no agents.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Agents) == 0
}

// Age returns how long ago the snapshot was captured.
func (s *Snapshot) Age(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	return now.Sub(s.CapturedAt)
}
