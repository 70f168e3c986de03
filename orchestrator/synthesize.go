package orchestrator

import (
	"strings"

	"github.com/transitmesh/dispatch/transport"
)

const (
	// allFailedReply is returned when every agent call failed.
	allFailedReply = "Agents are currently unavailable."
	// partialFailureNote is appended once when some but not all calls failed.
	partialFailureNote = "Note: some information sources were unavailable, so this answer may be incomplete."
	// greetingReply answers a greeting when no agents matched.
	greetingReply = "Hello! I'm the transit dispatch assistant. What can I help you with?"
	// capabilityHintReply answers any other no-match query.
	capabilityHintReply = "I'm specialized in transit information. Try asking about alerts, stops, or routes."
)

var greetingCues = []string{"hi", "hello", "hey"}

// synthesize merges per-agent results into one reply, in the order given,
// which the executor has already restored to match order. Successful texts
// are joined by a blank line; empty texts are skipped. Partial failure adds
// one advisory note, total failure yields a fixed unavailability message.
// The returned flag reports whether any call failed.
func synthesize(results []transport.Result) (string, bool) {
	var texts []string
	hadErrors := false
	for _, r := range results {
		if r.Failed() {
			hadErrors = true
			continue
		}
		if r.Text != "" {
			texts = append(texts, r.Text)
		}
	}

	if len(texts) == 0 {
		return allFailedReply, hadErrors
	}

	merged := strings.Join(texts, "\n\n")
	if hadErrors {
		merged += "\n\n" + partialFailureNote
	}
	return merged, hadErrors
}

// noMatchReply produces the short-circuit answer when no agents matched:
// a greeting when the query looks like one, otherwise a capability hint.
func noMatchReply(query string) string {
	lowered := strings.ToLower(query)
	for _, cue := range greetingCues {
		if strings.Contains(lowered, cue) {
			return greetingReply
		}
	}
	return capabilityHintReply
}
