package match

import "errors"

var (
	// ErrMatchingUnavailable indicates the matching capability failed.
	// Callers degrade to the no-match path; they never retry.
	ErrMatchingUnavailable = errors.New("match: matching unavailable")

	// ErrDecompositionUnavailable indicates the decomposition capability
	// failed. Callers fall back to the original query for every agent.
	ErrDecompositionUnavailable = errors.New("match: decomposition unavailable")
)
