package match

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/transitmesh/dispatch/catalog"
)

func matchedAgents() []catalog.AgentDescriptor {
	return []catalog.AgentDescriptor{
		{ID: "alerts", Description: "Service alerts and delay reports"},
		{ID: "planner", Description: "Route planning between stops"},
	}
}

func TestLLMDecomposer_Decompose(t *testing.T) {
	chat := &stubChat{response: `{"alerts":"Are there delays?","planner":"Route from A to B"}`}
	dec := NewLLMDecomposer(chat, zap.NewNop())

	result, err := dec.Decompose(context.Background(), "Check delays then route me from A to B", matchedAgents())
	require.NoError(t, err)
	assert.Equal(t, Decomposition{
		"alerts":  "Are there delays?",
		"planner": "Route from A to B",
	}, result)
}

func TestLLMDecomposer_DropsUnmatchedKeys(t *testing.T) {
	chat := &stubChat{response: `{"alerts":"Are there delays?","stopfinder":"Find MIT station"}`}
	dec := NewLLMDecomposer(chat, zap.NewNop())

	result, err := dec.Decompose(context.Background(), "delays and stations", matchedAgents())
	require.NoError(t, err)

	// Every key is a member of the matched set.
	assert.Equal(t, Decomposition{"alerts": "Are there delays?"}, result)
}

func TestLLMDecomposer_DropsEmptySubQueries(t *testing.T) {
	chat := &stubChat{response: `{"alerts":"","planner":"Route from A to B"}`}
	dec := NewLLMDecomposer(chat, zap.NewNop())

	result, err := dec.Decompose(context.Background(), "route me", matchedAgents())
	require.NoError(t, err)
	assert.Equal(t, Decomposition{"planner": "Route from A to B"}, result)
}

func TestLLMDecomposer_FailureIsDecompositionUnavailable(t *testing.T) {
	chat := &stubChat{err: errors.New("boom")}
	dec := NewLLMDecomposer(chat, zap.NewNop())

	_, err := dec.Decompose(context.Background(), "q", matchedAgents())
	assert.ErrorIs(t, err, ErrDecompositionUnavailable)
}

func TestLLMDecomposer_MalformedReply(t *testing.T) {
	chat := &stubChat{response: `["not","a","map"]`}
	dec := NewLLMDecomposer(chat, zap.NewNop())

	_, err := dec.Decompose(context.Background(), "q", matchedAgents())
	assert.ErrorIs(t, err, ErrDecompositionUnavailable)
}
