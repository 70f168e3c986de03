package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/transitmesh/dispatch/catalog"
)

// stubChat returns a canned JSON document or an error.
type stubChat struct {
	response string
	err      error

	calls   int
	prompts []string
}

func (s *stubChat) CompleteJSON(ctx context.Context, prompt string) ([]byte, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.response), nil
}

func testSnapshot() *catalog.Snapshot {
	return &catalog.Snapshot{
		Agents: []catalog.AgentDescriptor{
			{ID: "alerts", Description: "Service alerts and delay reports", Alive: true},
			{ID: "planner", Description: "Route planning between stops", Alive: true},
		},
		CapturedAt: time.Now(),
	}
}

func TestLLMMatcher_Match(t *testing.T) {
	chat := &stubChat{response: `{"matched_agents":["planner","alerts"],"reasoning":"both intents present","confidence":0.9}`}
	matcher := NewLLMMatcher(chat, zap.NewNop())

	result, err := matcher.Match(context.Background(), "delays then route me", testSnapshot())
	require.NoError(t, err)

	// Ranking order from the capability is preserved.
	assert.Equal(t, []string{"planner", "alerts"}, result.Agents)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
	assert.Equal(t, "both intents present", result.Reasoning)

	// The prompt carries the catalog description text.
	require.Len(t, chat.prompts, 1)
	assert.Contains(t, chat.prompts[0], "alerts: Service alerts and delay reports")
}

func TestLLMMatcher_EmptyCatalogShortCircuits(t *testing.T) {
	chat := &stubChat{response: `{}`}
	matcher := NewLLMMatcher(chat, zap.NewNop())

	result, err := matcher.Match(context.Background(), "hello", &catalog.Snapshot{})
	require.NoError(t, err)
	assert.Empty(t, result.Agents)
	assert.Zero(t, chat.calls)
}

func TestLLMMatcher_DropsUnknownAgents(t *testing.T) {
	chat := &stubChat{response: `{"matched_agents":["alerts","made-up"],"confidence":0.8}`}
	matcher := NewLLMMatcher(chat, zap.NewNop())

	result, err := matcher.Match(context.Background(), "delays?", testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, []string{"alerts"}, result.Agents)
}

func TestLLMMatcher_ClampsConfidence(t *testing.T) {
	chat := &stubChat{response: `{"matched_agents":["alerts"],"confidence":3.5}`}
	matcher := NewLLMMatcher(chat, zap.NewNop())

	result, err := matcher.Match(context.Background(), "delays?", testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestLLMMatcher_FailureIsMatchingUnavailable(t *testing.T) {
	chat := &stubChat{err: errors.New("rate limited")}
	matcher := NewLLMMatcher(chat, zap.NewNop())

	_, err := matcher.Match(context.Background(), "delays?", testSnapshot())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMatchingUnavailable)
}

func TestLLMMatcher_MalformedReplyIsMatchingUnavailable(t *testing.T) {
	chat := &stubChat{response: "not json"}
	matcher := NewLLMMatcher(chat, zap.NewNop())

	_, err := matcher.Match(context.Background(), "delays?", testSnapshot())
	assert.ErrorIs(t, err, ErrMatchingUnavailable)
}
