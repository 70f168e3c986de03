package match

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ChatClient is the minimal completion surface the matcher and decomposer
// need: one prompt in, one JSON document out.
type ChatClient interface {
	CompleteJSON(ctx context.Context, prompt string) ([]byte, error)
}

// OpenAIConfig holds configuration for the OpenAI-compatible chat client.
type OpenAIConfig struct {
	// BaseURL is the API base URL (e.g. "https://api.openai.com").
	BaseURL string
	// APIKey authenticates requests.
	APIKey string
	// Model is the model name sent with every request.
	Model string
	// Temperature controls sampling. Defaults to 0.3.
	Temperature float32
	// Timeout is the HTTP client timeout. Defaults to 20s.
	Timeout time.Duration
	// EndpointPath is the chat completions path. Defaults to
	// "/v1/chat/completions".
	EndpointPath string
}

// OpenAIClient calls an OpenAI-compatible chat completions endpoint with the
// JSON response format enforced.
type OpenAIClient struct {
	config OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIClient creates a chat client for an OpenAI-compatible API.
func NewOpenAIClient(config OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	if config.EndpointPath == "" {
		config.EndpointPath = "/v1/chat/completions"
	}
	if config.Temperature == 0 {
		config.Temperature = 0.3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIClient{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With(zap.String("component", "chat_client")),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float32       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// CompleteJSON sends the prompt and returns the raw JSON content of the first
// choice.
func (c *OpenAIClient) CompleteJSON(ctx context.Context, prompt string) ([]byte, error) {
	body := chatRequest{
		Model:       c.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.config.Temperature,
	}
	body.ResponseFormat.Type = "json_object"

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + c.config.EndpointPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat completion: status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("chat completion: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: no choices returned")
	}

	return []byte(parsed.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ ChatClient = (*OpenAIClient)(nil)
