package llm

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

	"github.com/BaSui01/ragserve/types"
)

// ChatClient calls an OpenAI-compatible /v1/chat/completions endpoint, as
// served by llama.cpp server and most hosted inference gateways.
//
// The client is stateless per call: a single instance with its shared
// http.Client transport pool is safe for concurrent use.
type ChatClient struct {
	cfg    ChatClientConfig
	client *http.Client
	logger *zap.Logger
}

// ChatClientConfig holds configuration for the chat client.
type ChatClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewChatClient creates a chat client.
func NewChatClient(cfg ChatClientConfig, logger *zap.Logger) *ChatClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "chat_client")),
	}
}

// ChatMessage is a single conversation message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends the messages and returns the first choice's content.
func (c *ChatClient) Complete(ctx context.Context, messages []ChatMessage, params GenerationParams) (string, error) {
	body := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxNewTokens,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrUpstreamError, err.Error()).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider("chat")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		code := types.ErrUpstreamError
		retryable := resp.StatusCode >= 500
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			code = types.ErrUnauthorized
		case http.StatusTooManyRequests:
			code = types.ErrRateLimited
			retryable = true
		case http.StatusBadRequest:
			code = types.ErrInvalidRequest
		case http.StatusGatewayTimeout:
			code = types.ErrUpstreamTimeout
			retryable = true
		}
		return "", types.NewError(code, string(respBody)).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(retryable).
			WithProvider("chat")
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", types.NewError(types.ErrUpstreamError, "no completion choices returned").
			WithProvider("chat")
	}

	return parsed.Choices[0].Message.Content, nil
}
