package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/serenova/aicore/config"
)

// chatCompatAdapter implements Provider for backends exposing the
// OpenAI-style /chat/completions wire format. OpenAI, Perplexity and Grok
// all share it, differing only in base URL, model and pricing.
type chatCompatAdapter struct {
	id         ID
	display    string
	model      string
	apiKey     string
	baseURL    string
	costPer1K  float64
	httpClient *http.Client
}

// NewOpenAI creates the OpenAI backend adapter
func NewOpenAI(cfg config.ProviderConfig) Provider {
	return newChatCompat(OpenAI, "OpenAI", cfg, 0.0006)
}

// NewPerplexity creates the Perplexity backend adapter
func NewPerplexity(cfg config.ProviderConfig) Provider {
	return newChatCompat(Perplexity, "Perplexity", cfg, 0.001)
}

// NewGrok creates the Grok backend adapter
func NewGrok(cfg config.ProviderConfig) Provider {
	return newChatCompat(Grok, "Grok", cfg, 0.002)
}

func newChatCompat(id ID, display string, cfg config.ProviderConfig, costPer1K float64) *chatCompatAdapter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &chatCompatAdapter{
		id:        id,
		display:   display,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		costPer1K: costPer1K,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (a *chatCompatAdapter) ID() ID {
	return a.id
}

func (a *chatCompatAdapter) Name() string {
	return a.display
}

func (a *chatCompatAdapter) IsAvailable() bool {
	return a.apiKey != ""
}

func (a *chatCompatAdapter) CostPer1KTokens() float64 {
	return a.costPer1K
}

// Complete performs a chat completion request
func (a *chatCompatAdapter) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	startTime := time.Now()

	if !a.IsAvailable() {
		return nil, NewProviderError(a.id, "NOT_CONFIGURED", "API key is not configured", 0, false, nil)
	}

	wireReq := a.buildWireRequest(req)

	reqBody, err := json.Marshal(wireReq)
	if err != nil {
		return nil, NewProviderError(a.id, "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, NewProviderError(a.id, "REQUEST_ERROR", "Failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewProviderError(a.id, "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewProviderError(a.id, "READ_ERROR", "Failed to read response", httpResp.StatusCode, false, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var wireResp chatCompatResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, NewProviderError(a.id, "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, false, err)
	}

	if len(wireResp.Choices) == 0 {
		return nil, NewProviderError(a.id, "EMPTY_RESPONSE", "Response contained no choices", httpResp.StatusCode, false, nil)
	}

	return &CompletionResponse{
		Text:             wireResp.Choices[0].Message.Content,
		PromptTokens:     wireResp.Usage.PromptTokens,
		CompletionTokens: wireResp.Usage.CompletionTokens,
		TokensUsed:       wireResp.Usage.TotalTokens,
		Provider:         a.id,
		Latency:          time.Since(startTime),
	}, nil
}

// buildWireRequest converts the unified request to the chat wire format
func (a *chatCompatAdapter) buildWireRequest(req *CompletionRequest) *chatCompatRequest {
	wireReq := &chatCompatRequest{
		Model: a.model,
	}

	if req.System != "" {
		wireReq.Messages = append(wireReq.Messages, Message{Role: "system", Content: req.System})
	}
	if len(req.Messages) > 0 {
		wireReq.Messages = append(wireReq.Messages, req.Messages...)
	} else {
		wireReq.Messages = append(wireReq.Messages, Message{Role: "user", Content: req.Prompt})
	}

	if req.MaxTokens > 0 {
		wireReq.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		wireReq.Temperature = &req.Temperature
	}

	return wireReq
}

// handleErrorResponse handles error responses in the chat wire format
func (a *chatCompatAdapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp chatCompatErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return NewProviderError(a.id, "UNKNOWN_ERROR", string(body), statusCode, false, err)
	}

	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	return NewProviderError(
		a.id,
		errResp.Error.Type,
		errResp.Error.Message,
		statusCode,
		retryable,
		errors.New(errResp.Error.Message),
	)
}

// Wire types shared by the OpenAI-compatible backends

type chatCompatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type chatCompatResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []chatCompatChoice `json:"choices"`
	Usage   chatCompatUsage    `json:"usage"`
}

type chatCompatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatCompatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
