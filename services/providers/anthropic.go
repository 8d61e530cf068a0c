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

const anthropicVersion = "2023-06-01"

// anthropicAdapter implements Provider for the Anthropic messages API
type anthropicAdapter struct {
	model      string
	apiKey     string
	baseURL    string
	costPer1K  float64
	httpClient *http.Client
}

// NewAnthropic creates the Anthropic backend adapter
func NewAnthropic(cfg config.ProviderConfig) Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &anthropicAdapter{
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		costPer1K: 0.003,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (a *anthropicAdapter) ID() ID {
	return Anthropic
}

func (a *anthropicAdapter) Name() string {
	return "Anthropic"
}

func (a *anthropicAdapter) IsAvailable() bool {
	return a.apiKey != ""
}

func (a *anthropicAdapter) CostPer1KTokens() float64 {
	return a.costPer1K
}

// Complete performs a messages API request
func (a *anthropicAdapter) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	startTime := time.Now()

	if !a.IsAvailable() {
		return nil, NewProviderError(Anthropic, "NOT_CONFIGURED", "API key is not configured", 0, false, nil)
	}

	wireReq := a.buildWireRequest(req)

	reqBody, err := json.Marshal(wireReq)
	if err != nil {
		return nil, NewProviderError(Anthropic, "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, NewProviderError(Anthropic, "REQUEST_ERROR", "Failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewProviderError(Anthropic, "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewProviderError(Anthropic, "READ_ERROR", "Failed to read response", httpResp.StatusCode, false, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var wireResp anthropicResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, NewProviderError(Anthropic, "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, false, err)
	}

	var text strings.Builder
	for _, block := range wireResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	totalTokens := wireResp.Usage.InputTokens + wireResp.Usage.OutputTokens

	return &CompletionResponse{
		Text:             text.String(),
		PromptTokens:     wireResp.Usage.InputTokens,
		CompletionTokens: wireResp.Usage.OutputTokens,
		TokensUsed:       totalTokens,
		Provider:         Anthropic,
		Latency:          time.Since(startTime),
	}, nil
}

// buildWireRequest converts the unified request to the messages wire format.
// The messages API carries the system instruction as a top-level field, not
// as a message role.
func (a *anthropicAdapter) buildWireRequest(req *CompletionRequest) *anthropicRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	wireReq := &anthropicRequest{
		Model:     a.model,
		MaxTokens: maxTokens,
		System:    req.System,
	}

	if len(req.Messages) > 0 {
		for _, msg := range req.Messages {
			if msg.Role == "system" {
				wireReq.System = msg.Content
				continue
			}
			wireReq.Messages = append(wireReq.Messages, Message{Role: msg.Role, Content: msg.Content})
		}
	} else {
		wireReq.Messages = append(wireReq.Messages, Message{Role: "user", Content: req.Prompt})
	}

	if req.Temperature > 0 {
		wireReq.Temperature = &req.Temperature
	}

	return wireReq
}

// handleErrorResponse handles Anthropic error responses
func (a *anthropicAdapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp anthropicErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return NewProviderError(Anthropic, "UNKNOWN_ERROR", string(body), statusCode, false, err)
	}

	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	return NewProviderError(
		Anthropic,
		errResp.Error.Type,
		errResp.Error.Message,
		statusCode,
		retryable,
		errors.New(errResp.Error.Message),
	)
}

// Anthropic-specific wire types

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	ID      string                  `json:"id"`
	Model   string                  `json:"model"`
	Content []anthropicContentBlock `json:"content"`
	Usage   anthropicUsage          `json:"usage"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
