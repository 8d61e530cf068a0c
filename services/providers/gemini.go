package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/serenova/aicore/config"
)

// geminiAdapter implements Provider for the Gemini generateContent API
type geminiAdapter struct {
	model      string
	apiKey     string
	baseURL    string
	costPer1K  float64
	httpClient *http.Client
}

// NewGemini creates the Gemini backend adapter
func NewGemini(cfg config.ProviderConfig) Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &geminiAdapter{
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		costPer1K: 0.0003,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (a *geminiAdapter) ID() ID {
	return Gemini
}

func (a *geminiAdapter) Name() string {
	return "Gemini"
}

func (a *geminiAdapter) IsAvailable() bool {
	return a.apiKey != ""
}

func (a *geminiAdapter) CostPer1KTokens() float64 {
	return a.costPer1K
}

// Complete performs a generateContent request
func (a *geminiAdapter) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	startTime := time.Now()

	if !a.IsAvailable() {
		return nil, NewProviderError(Gemini, "NOT_CONFIGURED", "API key is not configured", 0, false, nil)
	}

	wireReq := a.buildWireRequest(req)

	reqBody, err := json.Marshal(wireReq)
	if err != nil {
		return nil, NewProviderError(Gemini, "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.baseURL, a.model, a.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, NewProviderError(Gemini, "REQUEST_ERROR", "Failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewProviderError(Gemini, "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewProviderError(Gemini, "READ_ERROR", "Failed to read response", httpResp.StatusCode, false, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var wireResp geminiResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, NewProviderError(Gemini, "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, false, err)
	}

	if len(wireResp.Candidates) == 0 {
		return nil, NewProviderError(Gemini, "EMPTY_RESPONSE", "Response contained no candidates", httpResp.StatusCode, false, nil)
	}

	var text strings.Builder
	for _, part := range wireResp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return &CompletionResponse{
		Text:             text.String(),
		PromptTokens:     wireResp.UsageMetadata.PromptTokenCount,
		CompletionTokens: wireResp.UsageMetadata.CandidatesTokenCount,
		TokensUsed:       wireResp.UsageMetadata.TotalTokenCount,
		Provider:         Gemini,
		Latency:          time.Since(startTime),
	}, nil
}

// buildWireRequest converts the unified request to the generateContent
// format. Gemini uses "model" for the assistant role.
func (a *geminiAdapter) buildWireRequest(req *CompletionRequest) *geminiRequest {
	wireReq := &geminiRequest{}

	if req.System != "" {
		wireReq.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.System}},
		}
	}

	if len(req.Messages) > 0 {
		for _, msg := range req.Messages {
			role := msg.Role
			if role == "assistant" {
				role = "model"
			}
			if role == "system" {
				wireReq.SystemInstruction = &geminiContent{
					Parts: []geminiPart{{Text: msg.Content}},
				}
				continue
			}
			wireReq.Contents = append(wireReq.Contents, geminiContent{
				Role:  role,
				Parts: []geminiPart{{Text: msg.Content}},
			})
		}
	} else {
		wireReq.Contents = append(wireReq.Contents, geminiContent{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}},
		})
	}

	if req.MaxTokens > 0 || req.Temperature > 0 {
		wireReq.GenerationConfig = &geminiGenerationConfig{}
		if req.MaxTokens > 0 {
			wireReq.GenerationConfig.MaxOutputTokens = &req.MaxTokens
		}
		if req.Temperature > 0 {
			wireReq.GenerationConfig.Temperature = &req.Temperature
		}
	}

	return wireReq
}

// handleErrorResponse handles Gemini error responses
func (a *geminiAdapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp geminiErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return NewProviderError(Gemini, "UNKNOWN_ERROR", string(body), statusCode, false, err)
	}

	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	return NewProviderError(
		Gemini,
		errResp.Error.Status,
		errResp.Error.Message,
		statusCode,
		retryable,
		errors.New(errResp.Error.Message),
	)
}

// Gemini-specific wire types

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate   `json:"candidates"`
	UsageMetadata geminiUsageMetadata `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
