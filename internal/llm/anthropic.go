package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oraclesec/sentinel/internal/finding"
	"github.com/oraclesec/sentinel/internal/logging"
)

const (
	anthropicBaseURL   = "https://api.anthropic.com/v1/messages"
	anthropicVersion   = "2023-06-01"
	defaultClaudeModel = "claude-sonnet-4-5-20250929"
	anthropicMaxTokens = 4096
	anthropicTimeout   = 120 * time.Second
)

// AnthropicProvider reviews contracts through the Anthropic messages
// API with a plain HTTP client.
type AnthropicProvider struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	logger  logging.Logger
}

// NewAnthropicProvider builds a Claude-backed reviewer.
func NewAnthropicProvider(apiKey, model string, logger logging.Logger) *AnthropicProvider {
	if model == "" {
		model = defaultClaudeModel
	}
	return &AnthropicProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: anthropicBaseURL,
		http:    &http.Client{Timeout: anthropicTimeout},
		logger:  logger.With(logging.Field{Key: "component", Value: "llm-anthropic"}),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) ReviewContract(ctx context.Context, req ReviewRequest) ([]finding.Finding, error) {
	payload := anthropicRequest{
		Model:     p.model,
		MaxTokens: anthropicMaxTokens,
		System:    systemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: userPrompt(req)}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading anthropic response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decoding anthropic response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("anthropic api error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic returned status %d", resp.StatusCode)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	findings, err := parseFindings(text)
	if err != nil {
		p.logger.Warn("claude reply had no parseable findings",
			logging.Field{Key: "contract", Value: req.ContractName},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, err
	}
	return findings, nil
}
