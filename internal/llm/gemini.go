package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/oraclesec/sentinel/internal/finding"
	"github.com/oraclesec/sentinel/internal/logging"
)

const defaultGeminiModel = "gemini-1.5-pro"

// GeminiProvider reviews contracts through the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger logging.Logger
}

// NewGeminiProvider builds a Gemini-backed reviewer. Temperature is
// pinned to zero so repeated reviews of the same source stay stable.
func NewGeminiProvider(ctx context.Context, apiKey, modelName string, logger logging.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	if modelName == "" {
		modelName = defaultGeminiModel
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	return &GeminiProvider{
		client: client,
		model:  model,
		logger: logger.With(logging.Field{Key: "component", Value: "llm-gemini"}),
	}, nil
}

func (g *GeminiProvider) Name() string { return "gemini" }

func (g *GeminiProvider) ReviewContract(ctx context.Context, req ReviewRequest) ([]finding.Finding, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(userPrompt(req)))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}

	findings, err := parseFindings(text)
	if err != nil {
		g.logger.Warn("gemini reply had no parseable findings",
			logging.Field{Key: "contract", Value: req.ContractName},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, err
	}
	return findings, nil
}

// Close releases the underlying API client.
func (g *GeminiProvider) Close() error {
	return g.client.Close()
}
