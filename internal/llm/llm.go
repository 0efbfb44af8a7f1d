// Package llm runs the deep LLM review pass of the audit pipeline.
// Providers are interchangeable behind the Provider interface; any
// provider failure degrades the scan to pattern-only findings instead
// of failing the job.
package llm

import (
	"context"
	"fmt"

	"github.com/oraclesec/sentinel/internal/finding"
	"github.com/oraclesec/sentinel/internal/logging"
)

// ReviewRequest carries one contract's source into a review.
type ReviewRequest struct {
	SourceCode      string
	ContractName    string
	CompilerVersion string
}

// Provider reviews contract source and returns findings.
type Provider interface {
	// Name identifies the provider for logs and config.
	Name() string

	// ReviewContract analyzes the source and returns zero or more
	// findings. Errors are reported to the caller, which treats the
	// review as best-effort.
	ReviewContract(ctx context.Context, req ReviewRequest) ([]finding.Finding, error)
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider string // "gemini" | "anthropic"
	APIKey   string
	Model    string
}

// NewProvider constructs the configured provider.
func NewProvider(ctx context.Context, cfg Config, logger logging.Logger) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.Model, logger)
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.Model, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
