package llm

import (
	"errors"
	"strings"
	"testing"

	"github.com/oraclesec/sentinel/internal/finding"
)

func TestParseFindingsPlainJSON(t *testing.T) {
	text := `{"findings":[{"id":"LLM_REENTRANCY","title":"Reentrancy in withdraw","severity":"high","description":"State update after external call.","line":42,"confidence":"high"}]}`

	findings, err := parseFindings(text)
	if err != nil {
		t.Fatalf("parseFindings: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.ID != "LLM_REENTRANCY" || f.Severity != finding.SeverityHigh || f.Line != 42 {
		t.Fatalf("unexpected finding: %+v", f)
	}
	if f.Pattern != "LLM analysis" {
		t.Fatalf("expected LLM analysis pattern marker, got %q", f.Pattern)
	}
	if f.Confidence != finding.ConfidenceHigh {
		t.Fatalf("expected high confidence, got %s", f.Confidence)
	}
}

func TestParseFindingsWrappedInProse(t *testing.T) {
	text := "Here is my analysis of the contract:\n\n```json\n" +
		`{"findings":[{"id":"LLM_ACCESS","title":"Missing modifier","severity":"critical","description":"d","line":null,"confidence":"medium"}]}` +
		"\n```\n\nLet me know if you need more detail."

	findings, err := parseFindings(text)
	if err != nil {
		t.Fatalf("parseFindings: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].Line != 0 {
		t.Fatalf("null line should map to 0, got %d", findings[0].Line)
	}
}

func TestParseFindingsEmptyList(t *testing.T) {
	findings, err := parseFindings(`{"findings": []}`)
	if err != nil {
		t.Fatalf("parseFindings: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected no findings, got %d", len(findings))
	}
}

func TestParseFindingsValidationDefaults(t *testing.T) {
	text := `{"findings":[{"severity":"catastrophic","confidence":"certain","description":"d"}]}`

	findings, err := parseFindings(text)
	if err != nil {
		t.Fatalf("parseFindings: %v", err)
	}
	f := findings[0]
	if f.ID != "LLM_UNKNOWN" {
		t.Fatalf("expected LLM_UNKNOWN id, got %s", f.ID)
	}
	if f.Title != "Unknown finding" {
		t.Fatalf("expected default title, got %s", f.Title)
	}
	if f.Severity != finding.SeverityInfo {
		t.Fatalf("unknown severity should default to info, got %s", f.Severity)
	}
	if f.Confidence != finding.ConfidenceMedium {
		t.Fatalf("unknown confidence should default to medium, got %s", f.Confidence)
	}
}

func TestParseFindingsNoJSON(t *testing.T) {
	cases := []string{
		"The contract looks safe to me.",
		`{"results": []}`,
		"",
	}
	for _, text := range cases {
		if _, err := parseFindings(text); !errors.Is(err, errNoFindingsJSON) {
			t.Fatalf("expected errNoFindingsJSON for %q, got %v", text, err)
		}
	}
}

func TestUserPromptTruncatesLargeSource(t *testing.T) {
	req := ReviewRequest{
		SourceCode:      strings.Repeat("a", maxSourceChars+500),
		ContractName:    "Big",
		CompilerVersion: "v0.8.19",
	}
	prompt := userPrompt(req)
	if !strings.Contains(prompt, "// ... truncated ...") {
		t.Fatal("expected truncation marker for oversized source")
	}
	if len(prompt) > maxSourceChars+1000 {
		t.Fatalf("prompt grew past the truncation bound: %d", len(prompt))
	}
}

func TestUserPromptCarriesMetadata(t *testing.T) {
	prompt := userPrompt(ReviewRequest{
		SourceCode:      "contract C {}",
		ContractName:    "C",
		CompilerVersion: "v0.8.19",
	})
	if !strings.Contains(prompt, "Contract: C") || !strings.Contains(prompt, "Compiler: v0.8.19") {
		t.Fatalf("prompt missing metadata:\n%s", prompt)
	}
}
