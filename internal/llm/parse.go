package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/oraclesec/sentinel/internal/finding"
)

type rawFinding struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Line        *int   `json:"line"`
	Confidence  string `json:"confidence"`
}

type findingsEnvelope struct {
	Findings []rawFinding `json:"findings"`
}

var errNoFindingsJSON = errors.New("llm: response contains no findings JSON")

// parseFindings extracts the findings JSON object from a model reply
// (which may wrap it in prose or a markdown code fence) and validates
// each entry. Unknown severities downgrade to info, unknown confidence
// to medium.
func parseFindings(text string) ([]finding.Finding, error) {
	payload, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var env findingsEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, errors.Join(errNoFindingsJSON, err)
	}

	out := make([]finding.Finding, 0, len(env.Findings))
	for _, rf := range env.Findings {
		f := finding.Finding{
			ID:          rf.ID,
			Title:       rf.Title,
			Severity:    finding.ValidSeverity(rf.Severity),
			Description: rf.Description,
			Pattern:     "LLM analysis",
			Confidence:  finding.ValidConfidence(rf.Confidence),
		}
		if f.ID == "" {
			f.ID = "LLM_UNKNOWN"
		}
		if f.Title == "" {
			f.Title = "Unknown finding"
		}
		if rf.Line != nil && *rf.Line > 0 {
			f.Line = *rf.Line
		}
		out = append(out, f)
	}
	return out, nil
}

// extractJSONObject returns the outermost JSON object that mentions
// "findings": from the first '{' to the last '}' of the reply.
func extractJSONObject(text string) (string, error) {
	if !strings.Contains(text, `"findings"`) {
		return "", errNoFindingsJSON
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", errNoFindingsJSON
	}
	return text[start : end+1], nil
}
