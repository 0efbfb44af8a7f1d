// Package finding holds the shared finding model produced by both the
// static pattern analyzer and the LLM reviewer.
package finding

import "fmt"

// Severity buckets, totally ordered from critical down to info.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Confidence expresses how sure the producing rule/model is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Finding is one detected issue. Findings are immutable once produced;
// they only live for the duration of a single scan.
type Finding struct {
	// ID is the stable identifier of the rule or category that produced
	// the finding (e.g. "REENTRANCY", "LLM_ORACLE_MANIPULATION").
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	// Pattern is the matched source excerpt, or a marker for findings
	// with no concrete match site.
	Pattern string `json:"pattern,omitempty"`
	// Line is 1-based; 0 means the finding is contract-wide.
	Line       int        `json:"line,omitempty"`
	File       string     `json:"file,omitempty"`
	Confidence Confidence `json:"confidence"`
}

// ValidSeverity maps free-form severity strings onto the known buckets,
// defaulting to info for anything unknown.
func ValidSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return Severity(s)
	}
	return SeverityInfo
}

// ValidConfidence maps free-form confidence strings onto the known
// buckets, defaulting to medium.
func ValidConfidence(c string) Confidence {
	switch Confidence(c) {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return Confidence(c)
	}
	return ConfidenceMedium
}

// Dedupe collapses findings that share the same rule id and line (two
// findings with no line also collapse). First occurrence wins, order is
// preserved.
func Dedupe(findings []Finding) []Finding {
	seen := make(map[string]struct{}, len(findings))
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		key := fmt.Sprintf("%s:%d", f.ID, f.Line)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}
