// Package report holds the durable audit output: the per-address
// ReportSummary persisted in sqlite and the full report document that
// gets pinned to content storage.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/oraclesec/sentinel/internal/finding"
	"github.com/oraclesec/sentinel/internal/scorer"
)

// Summary is the only durable entity: one row per normalized address,
// replaced on every re-audit.
type Summary struct {
	Address        string `json:"address"`
	ContractName   string `json:"contractName"`
	RiskScore      int    `json:"riskScore"`
	RiskLevel      string `json:"riskLevel"`
	TotalFindings  int    `json:"totalFindings"`
	CriticalCount  int    `json:"criticalCount"`
	HighCount      int    `json:"highCount"`
	MediumCount    int    `json:"mediumCount"`
	LowCount       int    `json:"lowCount"`
	SourceVerified bool   `json:"sourceVerified"`
	IPFSHash       string `json:"ipfsHash"`
	TxHash         string `json:"txHash"`
	Timestamp      string `json:"timestamp"` // RFC3339
}

// Report is the full audit document: summary data plus every finding
// and the score breakdown. It is pinned, never stored locally.
type Report struct {
	Address         string            `json:"address"`
	ContractName    string            `json:"contractName"`
	CompilerVersion string            `json:"compilerVersion"`
	SourceVerified  bool              `json:"sourceVerified"`
	Score           scorer.Breakdown  `json:"score"`
	Findings        []finding.Finding `json:"findings"`
	GeneratedAt     string            `json:"generatedAt"`
}

// New assembles a report for one scan run.
func New(address, name, compilerVersion string, verified bool, score scorer.Breakdown, findings []finding.Finding) *Report {
	return &Report{
		Address:         address,
		ContractName:    name,
		CompilerVersion: compilerVersion,
		SourceVerified:  verified,
		Score:           score,
		Findings:        findings,
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
	}
}

// Markdown renders the report for humans. Findings are grouped in
// input order, which already runs rule findings before LLM findings.
func (r *Report) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Security Audit Report: %s\n\n", r.ContractName)
	fmt.Fprintf(&b, "- **Address**: `%s`\n", r.Address)
	fmt.Fprintf(&b, "- **Compiler**: %s\n", r.CompilerVersion)
	fmt.Fprintf(&b, "- **Source verified**: %t\n", r.SourceVerified)
	fmt.Fprintf(&b, "- **Generated**: %s\n\n", r.GeneratedAt)

	fmt.Fprintf(&b, "## Risk Score: %d/100 (%s)\n\n", r.Score.RiskScore, r.Score.RiskLevel)
	fmt.Fprintf(&b, "| Severity | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| Critical | %d |\n", r.Score.CriticalCount)
	fmt.Fprintf(&b, "| High | %d |\n", r.Score.HighCount)
	fmt.Fprintf(&b, "| Medium | %d |\n", r.Score.MediumCount)
	fmt.Fprintf(&b, "| Low | %d |\n", r.Score.LowCount)
	fmt.Fprintf(&b, "| Info | %d |\n\n", r.Score.InfoCount)

	if len(r.Findings) == 0 {
		b.WriteString("No findings.\n")
		return b.String()
	}

	b.WriteString("## Findings\n\n")
	for i, f := range r.Findings {
		fmt.Fprintf(&b, "### %d. %s [%s]\n\n", i+1, f.Title, strings.ToUpper(string(f.Severity)))
		fmt.Fprintf(&b, "- **Rule**: %s\n", f.ID)
		fmt.Fprintf(&b, "- **Confidence**: %s\n", f.Confidence)
		if f.Line > 0 {
			fmt.Fprintf(&b, "- **Line**: %d\n", f.Line)
		}
		if f.File != "" {
			fmt.Fprintf(&b, "- **File**: %s\n", f.File)
		}
		fmt.Fprintf(&b, "\n%s\n\n", f.Description)
	}
	return b.String()
}

// Summarize collapses a report into its durable summary. ipfsHash and
// txHash may be empty when publishing was skipped or failed.
func (r *Report) Summarize(ipfsHash, txHash string) Summary {
	return Summary{
		Address:        r.Address,
		ContractName:   r.ContractName,
		RiskScore:      r.Score.RiskScore,
		RiskLevel:      string(r.Score.RiskLevel),
		TotalFindings:  r.Score.TotalFindings,
		CriticalCount:  r.Score.CriticalCount,
		HighCount:      r.Score.HighCount,
		MediumCount:    r.Score.MediumCount,
		LowCount:       r.Score.LowCount,
		SourceVerified: r.SourceVerified,
		IPFSHash:       ipfsHash,
		TxHash:         txHash,
		Timestamp:      r.GeneratedAt,
	}
}
