// Package scorer turns finding sets into a single reproducible risk
// number. Score is pure: no I/O, no clock, no randomness.
package scorer

import "github.com/oraclesec/sentinel/internal/finding"

// RiskLevel buckets a 0-100 risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Breakdown is the full scoring output. It is recomputed on every run
// and never persisted as-is; only the summary numbers survive in the
// report store.
type Breakdown struct {
	RiskScore int `json:"riskScore"` // 0-100

	CriticalScore       int `json:"criticalScore"`
	HighScore           int `json:"highScore"`
	MediumScore         int `json:"mediumScore"`
	UnverifiedScore     int `json:"unverifiedScore"`
	CentralizationScore int `json:"centralizationScore"`

	CriticalCount int `json:"criticalCount"`
	HighCount     int `json:"highCount"`
	MediumCount   int `json:"mediumCount"`
	LowCount      int `json:"lowCount"`
	InfoCount     int `json:"infoCount"`
	TotalFindings int `json:"totalFindings"`

	RiskLevel RiskLevel `json:"riskLevel"`
}

// Subscore caps. Each tier uses a linear-then-cap curve so a pile of
// findings in one tier cannot dominate the total on its own.
const (
	criticalCap = 40
	highCap     = 25
	mediumCap   = 15
	unverified  = 10
	centralCap  = 10

	perCritical       = 20
	perHigh           = 10
	perMedium         = 5
	perCentralization = 3

	totalCap = 100
)

// Score merges both finding lists, deduplicates by (id, line) and
// computes the capped risk score. Low and info findings show up in the
// counts but never contribute to the score.
func Score(ruleFindings, llmFindings []finding.Finding, sourceVerified bool, centralizationFactors int) Breakdown {
	all := make([]finding.Finding, 0, len(ruleFindings)+len(llmFindings))
	all = append(all, ruleFindings...)
	all = append(all, llmFindings...)
	unique := finding.Dedupe(all)

	var b Breakdown
	for _, f := range unique {
		switch f.Severity {
		case finding.SeverityCritical:
			b.CriticalCount++
		case finding.SeverityHigh:
			b.HighCount++
		case finding.SeverityMedium:
			b.MediumCount++
		case finding.SeverityLow:
			b.LowCount++
		default:
			b.InfoCount++
		}
	}
	b.TotalFindings = len(unique)

	b.CriticalScore = min(criticalCap, b.CriticalCount*perCritical)
	b.HighScore = min(highCap, b.HighCount*perHigh)
	b.MediumScore = min(mediumCap, b.MediumCount*perMedium)
	if !sourceVerified {
		b.UnverifiedScore = unverified
	}
	b.CentralizationScore = min(centralCap, centralizationFactors*perCentralization)

	b.RiskScore = min(totalCap,
		b.CriticalScore+b.HighScore+b.MediumScore+b.UnverifiedScore+b.CentralizationScore)
	b.RiskLevel = levelFor(b.RiskScore)
	return b
}

// levelFor maps a total score onto a risk level by fixed thresholds.
func levelFor(score int) RiskLevel {
	switch {
	case score <= 20:
		return RiskLow
	case score <= 50:
		return RiskMedium
	case score <= 75:
		return RiskHigh
	default:
		return RiskCritical
	}
}
