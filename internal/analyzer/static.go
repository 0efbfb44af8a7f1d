// Package analyzer runs static pattern analysis over Solidity source.
// It detects common vulnerability patterns with regexes and a couple of
// brace-scanning heuristics. Fast and deterministic; runs before the
// LLM reviewer to establish baseline findings.
package analyzer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/oraclesec/sentinel/internal/finding"
)

// rule is one pattern check. Rules with preSolidity08Only set are
// skipped for compilers >= 0.8.0.
type rule struct {
	id               string
	title            string
	severity         finding.Severity
	pattern          *regexp.Regexp
	description      string
	confidence       finding.Confidence
	preSolidity08Only bool
}

var rules = []rule{
	// Critical
	{
		id:       "SELFDESTRUCT",
		title:    "Selfdestruct present",
		severity: finding.SeverityCritical,
		pattern:  regexp.MustCompile(`selfdestruct\s*\(|suicide\s*\(`),
		description: "Contract contains selfdestruct which can permanently destroy the contract " +
			"and send remaining ETH/BNB to an arbitrary address.",
		confidence: finding.ConfidenceHigh,
	},
	{
		id:       "DELEGATECALL_USER_INPUT",
		title:    "Delegatecall with user-controlled input",
		severity: finding.SeverityCritical,
		pattern:  regexp.MustCompile(`\.delegatecall\s*\(`),
		description: "Delegatecall executes code in the context of the calling contract. If the " +
			"target is user-controlled, an attacker can execute arbitrary code.",
		confidence: finding.ConfidenceMedium,
	},

	// High
	{
		id:       "REENTRANCY",
		title:    "Potential reentrancy",
		severity: finding.SeverityHigh,
		pattern:  regexp.MustCompile(`\.call\{[^}]*value\s*:[^}]*\}|\.transfer\(|\.send\(`),
		description: "External call that transfers value detected. If state changes occur after " +
			"this call, the contract may be vulnerable to reentrancy.",
		confidence: finding.ConfidenceMedium,
	},
	{
		id:       "TX_ORIGIN",
		title:    "tx.origin used for authentication",
		severity: finding.SeverityHigh,
		pattern:  regexp.MustCompile(`tx\.origin`),
		description: "tx.origin returns the original sender of the transaction. Using it for auth " +
			"is vulnerable to phishing attacks where a malicious contract forwards calls.",
		confidence: finding.ConfidenceHigh,
	},
	{
		id:       "UNCHECKED_LOW_LEVEL",
		title:    "Unchecked low-level call return value",
		severity: finding.SeverityHigh,
		pattern:  regexp.MustCompile(`(?:address\s*\([^)]*\)\s*)?\.call\{?[^}(]*\}?\s*\([^)]*\)\s*;`),
		description: "Low-level call without checking the return value. If the call fails " +
			"silently, the contract may continue with incorrect state.",
		confidence: finding.ConfidenceMedium,
	},

	// Medium
	{
		id:       "MISSING_ZERO_CHECK",
		title:    "Missing zero-address validation",
		severity: finding.SeverityMedium,
		pattern:  regexp.MustCompile(`function\s+(?:set|update|change|transfer)\w*\s*\([^)]*address\s+\w+[^)]*\)`),
		description: "Setter function takes an address parameter without checking for address(0). " +
			"Setting critical addresses to zero can brick the contract.",
		confidence: finding.ConfidenceLow,
	},
	{
		id:       "ARBITRARY_SEND",
		title:    "Arbitrary ETH/BNB transfer",
		severity: finding.SeverityMedium,
		pattern:  regexp.MustCompile(`\.call\{[^}]*value\s*:[^}]+\}\s*\(\s*""\s*\)`),
		description: "ETH/BNB sent to an address that may be user-controlled. Verify the " +
			"recipient is intended.",
		confidence: finding.ConfidenceMedium,
	},
	{
		id:       "BLOCK_TIMESTAMP",
		title:    "Block timestamp used for critical logic",
		severity: finding.SeverityMedium,
		pattern:  regexp.MustCompile(`block\.timestamp`),
		description: "block.timestamp can be slightly manipulated by miners/validators " +
			"(~15 seconds). Avoid using it as the sole source of randomness or for precise timing.",
		confidence: finding.ConfidenceLow,
	},
	{
		id:       "UNSAFE_CAST",
		title:    "Unsafe type casting",
		severity: finding.SeverityMedium,
		pattern:  regexp.MustCompile(`uint(?:8|16|32|64|128)\s*\(\s*\w+\s*\)`),
		description: "Downcasting without overflow check. In Solidity >=0.8.0 this reverts on " +
			"overflow, but in <0.8.0 it silently truncates.",
		confidence: finding.ConfidenceLow,
	},

	// Centralization
	{
		id:       "CENTRALIZATION_PROXY",
		title:    "Upgradeable proxy pattern detected",
		severity: finding.SeverityMedium,
		pattern:  regexp.MustCompile(`upgradeTo\s*\(|_upgradeTo\s*\(|ERC1967Upgrade|TransparentUpgradeableProxy|UUPSUpgradeable`),
		description: "Contract uses an upgradeable proxy. The admin can change the implementation " +
			"at any time, potentially introducing malicious code.",
		confidence: finding.ConfidenceHigh,
	},
	{
		id:       "CENTRALIZATION_PAUSE",
		title:    "Pausable functionality",
		severity: finding.SeverityLow,
		pattern:  regexp.MustCompile(`Pausable|whenNotPaused|_pause\s*\(\)|paused\s*\(\)`),
		description: "Contract can be paused by an admin, freezing user funds. Check if there's a " +
			"timelock or multisig on the pause functionality.",
		confidence: finding.ConfidenceHigh,
	},
	{
		id:       "CENTRALIZATION_MINT",
		title:    "Unrestricted mint capability",
		severity: finding.SeverityMedium,
		pattern:  regexp.MustCompile(`function\s+mint\s*\([^)]*\)[^{]*\{`),
		description: "Mint function detected. If callable by a single admin without supply cap, " +
			"it can dilute token holders.",
		confidence: finding.ConfidenceMedium,
	},
	{
		id:       "CENTRALIZATION_FEE",
		title:    "Admin-controlled fee mechanism",
		severity: finding.SeverityLow,
		pattern:  regexp.MustCompile(`function\s+(?:set|update|change)(?:Fee|Tax|Rate)\s*\(`),
		description: "Admin can change fees. Verify there's a maximum cap to prevent setting fees " +
			"to 100%.",
		confidence: finding.ConfidenceMedium,
	},
}

// Rules that may legitimately fire at multiple locations; all other
// rules report only their first match per file.
var repeatableIDs = map[string]struct{}{
	"REENTRANCY":          {},
	"UNCHECKED_LOW_LEVEL": {},
	"MISSING_ZERO_CHECK":  {},
}

const maxPatternExcerpt = 100

// Analyze runs all pattern rules over one Solidity source file and
// returns the deduplicated findings.
func Analyze(sourceCode, compilerVersion, fileName string) []finding.Finding {
	var findings []finding.Finding
	is08Plus := isSolidity08Plus(compilerVersion)

	for _, r := range rules {
		if r.preSolidity08Only && is08Plus {
			continue
		}
		for _, loc := range r.pattern.FindAllStringIndex(sourceCode, -1) {
			excerpt := sourceCode[loc[0]:loc[1]]
			if len(excerpt) > maxPatternExcerpt {
				excerpt = excerpt[:maxPatternExcerpt]
			}
			findings = append(findings, finding.Finding{
				ID:          r.id,
				Title:       r.title,
				Severity:    r.severity,
				Description: r.description,
				Pattern:     excerpt,
				Line:        lineAt(sourceCode, loc[0]),
				File:        fileName,
				Confidence:  r.confidence,
			})
		}
	}

	findings = append(findings, missingEventFindings(sourceCode, fileName)...)
	findings = append(findings, publicFuncFindings(sourceCode, fileName)...)

	return dedupeByRule(findings)
}

// dedupeByRule keeps every occurrence of repeatable rules and only the
// first occurrence of everything else.
func dedupeByRule(findings []finding.Finding) []finding.Finding {
	seen := make(map[string]struct{})
	out := make([]finding.Finding, 0, len(findings))
	for _, f := range findings {
		if _, repeatable := repeatableIDs[f.ID]; repeatable {
			out = append(out, f)
			continue
		}
		if _, ok := seen[f.ID]; ok {
			continue
		}
		seen[f.ID] = struct{}{}
		out = append(out, f)
	}
	return out
}

var centralizationIDs = map[string]struct{}{
	"CENTRALIZATION_PROXY": {},
	"CENTRALIZATION_PAUSE": {},
	"CENTRALIZATION_MINT":  {},
	"CENTRALIZATION_FEE":   {},
}

// CountCentralizationFactors counts the distinct centralization rule
// categories present in a finding set. Categories are counted, not
// occurrences.
func CountCentralizationFactors(findings []finding.Finding) int {
	found := make(map[string]struct{})
	for _, f := range findings {
		if _, ok := centralizationIDs[f.ID]; ok {
			found[f.ID] = struct{}{}
		}
	}
	return len(found)
}

var stateChangeHeader = regexp.MustCompile(`function\s+(?:set|update|change|pause|unpause|withdraw|deposit)\w*\s*\([^)]*\)[^{]*\{`)
var emitStmt = regexp.MustCompile(`emit\s+\w+`)

// missingEventFindings flags state-changing functions whose bodies emit
// no event. The body is extracted by brace counting since Go's regexp
// has no lookahead to express "a block not containing emit".
func missingEventFindings(sourceCode, fileName string) []finding.Finding {
	var out []finding.Finding
	for _, loc := range stateChangeHeader.FindAllStringIndex(sourceCode, -1) {
		body, ok := braceBlock(sourceCode, loc[1]-1)
		if !ok {
			continue
		}
		if emitStmt.MatchString(body) {
			continue
		}
		excerpt := sourceCode[loc[0]:loc[1]]
		if len(excerpt) > maxPatternExcerpt {
			excerpt = excerpt[:maxPatternExcerpt]
		}
		out = append(out, finding.Finding{
			ID:       "MISSING_EVENTS",
			Title:    "State change without event emission",
			Severity: finding.SeverityLow,
			Description: "State-changing function does not emit an event. Events are important " +
				"for off-chain monitoring and transparency.",
			Pattern:    excerpt,
			Line:       lineAt(sourceCode, loc[0]),
			File:       fileName,
			Confidence: finding.ConfidenceLow,
		})
	}
	return out
}

var publicFunc = regexp.MustCompile(`function\s+\w+\s*\([^)]*\)\s+public\b\s*(\w*)`)

// publicFuncFindings flags public functions that could be external.
// View and pure functions are excluded via the captured trailing
// keyword (regexp has no negative lookahead).
func publicFuncFindings(sourceCode, fileName string) []finding.Finding {
	var out []finding.Finding
	for _, m := range publicFunc.FindAllStringSubmatchIndex(sourceCode, -1) {
		trailing := ""
		if m[2] >= 0 {
			trailing = sourceCode[m[2]:m[3]]
		}
		if trailing == "view" || trailing == "pure" {
			continue
		}
		excerpt := sourceCode[m[0]:m[1]]
		if len(excerpt) > maxPatternExcerpt {
			excerpt = excerpt[:maxPatternExcerpt]
		}
		out = append(out, finding.Finding{
			ID:       "PUBLIC_FUNC",
			Title:    "Function could be external instead of public",
			Severity: finding.SeverityInfo,
			Description: "Public functions that are never called internally should be declared " +
				"external to save gas.",
			Pattern:    excerpt,
			Line:       lineAt(sourceCode, m[0]),
			File:       fileName,
			Confidence: finding.ConfidenceLow,
		})
	}
	return out
}

// braceBlock returns the text between the opening brace at open and its
// matching closing brace. Naive about braces inside strings/comments,
// which is acceptable for heuristic use.
func braceBlock(s string, open int) (string, bool) {
	if open < 0 || open >= len(s) || s[open] != '{' {
		return "", false
	}
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[open+1 : i], true
			}
		}
	}
	return "", false
}

// lineAt returns the 1-based line of a byte offset.
func lineAt(s string, offset int) int {
	return strings.Count(s[:offset], "\n") + 1
}

// isSolidity08Plus reports whether the compiler version is at least
// 0.8.0. Version strings look like "v0.8.19+commit.7dd6d404".
func isSolidity08Plus(version string) bool {
	if strings.Contains(version, "0.8.") || strings.Contains(version, "0.9.") {
		return true
	}
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return false
	}
	minor, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return false
	}
	return minor >= 8
}
