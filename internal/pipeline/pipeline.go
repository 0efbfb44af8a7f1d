// Package pipeline runs the full audit for one contract address:
// fetch source, pattern analysis, optional LLM review, scoring, and
// best-effort publication. The queue invokes it through Process; only
// a failed source fetch fails the job.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/oraclesec/sentinel/internal/analyzer"
	"github.com/oraclesec/sentinel/internal/finding"
	"github.com/oraclesec/sentinel/internal/llm"
	"github.com/oraclesec/sentinel/internal/logging"
	"github.com/oraclesec/sentinel/internal/report"
	"github.com/oraclesec/sentinel/internal/scanner"
	"github.com/oraclesec/sentinel/internal/scorer"
)

// SourceFetcher obtains parsed contract source.
type SourceFetcher interface {
	FetchContractSource(ctx context.Context, address string) (*scanner.ContractSource, error)
}

// Reviewer runs the LLM review pass.
type Reviewer interface {
	ReviewContract(ctx context.Context, req llm.ReviewRequest) ([]finding.Finding, error)
}

// Pinner uploads the full report to content storage.
type Pinner interface {
	Enabled() bool
	PinJSON(ctx context.Context, name string, payload any) (string, error)
}

// Oracle submits the summary on-chain.
type Oracle interface {
	SubmitReport(ctx context.Context, sum report.Summary) (string, error)
}

// ReportStore persists the durable summary.
type ReportStore interface {
	Upsert(ctx context.Context, sum report.Summary) error
}

// Runner wires the audit steps together. Reviewer, Pinner and Oracle
// are optional; nil disables the corresponding step.
type Runner struct {
	fetcher  SourceFetcher
	reviewer Reviewer
	pinner   Pinner
	oracle   Oracle
	store    ReportStore
	logger   logging.Logger
}

// NewRunner builds a Runner.
func NewRunner(fetcher SourceFetcher, reviewer Reviewer, pinner Pinner, oracle Oracle, store ReportStore, logger logging.Logger) *Runner {
	return &Runner{
		fetcher:  fetcher,
		reviewer: reviewer,
		pinner:   pinner,
		oracle:   oracle,
		store:    store,
		logger:   logger.With(logging.Field{Key: "component", Value: "pipeline"}),
	}
}

// Process adapts Scan to the queue's ProcessFunc signature.
func (r *Runner) Process(ctx context.Context, address string) error {
	_, err := r.Scan(ctx, address)
	return err
}

// Scan audits one address end to end and returns the stored summary.
func (r *Runner) Scan(ctx context.Context, address string) (*report.Summary, error) {
	log := r.logger.With(logging.Field{Key: "address", Value: address})
	log.Info("scan pipeline started")

	src, err := r.fetcher.FetchContractSource(ctx, address)
	if err != nil {
		// The only fatal condition: without source there is nothing to
		// analyze, publish or store.
		return nil, fmt.Errorf("fetching source for %s: %w", address, err)
	}
	log.Info("source fetched",
		logging.Field{Key: "contract", Value: src.Name},
		logging.Field{Key: "verified", Value: src.Verified},
		logging.Field{Key: "files", Value: len(src.Files)})

	customFiles := scanner.FilterCustomFiles(src.Files)
	var ruleFindings []finding.Finding
	for _, file := range customFiles {
		ruleFindings = append(ruleFindings, analyzer.Analyze(file.Content, src.CompilerVersion, file.Path)...)
	}
	log.Info("static analysis done", logging.Field{Key: "findings", Value: len(ruleFindings)})

	llmFindings := r.reviewFindings(ctx, src, customFiles, log)

	centralization := analyzer.CountCentralizationFactors(ruleFindings)
	breakdown := scorer.Score(ruleFindings, llmFindings, src.Verified, centralization)
	log.Info("risk scored",
		logging.Field{Key: "score", Value: breakdown.RiskScore},
		logging.Field{Key: "level", Value: breakdown.RiskLevel})

	allFindings := append(append([]finding.Finding{}, ruleFindings...), llmFindings...)
	rep := report.New(address, src.Name, src.CompilerVersion, src.Verified, breakdown, allFindings)

	ipfsHash := r.pinReport(ctx, rep, log)
	txHash := r.submitOnchain(ctx, rep, ipfsHash, log)

	summary := rep.Summarize(ipfsHash, txHash)
	if err := r.store.Upsert(ctx, summary); err != nil {
		return nil, fmt.Errorf("storing report for %s: %w", address, err)
	}

	log.Info("scan pipeline done")
	return &summary, nil
}

// reviewFindings runs the LLM pass when there is verified source to
// review. Any failure degrades to zero findings.
func (r *Runner) reviewFindings(ctx context.Context, src *scanner.ContractSource, customFiles []scanner.SourceFile, log logging.Logger) []finding.Finding {
	if r.reviewer == nil {
		return nil
	}
	if !src.Verified || len(src.SourceCode) == 0 {
		log.Info("skipping llm review, source not verified")
		return nil
	}

	// Large contracts review only their non-library files.
	source := src.SourceCode
	if len(customFiles) > 0 {
		var b strings.Builder
		for _, f := range customFiles {
			fmt.Fprintf(&b, "// File: %s\n%s\n\n", f.Path, f.Content)
		}
		source = b.String()
	}

	findings, err := r.reviewer.ReviewContract(ctx, llm.ReviewRequest{
		SourceCode:      source,
		ContractName:    src.Name,
		CompilerVersion: src.CompilerVersion,
	})
	if err != nil {
		log.Warn("llm review failed, continuing with pattern findings only",
			logging.Field{Key: "error", Value: err.Error()})
		return nil
	}
	log.Info("llm review done", logging.Field{Key: "findings", Value: len(findings)})
	return findings
}

// pinReport uploads the full report, best-effort.
func (r *Runner) pinReport(ctx context.Context, rep *report.Report, log logging.Logger) string {
	if r.pinner == nil || !r.pinner.Enabled() {
		return ""
	}
	hash, err := r.pinner.PinJSON(ctx, "audit-report-"+rep.Address, rep)
	if err != nil {
		log.Warn("ipfs upload failed", logging.Field{Key: "error", Value: err.Error()})
		return ""
	}
	log.Info("report pinned", logging.Field{Key: "ipfs_hash", Value: hash})
	return hash
}

// submitOnchain publishes the summary, best-effort. The chain record
// carries "pending" when the pin failed so explorers can distinguish
// a missing report from a never-pinned one.
func (r *Runner) submitOnchain(ctx context.Context, rep *report.Report, ipfsHash string, log logging.Logger) string {
	if r.oracle == nil {
		return ""
	}
	sum := rep.Summarize(ipfsHash, "")
	if sum.IPFSHash == "" {
		sum.IPFSHash = "pending"
	}
	txHash, err := r.oracle.SubmitReport(ctx, sum)
	if err != nil {
		log.Warn("onchain submission failed", logging.Field{Key: "error", Value: err.Error()})
		return ""
	}
	log.Info("report submitted onchain", logging.Field{Key: "tx", Value: txHash})
	return txHash
}
