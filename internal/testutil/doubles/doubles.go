// Package doubles provides shared test doubles that depend on the
// scanner, llm, and report packages. They live in a subpackage of
// testutil so that those packages' own tests can import
// testutil.DummyLogger without creating an import cycle.
package doubles

import (
	"context"
	"sync"

	"github.com/oraclesec/sentinel/internal/finding"
	"github.com/oraclesec/sentinel/internal/llm"
	"github.com/oraclesec/sentinel/internal/report"
	"github.com/oraclesec/sentinel/internal/scanner"
)

// ─── SourceFetcher ─────────────────────────────────────────────────────

// DummyFetcher implements pipeline.SourceFetcher. Set Err to force a
// fetch failure, otherwise Source is returned for any address.
type DummyFetcher struct {
	Source *scanner.ContractSource
	Err    error

	mu        sync.Mutex
	Requested []string
}

func (d *DummyFetcher) FetchContractSource(_ context.Context, address string) (*scanner.ContractSource, error) {
	d.mu.Lock()
	d.Requested = append(d.Requested, address)
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Source, nil
}

// ─── Reviewer ──────────────────────────────────────────────────────────

// DummyReviewer implements pipeline.Reviewer with canned findings.
type DummyReviewer struct {
	Findings []finding.Finding
	Err      error

	mu    sync.Mutex
	Calls int
}

func (d *DummyReviewer) ReviewContract(_ context.Context, _ llm.ReviewRequest) ([]finding.Finding, error) {
	d.mu.Lock()
	d.Calls++
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Findings, nil
}

// CallCount returns how many times ReviewContract ran.
func (d *DummyReviewer) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Calls
}

// ─── Pinner ────────────────────────────────────────────────────────────

// DummyPinner implements pipeline.Pinner.
type DummyPinner struct {
	Hash     string
	Err      error
	Disabled bool
}

func (d *DummyPinner) Enabled() bool { return !d.Disabled }

func (d *DummyPinner) PinJSON(_ context.Context, _ string, _ any) (string, error) {
	if d.Err != nil {
		return "", d.Err
	}
	return d.Hash, nil
}

// ─── Oracle ────────────────────────────────────────────────────────────

// DummyOracle implements pipeline.Oracle and records submissions.
type DummyOracle struct {
	TxHash string
	Err    error

	mu        sync.Mutex
	Submitted []report.Summary
}

func (d *DummyOracle) SubmitReport(_ context.Context, sum report.Summary) (string, error) {
	d.mu.Lock()
	d.Submitted = append(d.Submitted, sum)
	d.mu.Unlock()
	if d.Err != nil {
		return "", d.Err
	}
	return d.TxHash, nil
}

// LastSubmitted returns the most recent summary, or nil.
func (d *DummyOracle) LastSubmitted() *report.Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Submitted) == 0 {
		return nil
	}
	sum := d.Submitted[len(d.Submitted)-1]
	return &sum
}

// ─── ReportStore ───────────────────────────────────────────────────────

// DummyStore implements pipeline.ReportStore in memory.
type DummyStore struct {
	Err error

	mu    sync.Mutex
	Saved map[string]report.Summary
}

func (d *DummyStore) Upsert(_ context.Context, sum report.Summary) error {
	if d.Err != nil {
		return d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Saved == nil {
		d.Saved = map[string]report.Summary{}
	}
	d.Saved[sum.Address] = sum
	return nil
}

// Get returns the stored summary for address, or nil.
func (d *DummyStore) Get(address string) *report.Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	sum, ok := d.Saved[address]
	if !ok {
		return nil
	}
	return &sum
}
