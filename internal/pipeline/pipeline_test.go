package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/oraclesec/sentinel/internal/finding"
	"github.com/oraclesec/sentinel/internal/scanner"
	"github.com/oraclesec/sentinel/internal/testutil"
	"github.com/oraclesec/sentinel/internal/testutil/doubles"
)

const testAddr = "0x10ed43c718714eb63d5aa57b78b54704e256024e"

func verifiedSource() *scanner.ContractSource {
	src := `contract Vault {
    function drain() external {
        selfdestruct(payable(msg.sender));
    }
}`
	return &scanner.ContractSource{
		Address:         testAddr,
		Name:            "Vault",
		CompilerVersion: "v0.8.19+commit.7dd6d404",
		Verified:        true,
		SourceCode:      src,
		Files:           []scanner.SourceFile{{Path: "Vault.sol", Content: src}},
	}
}

func TestScanFullPipeline(t *testing.T) {
	fetcher := &doubles.DummyFetcher{Source: verifiedSource()}
	reviewer := &doubles.DummyReviewer{Findings: []finding.Finding{{
		ID:         "LLM_ACCESS_CONTROL",
		Title:      "Missing access control",
		Severity:   finding.SeverityHigh,
		Confidence: finding.ConfidenceHigh,
		Line:       2,
	}}}
	pinner := &doubles.DummyPinner{Hash: "QmPinned"}
	oracle := &doubles.DummyOracle{TxHash: "0xsubmitted"}
	store := &doubles.DummyStore{}

	r := NewRunner(fetcher, reviewer, pinner, oracle, store, &testutil.DummyLogger{})
	sum, err := r.Scan(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if sum.ContractName != "Vault" || !sum.SourceVerified {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	// SELFDESTRUCT (critical, 20) + LLM high (10) = 30.
	if sum.RiskScore != 30 {
		t.Fatalf("expected score 30, got %d", sum.RiskScore)
	}
	if sum.IPFSHash != "QmPinned" || sum.TxHash != "0xsubmitted" {
		t.Fatalf("publication refs missing: %+v", sum)
	}
	if reviewer.CallCount() != 1 {
		t.Fatalf("expected 1 review call, got %d", reviewer.CallCount())
	}
	if store.Get(testAddr) == nil {
		t.Fatal("expected summary persisted")
	}
	if last := oracle.LastSubmitted(); last == nil || last.IPFSHash != "QmPinned" {
		t.Fatalf("unexpected oracle submission: %+v", last)
	}
}

func TestScanFetchFailureIsFatal(t *testing.T) {
	fetcher := &doubles.DummyFetcher{Err: errors.New("explorer down")}
	store := &doubles.DummyStore{}

	r := NewRunner(fetcher, nil, nil, nil, store, &testutil.DummyLogger{})
	if _, err := r.Scan(context.Background(), testAddr); err == nil {
		t.Fatal("expected error when source fetch fails")
	}
	if store.Get(testAddr) != nil {
		t.Fatal("nothing should be stored on fetch failure")
	}
}

func TestScanLLMFailureDegrades(t *testing.T) {
	fetcher := &doubles.DummyFetcher{Source: verifiedSource()}
	reviewer := &doubles.DummyReviewer{Err: errors.New("model overloaded")}
	store := &doubles.DummyStore{}

	r := NewRunner(fetcher, reviewer, nil, nil, store, &testutil.DummyLogger{})
	sum, err := r.Scan(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("LLM failure must not fail the scan: %v", err)
	}
	// Pattern findings alone: SELFDESTRUCT critical = 20.
	if sum.RiskScore != 20 {
		t.Fatalf("expected score 20 from pattern findings only, got %d", sum.RiskScore)
	}
}

func TestScanSkipsLLMForUnverified(t *testing.T) {
	fetcher := &doubles.DummyFetcher{Source: &scanner.ContractSource{
		Address: testAddr,
		Name:    "Unknown",
	}}
	reviewer := &doubles.DummyReviewer{}
	store := &doubles.DummyStore{}

	r := NewRunner(fetcher, reviewer, nil, nil, store, &testutil.DummyLogger{})
	sum, err := r.Scan(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if reviewer.CallCount() != 0 {
		t.Fatal("reviewer must not run on unverified source")
	}
	if sum.RiskScore != 10 {
		t.Fatalf("expected unverified penalty score 10, got %d", sum.RiskScore)
	}
	if sum.SourceVerified {
		t.Fatal("expected unverified summary")
	}
}

func TestScanPinFailureUsesPendingOnchain(t *testing.T) {
	fetcher := &doubles.DummyFetcher{Source: verifiedSource()}
	pinner := &doubles.DummyPinner{Err: errors.New("pinata 500")}
	oracle := &doubles.DummyOracle{TxHash: "0xsubmitted"}
	store := &doubles.DummyStore{}

	r := NewRunner(fetcher, nil, pinner, oracle, store, &testutil.DummyLogger{})
	sum, err := r.Scan(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("pin failure must not fail the scan: %v", err)
	}
	if sum.IPFSHash != "" {
		t.Fatalf("expected empty stored hash, got %q", sum.IPFSHash)
	}
	last := oracle.LastSubmitted()
	if last == nil || last.IPFSHash != "pending" {
		t.Fatalf("expected onchain submission with pending hash, got %+v", last)
	}
	if sum.TxHash != "0xsubmitted" {
		t.Fatalf("expected tx hash recorded, got %q", sum.TxHash)
	}
}

func TestScanOracleFailureDegrades(t *testing.T) {
	fetcher := &doubles.DummyFetcher{Source: verifiedSource()}
	oracle := &doubles.DummyOracle{Err: errors.New("rpc timeout")}
	store := &doubles.DummyStore{}

	r := NewRunner(fetcher, nil, nil, oracle, store, &testutil.DummyLogger{})
	sum, err := r.Scan(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("oracle failure must not fail the scan: %v", err)
	}
	if sum.TxHash != "" {
		t.Fatalf("expected empty tx hash, got %q", sum.TxHash)
	}
	if store.Get(testAddr) == nil {
		t.Fatal("summary must still be stored")
	}
}

func TestScanDisabledPinnerSkipped(t *testing.T) {
	fetcher := &doubles.DummyFetcher{Source: verifiedSource()}
	pinner := &doubles.DummyPinner{Hash: "QmNever", Disabled: true}
	store := &doubles.DummyStore{}

	r := NewRunner(fetcher, nil, pinner, nil, store, &testutil.DummyLogger{})
	sum, err := r.Scan(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if sum.IPFSHash != "" {
		t.Fatalf("disabled pinner must be skipped, got hash %q", sum.IPFSHash)
	}
}

func TestScanStoreFailure(t *testing.T) {
	fetcher := &doubles.DummyFetcher{Source: verifiedSource()}
	store := &doubles.DummyStore{Err: errors.New("disk full")}

	r := NewRunner(fetcher, nil, nil, nil, store, &testutil.DummyLogger{})
	if _, err := r.Scan(context.Background(), testAddr); err == nil {
		t.Fatal("expected error when the store rejects the summary")
	}
}
