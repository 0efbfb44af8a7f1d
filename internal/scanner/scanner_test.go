package scanner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oraclesec/sentinel/internal/testutil"
)

const testAddr = "0x10ed43c718714eb63d5aa57b78b54704e256024e"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	}, &testutil.DummyLogger{})
}

func explorerOK(sourceCode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"status":  "1",
			"message": "OK",
			"result": []map[string]string{{
				"SourceCode":       sourceCode,
				"ABI":              "[]",
				"ContractName":     "PancakeRouter",
				"CompilerVersion":  "v0.8.19+commit.7dd6d404",
				"OptimizationUsed": "1",
				"Runs":             "200",
				"LicenseType":      "MIT",
				"Proxy":            "0",
				"Implementation":   "",
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestFetchContractSourceFlat(t *testing.T) {
	c := newTestClient(t, explorerOK("pragma solidity ^0.8.0;\ncontract PancakeRouter {}"))

	src, err := c.FetchContractSource(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !src.Verified {
		t.Fatal("expected verified source")
	}
	if src.Name != "PancakeRouter" {
		t.Fatalf("expected name PancakeRouter, got %s", src.Name)
	}
	if !src.OptimizationUsed || src.Runs != 200 {
		t.Fatalf("expected optimization on with 200 runs, got %v/%d", src.OptimizationUsed, src.Runs)
	}
	if len(src.Files) != 1 || src.Files[0].Path != "PancakeRouter.sol" {
		t.Fatalf("expected single flat file PancakeRouter.sol, got %+v", src.Files)
	}
	if !strings.Contains(src.SourceCode, "contract PancakeRouter") {
		t.Fatal("expected flattened source to carry the contract body")
	}
}

func TestFetchContractSourceDoubleBraceJSON(t *testing.T) {
	standard := `{{"language":"Solidity","sources":{` +
		`"contracts/Token.sol":{"content":"contract Token {}"},` +
		`"@openzeppelin/contracts/token/ERC20.sol":{"content":"contract ERC20 {}"},` +
		`"contracts/Admin.sol":{"content":"contract Admin {}"}}}}`
	c := newTestClient(t, explorerOK(standard))

	src, err := c.FetchContractSource(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(src.Files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(src.Files))
	}
	// Deterministic path order.
	if src.Files[0].Path != "@openzeppelin/contracts/token/ERC20.sol" ||
		src.Files[1].Path != "contracts/Admin.sol" ||
		src.Files[2].Path != "contracts/Token.sol" {
		t.Fatalf("unexpected file order: %+v", src.Files)
	}
	if !strings.Contains(src.SourceCode, "// File: contracts/Token.sol") {
		t.Fatal("expected concatenated source with file markers")
	}

	custom := FilterCustomFiles(src.Files)
	if len(custom) != 2 {
		t.Fatalf("expected 2 custom files after filtering, got %d", len(custom))
	}
	for _, f := range custom {
		if strings.Contains(f.Path, "@openzeppelin/") {
			t.Fatalf("library file survived filtering: %s", f.Path)
		}
	}
}

func TestFetchContractSourceUnverified(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "0",
			"message": "NOTOK",
			"result":  []any{},
		})
	})

	src, err := c.FetchContractSource(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("unverified contract must not be an error, got %v", err)
	}
	if src.Verified {
		t.Fatal("expected unverified result")
	}
	if src.Name != "Unknown" {
		t.Fatalf("expected name Unknown, got %s", src.Name)
	}
	if src.SourceCode != "" || len(src.Files) != 0 {
		t.Fatal("expected empty source for unverified contract")
	}
}

func TestFetchContractSourceEmptySourceIsUnverified(t *testing.T) {
	c := newTestClient(t, explorerOK(""))

	src, err := c.FetchContractSource(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Verified {
		t.Fatal("empty SourceCode must parse as unverified")
	}
}

func TestFetchContractSourceServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	if _, err := c.FetchContractSource(context.Background(), testAddr); err == nil {
		t.Fatal("expected error on HTTP 502")
	}
}

func TestFetchContractSourceSendsQuery(t *testing.T) {
	var gotQuery map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"module":  r.URL.Query().Get("module"),
			"action":  r.URL.Query().Get("action"),
			"address": r.URL.Query().Get("address"),
			"apikey":  r.URL.Query().Get("apikey"),
		}
		explorerOK("contract C {}")(w, r)
	})

	if _, err := c.FetchContractSource(context.Background(), testAddr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{
		"module":  "contract",
		"action":  "getsourcecode",
		"address": testAddr,
		"apikey":  "test-key",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Fatalf("query param %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestFetchContractSourceEmptyAddress(t *testing.T) {
	c := newTestClient(t, explorerOK("contract C {}"))
	if _, err := c.FetchContractSource(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank address")
	}
}

func TestFilterCustomFilesKeepsEverythingWithoutLibraries(t *testing.T) {
	files := []SourceFile{
		{Path: "contracts/A.sol"},
		{Path: "src/B.sol"},
	}
	if got := FilterCustomFiles(files); len(got) != 2 {
		t.Fatalf("expected 2 files, got %d", len(got))
	}
}
