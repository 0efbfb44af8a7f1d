// Package scanner fetches verified contract source from a
// BSCScan-compatible explorer API and normalizes the three source
// formats the API serves (flat, standard-JSON, double-brace wrapped
// standard-JSON).
package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oraclesec/sentinel/internal/logging"
)

// SourceFile is one file of a multi-file contract.
type SourceFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ContractSource is the parsed getsourcecode result for one address.
// Unverified contracts are returned with Verified=false and empty
// source; that is an expected outcome, not an error.
type ContractSource struct {
	Address               string       `json:"address"`
	Name                  string       `json:"name"`
	CompilerVersion       string       `json:"compiler_version"`
	OptimizationUsed      bool         `json:"optimization_used"`
	Runs                  int          `json:"runs"`
	SourceCode            string       `json:"source_code"` // flattened/concatenated
	ABI                   string       `json:"abi"`
	License               string       `json:"license"`
	IsProxy               bool         `json:"is_proxy"`
	ImplementationAddress string       `json:"implementation_address,omitempty"`
	Verified              bool         `json:"verified"`
	Files                 []SourceFile `json:"files"`
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  []struct {
		SourceCode       string `json:"SourceCode"`
		ABI              string `json:"ABI"`
		ContractName     string `json:"ContractName"`
		CompilerVersion  string `json:"CompilerVersion"`
		OptimizationUsed string `json:"OptimizationUsed"`
		Runs             string `json:"Runs"`
		LicenseType      string `json:"LicenseType"`
		Proxy            string `json:"Proxy"`
		Implementation   string `json:"Implementation"`
	} `json:"result"`
}

// Config for the explorer client.
type Config struct {
	APIKey  string
	BaseURL string // e.g. https://api.bscscan.com/api
	Timeout time.Duration
}

// Client talks to the explorer API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger logging.Logger
}

const (
	defaultBaseURL = "https://api.bscscan.com/api"
	defaultTimeout = 20 * time.Second
	maxAttempts    = 3
)

// NewClient builds an explorer client.
func NewClient(cfg Config, logger logging.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(logging.Field{Key: "component", Value: "scanner"}),
	}
}

// FetchContractSource retrieves and parses the source for one address.
// Transient network errors are retried with a short backoff. Only a
// failed fetch is an error; an unverified contract is a valid result.
func (c *Client) FetchContractSource(ctx context.Context, address string) (*ContractSource, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New("scanner: empty address")
	}

	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)
	q.Set("apikey", c.cfg.APIKey)
	reqURL := c.cfg.BaseURL + "?" + q.Encode()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, err := c.get(ctx, reqURL)
		if err != nil {
			lastErr = err
			if isTemporaryNetErr(err) && attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
				}
				continue
			}
			return nil, fmt.Errorf("fetching contract source: %w", err)
		}

		var resp apiResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decoding explorer response: %w", err)
		}

		if resp.Status != "1" || len(resp.Result) == 0 {
			// Business-level miss (unverified, unknown address). Not an
			// error: the pipeline still produces an unverified report.
			c.logger.Info("no verified source",
				logging.Field{Key: "address", Value: address},
				logging.Field{Key: "message", Value: resp.Message})
			return unverifiedSource(address), nil
		}

		return parseResult(address, resp), nil
	}

	return nil, fmt.Errorf("fetching contract source after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "sentinel-agent/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, fmt.Errorf("explorer returned status %d: %s", resp.StatusCode, snippet)
	}
	return body, nil
}

func unverifiedSource(address string) *ContractSource {
	return &ContractSource{
		Address: address,
		Name:    "Unknown",
	}
}

func parseResult(address string, resp apiResponse) *ContractSource {
	res := resp.Result[0]
	src := &ContractSource{
		Address:          address,
		Name:             res.ContractName,
		CompilerVersion:  res.CompilerVersion,
		OptimizationUsed: res.OptimizationUsed == "1",
		ABI:              res.ABI,
		License:          res.LicenseType,
		IsProxy:          res.Proxy == "1",
		Verified:         res.SourceCode != "",
	}
	if src.Name == "" {
		src.Name = "Unknown"
	}
	if runs, err := strconv.Atoi(res.Runs); err == nil {
		src.Runs = runs
	}
	if res.Implementation != "" {
		src.ImplementationAddress = res.Implementation
	}
	if !src.Verified {
		return src
	}

	raw := res.SourceCode
	switch {
	case strings.HasPrefix(raw, "{{"):
		// Double-brace wrapped standard JSON (BSCScan quirk): strip one
		// brace from each end before decoding.
		if files, ok := parseStandardJSON(raw[1 : len(raw)-1]); ok {
			src.Files = files
		}
	case strings.HasPrefix(raw, "{"):
		if files, ok := parseStandardJSON(raw); ok {
			src.Files = files
		}
	}

	if len(src.Files) == 0 {
		// Flat source, or JSON that failed to parse.
		name := src.Name
		if name == "Unknown" {
			name = "contract"
		}
		src.Files = []SourceFile{{Path: name + ".sol", Content: raw}}
		src.SourceCode = raw
		return src
	}

	var b strings.Builder
	for _, f := range src.Files {
		fmt.Fprintf(&b, "// File: %s\n%s\n\n", f.Path, f.Content)
	}
	src.SourceCode = b.String()
	return src
}

func parseStandardJSON(raw string) ([]SourceFile, bool) {
	var parsed struct {
		Sources map[string]struct {
			Content string `json:"content"`
		} `json:"sources"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || len(parsed.Sources) == 0 {
		return nil, false
	}
	// Sort paths for deterministic concatenation order.
	paths := make([]string, 0, len(parsed.Sources))
	for p := range parsed.Sources {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	files := make([]SourceFile, 0, len(paths))
	for _, p := range paths {
		files = append(files, SourceFile{Path: p, Content: parsed.Sources[p].Content})
	}
	return files, true
}

// Library prefixes excluded from analysis so findings focus on the
// project's own logic.
var standardPrefixes = []string{
	"@openzeppelin/",
	"@chainlink/",
	"@uniswap/",
	"hardhat/",
	"forge-std/",
	"solmate/",
}

// FilterCustomFiles drops well-known standard library files.
func FilterCustomFiles(files []SourceFile) []SourceFile {
	out := make([]SourceFile, 0, len(files))
	for _, f := range files {
		isStandard := false
		for _, prefix := range standardPrefixes {
			if strings.Contains(f.Path, prefix) {
				isStandard = true
				break
			}
		}
		if !isStandard {
			out = append(out, f)
		}
	}
	return out
}

// isTemporaryNetErr reports whether an error is worth retrying.
func isTemporaryNetErr(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
