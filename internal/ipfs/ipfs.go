// Package ipfs pins audit reports to IPFS through the Pinata pinning
// API. Uploads are best-effort: callers log failures and continue with
// an empty hash.
package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultPinEndpoint = "https://api.pinata.cloud/pinning/pinJSONToIPFS"
	gatewayURL         = "https://gateway.pinata.cloud/ipfs/"
	pinTimeout         = 60 * time.Second
)

// Client pins JSON payloads via Pinata.
type Client struct {
	apiKey   string
	secret   string
	endpoint string
	http     *http.Client
}

// NewClient builds a Pinata client. Enabled reports whether keys are
// configured.
func NewClient(apiKey, secret string) *Client {
	return &Client{
		apiKey:   apiKey,
		secret:   secret,
		endpoint: defaultPinEndpoint,
		http:     &http.Client{Timeout: pinTimeout},
	}
}

// Enabled reports whether the client has credentials to pin with.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != "" && c.secret != ""
}

type pinRequest struct {
	PinataContent  any `json:"pinataContent"`
	PinataMetadata struct {
		Name string `json:"name"`
	} `json:"pinataMetadata"`
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int    `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// PinJSON uploads a JSON-serializable payload and returns its CID.
func (c *Client) PinJSON(ctx context.Context, name string, payload any) (string, error) {
	req := pinRequest{PinataContent: payload}
	req.PinataMetadata.Name = name

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding pin request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("pinata_api_key", c.apiKey)
	httpReq.Header.Set("pinata_secret_api_key", c.secret)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("pinata request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("pinata upload failed: %d %s", resp.StatusCode, string(snippet))
	}

	var parsed pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding pinata response: %w", err)
	}
	if parsed.IpfsHash == "" {
		return "", fmt.Errorf("pinata returned empty hash")
	}
	return parsed.IpfsHash, nil
}

// URL returns the public gateway URL for a CID.
func URL(hash string) string {
	return gatewayURL + hash
}
