package server

import (
	"github.com/oraclesec/sentinel/internal/queue"
	"github.com/oraclesec/sentinel/internal/report"
)

// ScanRequest is the POST /scan body.
type ScanRequest struct {
	Address string `json:"address"`
	Force   bool   `json:"force,omitempty"`
}

// ScanResponse is returned when a scan request is queued.
type ScanResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	Position      int    `json:"position"`
	EstimatedTime string `json:"estimatedTime"`
}

// StatusResponse describes an address's scan state. Report is set only
// when the scan has completed.
type StatusResponse struct {
	Status      string          `json:"status"`
	Report      *report.Summary `json:"report,omitempty"`
	Error       string          `json:"error,omitempty"`
	RequestedAt string          `json:"requestedAt,omitempty"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status    string      `json:"status"`
	Queue     queue.State `json:"queue"`
	Timestamp string      `json:"timestamp"`
}
