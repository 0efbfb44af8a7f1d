// Package server exposes the agent's HTTP + WebSocket API: scan
// submission, status polling, report retrieval and a queue event
// stream.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/oraclesec/sentinel/internal/logging"
	"github.com/oraclesec/sentinel/internal/onchain"
	"github.com/oraclesec/sentinel/internal/queue"
	"github.com/oraclesec/sentinel/internal/report"
)

// Config for the HTTP server.
type Config struct {
	// ListenAddr is the address for ListenAndServe, e.g. ":3001".
	ListenAddr string
}

// Server routes API traffic to the scan queue and the report store.
type Server struct {
	cfg      Config
	queue    *queue.ScanQueue
	reports  *report.Store
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewServer wires routes around an existing queue and store.
func NewServer(cfg Config, q *queue.ScanQueue, reports *report.Store, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}
	s := &Server{
		cfg:     cfg,
		queue:   q,
		reports: reports,
		router:  chi.NewRouter(),
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict allowed origins once the frontend host is fixed
				return true
			},
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	r.Options("/scan", s.optionsHandler("POST"))
	r.Options("/status/{address}", s.optionsHandler("GET"))
	r.Options("/report/{address}", s.optionsHandler("GET"))

	r.Get("/health", s.handleHealth)
	r.Post("/scan", s.handleScan)
	r.Get("/status/{address}", s.handleStatus)
	r.Get("/report/{address}", s.handleGetReport)
	r.Get("/reports.json", s.handleListReports)
	r.Get("/queue", s.handleQueueState)
	r.Get("/ws/queue", s.handleQueueWS)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler with request logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("http_request",
		logging.Field{Key: "method", Value: r.Method},
		logging.Field{Key: "path", Value: r.URL.Path})
	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- HTTP handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Queue:     s.queue.State(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var body ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Address == "" {
		writeError(w, http.StatusBadRequest, "missing 'address' in request body")
		return
	}
	if !onchain.ValidAddress(body.Address) {
		writeError(w, http.StatusBadRequest, "invalid address format")
		return
	}

	// A cached report answers immediately unless the caller forces a
	// fresh scan.
	if !body.Force {
		if cached, err := s.reports.Get(r.Context(), body.Address); err == nil {
			writeJSON(w, http.StatusOK, StatusResponse{Status: "completed", Report: cached})
			return
		}
	}

	result := s.queue.Enqueue(body.Address, body.Force)
	if !result.Accepted {
		writeError(w, http.StatusTooManyRequests, result.Message)
		return
	}

	position := result.Position
	if position < 1 {
		position = 1
	}
	writeJSON(w, http.StatusOK, ScanResponse{
		Status:        "queued",
		Message:       result.Message,
		Position:      result.Position,
		EstimatedTime: estimate(position),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	if cached, err := s.reports.Get(r.Context(), address); err == nil {
		writeJSON(w, http.StatusOK, StatusResponse{Status: "completed", Report: cached})
		return
	}

	if item := s.queue.Status(address); item != nil {
		writeJSON(w, http.StatusOK, StatusResponse{
			Status:      string(item.Status),
			Error:       item.Error,
			RequestedAt: item.RequestedAt.UTC().Format(time.RFC3339),
		})
		return
	}

	// Never seen, or evicted from retained history.
	writeJSON(w, http.StatusOK, StatusResponse{Status: "unknown"})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	sum, err := s.reports.Get(r.Context(), address)
	if errors.Is(err, report.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not audited")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.reports.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleQueueState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.State())
}

// handleQueueWS streams queue lifecycle events until the client
// disconnects.
func (s *Server) handleQueueWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	events := s.queue.Subscribe()
	defer s.queue.Unsubscribe(events)

	// Reader goroutine: detect client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

// estimate gives callers a rough wait time based on queue position.
func estimate(position int) string {
	return fmt.Sprintf("~%d minutes", position*2)
}
