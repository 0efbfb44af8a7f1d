package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oraclesec/sentinel/internal/queue"
	"github.com/oraclesec/sentinel/internal/report"
	"github.com/oraclesec/sentinel/internal/testutil"

	_ "modernc.org/sqlite"
)

const testAddr = "0x10ed43c718714eb63d5aa57b78b54704e256024e"

type fixture struct {
	srv   *httptest.Server
	queue *queue.ScanQueue
	store *report.Store
}

func newFixture(t *testing.T, process queue.ProcessFunc) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := report.NewStore(db, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if process == nil {
		process = func(ctx context.Context, address string) error { return nil }
	}
	q := queue.New(queue.Config{MinInterval: time.Millisecond}, process, &testutil.DummyLogger{})
	t.Cleanup(q.Close)

	s := NewServer(Config{ListenAddr: ":0"}, q, store, &testutil.DummyLogger{})
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, queue: q, store: store}
}

func (f *fixture) postScan(t *testing.T, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.srv.URL+"/scan", "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("POST /scan: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func storedSummary(address string) report.Summary {
	return report.Summary{
		Address:       address,
		ContractName:  "Cached",
		RiskScore:     15,
		RiskLevel:     "low",
		TotalFindings: 1,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body HealthResponse
	decode(t, resp, &body)
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
}

func TestScanValidation(t *testing.T) {
	f := newFixture(t, nil)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", "{nope"},
		{"missing address", `{}`},
		{"bad address", `{"address":"not-an-address"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.postScan(t, tc.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestScanQueues(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.postScan(t, `{"address":"`+testAddr+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body ScanResponse
	decode(t, resp, &body)
	if body.Status != "queued" {
		t.Fatalf("expected queued, got %s", body.Status)
	}
	if !strings.HasPrefix(body.EstimatedTime, "~") || !strings.HasSuffix(body.EstimatedTime, "minutes") {
		t.Fatalf("unexpected estimate: %q", body.EstimatedTime)
	}
}

func TestScanCooldownReturns429(t *testing.T) {
	f := newFixture(t, nil)
	f.queue.MarkScanned(testAddr)

	resp := f.postScan(t, `{"address":"`+testAddr+`"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func TestScanReturnsCachedReport(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.store.Upsert(context.Background(), storedSummary(testAddr)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	resp := f.postScan(t, `{"address":"`+testAddr+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body StatusResponse
	decode(t, resp, &body)
	if body.Status != "completed" || body.Report == nil || body.Report.ContractName != "Cached" {
		t.Fatalf("expected cached report, got %+v", body)
	}

	// force bypasses the cache and queues a fresh scan.
	resp = f.postScan(t, `{"address":"`+testAddr+`","force":true}`)
	var forced ScanResponse
	decode(t, resp, &forced)
	if forced.Status != "queued" {
		t.Fatalf("expected forced scan to queue, got %s", forced.Status)
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	// Unknown address.
	resp, err := http.Get(f.srv.URL + "/status/" + testAddr)
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	var body StatusResponse
	decode(t, resp, &body)
	if body.Status != "unknown" {
		t.Fatalf("expected unknown, got %s", body.Status)
	}

	// Stored report wins.
	if err := f.store.Upsert(context.Background(), storedSummary(testAddr)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	resp, err = http.Get(f.srv.URL + "/status/" + testAddr)
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	decode(t, resp, &body)
	if body.Status != "completed" || body.Report == nil {
		t.Fatalf("expected completed with report, got %+v", body)
	}
}

func TestReportEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.srv.URL + "/report/" + testAddr)
	if err != nil {
		t.Fatalf("GET /report: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var errBody map[string]string
	decode(t, resp, &errBody)
	if errBody["error"] != "Not audited" {
		t.Fatalf("unexpected error body: %v", errBody)
	}

	if err := f.store.Upsert(context.Background(), storedSummary(testAddr)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	resp, err = http.Get(f.srv.URL + "/report/" + testAddr)
	if err != nil {
		t.Fatalf("GET /report: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var sum report.Summary
	decode(t, resp, &sum)
	if sum.ContractName != "Cached" {
		t.Fatalf("unexpected report: %+v", sum)
	}
}

func TestReportsListEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.store.Upsert(context.Background(), storedSummary(testAddr)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	resp, err := http.Get(f.srv.URL + "/reports.json")
	if err != nil {
		t.Fatalf("GET /reports.json: %v", err)
	}
	var list []report.Summary
	decode(t, resp, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 report, got %d", len(list))
	}
}

func TestQueueStateEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.srv.URL + "/queue")
	if err != nil {
		t.Fatalf("GET /queue: %v", err)
	}
	var st queue.State
	decode(t, resp, &st)
	if st.Total != 0 {
		t.Fatalf("expected empty queue, got %+v", st)
	}
}

func TestCORSHeaders(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard CORS origin, got %q", got)
	}
}

func TestQueueWebSocketStreamsEvents(t *testing.T) {
	// Slow the scan down so events arrive after the subscription is live.
	f := newFixture(t, func(ctx context.Context, address string) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/queue"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	if res := f.queue.Enqueue(testAddr, false); !res.Accepted {
		t.Fatalf("enqueue rejected: %s", res.Message)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var ev queue.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("reading event: %v", err)
		}
		if ev.Address != testAddr {
			t.Fatalf("unexpected event address: %s", ev.Address)
		}
		if ev.Status == queue.StatusCompleted {
			return
		}
	}
}
