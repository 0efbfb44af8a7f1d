// Package queue implements the admission-controlled, single-flight
// scheduler that gates contract scans against the slow, rate-limited
// downstream pipeline.
package queue

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oraclesec/sentinel/internal/logging"
)

// Status is the lifecycle state of a queue item. Items move
// pending -> processing -> completed|failed and never leave a terminal
// state; a later request for the same address creates a fresh item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Item is one audit request. Address is the normalized (lowercased)
// dedup key.
type Item struct {
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	RequestedAt time.Time `json:"requested_at"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
}

// EnqueueResult is the synchronous answer to an enqueue call.
type EnqueueResult struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
	// Position is the 1-based place among pending items; 0 when the
	// request was rejected.
	Position int `json:"position,omitempty"`
}

// State summarizes the queue for health/monitoring endpoints.
type State struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Total      int `json:"total"`
}

// Event is emitted on every item state transition. Subscribers must
// drain their channel; slow subscribers lose events rather than block
// the scheduler.
type Event struct {
	ItemID  string    `json:"item_id"`
	Address string    `json:"address"`
	Status  Status    `json:"status"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// ProcessFunc runs the full scan pipeline for one address. It is
// invoked by the queue's scheduler, never concurrently with itself.
type ProcessFunc func(ctx context.Context, address string) error

// Config bounds the queue. Zero values fall back to the defaults.
type Config struct {
	// MaxPending is the admission capacity; further requests are
	// rejected until a slot frees up.
	MaxPending int

	// MinInterval is the minimum time between two job starts,
	// system-wide. Backpressure against third-party rate limits.
	MinInterval time.Duration

	// Cooldown is how long a successfully scanned address is refused
	// re-admission without force.
	Cooldown time.Duration

	// MaxHistory bounds retained items (any status); oldest evicted.
	MaxHistory int
}

// DefaultConfig returns the production bounds: 10 pending slots, 12s
// between starts (5 scans/minute), 24h re-scan cooldown, 50 retained
// items.
func DefaultConfig() Config {
	return Config{
		MaxPending:  10,
		MinInterval: 12 * time.Second,
		Cooldown:    24 * time.Hour,
		MaxHistory:  50,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPending <= 0 {
		c.MaxPending = d.MaxPending
	}
	if c.MinInterval <= 0 {
		c.MinInterval = d.MinInterval
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = d.MaxHistory
	}
	return c
}

// ScanQueue gates, orders and throttles audit jobs. All state is
// guarded by mu; the scheduler runs at most one job at a time across
// the whole queue.
type ScanQueue struct {
	cfg     Config
	process ProcessFunc
	logger  logging.Logger

	mu          sync.Mutex
	items       []*Item
	recentScans map[string]time.Time
	running     bool
	deferred    bool // a timer is already set for the next step
	lastStart   time.Time

	// now is swapped in tests to control cooldown/interval arithmetic.
	now func() time.Time

	subsMu sync.Mutex
	subs   map[chan Event]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a ScanQueue around the injected process callback.
func New(cfg Config, process ProcessFunc, logger logging.Logger) *ScanQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &ScanQueue{
		cfg:         cfg.withDefaults(),
		process:     process,
		logger:      logger.With(logging.Field{Key: "component", Value: "scan-queue"}),
		recentScans: make(map[string]time.Time),
		now:         time.Now,
		subs:        make(map[chan Event]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Normalize lowercases and trims an address so it can serve as the
// dedup and cooldown key.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Enqueue applies the admission rules and, when accepted, kicks the
// scheduler. It never blocks on the downstream pipeline: throttling is
// enforced at job start, not at admission.
//
// force bypasses the cooldown check only; capacity and duplicate
// handling apply regardless.
func (q *ScanQueue) Enqueue(address string, force bool) EnqueueResult {
	normalized := Normalize(address)

	q.mu.Lock()

	if !force {
		if last, ok := q.recentScans[normalized]; ok && q.now().Sub(last) < q.cfg.Cooldown {
			q.mu.Unlock()
			return EnqueueResult{
				Accepted: false,
				Message:  "Already scanned recently. Use force=true to re-scan.",
			}
		}
	}

	// Idempotent re-submission: a live item for this address answers
	// with its current position instead of creating a duplicate.
	if existing := q.liveItemLocked(normalized); existing != nil {
		pos := q.pendingPositionLocked(existing)
		q.mu.Unlock()
		q.kick()
		return EnqueueResult{Accepted: true, Message: "Already in queue", Position: pos}
	}

	if q.pendingCountLocked() >= q.cfg.MaxPending {
		q.mu.Unlock()
		return EnqueueResult{Accepted: false, Message: "Queue is full. Try again later."}
	}

	item := &Item{
		ID:          uuid.New().String(),
		Address:     normalized,
		RequestedAt: q.now(),
		Status:      StatusPending,
	}
	q.items = append(q.items, item)
	position := q.pendingCountLocked()
	q.mu.Unlock()

	q.emit(Event{ItemID: item.ID, Address: normalized, Status: StatusPending, Time: item.RequestedAt})
	q.kick()

	return EnqueueResult{Accepted: true, Message: "Added to queue", Position: position}
}

// Status returns a copy of the most recently created item for the
// address, or nil if the address has never been seen (or its record was
// evicted by the history bound).
func (q *ScanQueue) Status(address string) *Item {
	normalized := Normalize(address)
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.items) - 1; i >= 0; i-- {
		if q.items[i].Address == normalized {
			cp := *q.items[i]
			return &cp
		}
	}
	return nil
}

// State reports current pending/processing/retained counts.
func (q *ScanQueue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := State{Total: len(q.items)}
	for _, it := range q.items {
		switch it.Status {
		case StatusPending:
			st.Pending++
		case StatusProcessing:
			st.Processing++
		}
	}
	return st
}

// MarkScanned stamps the cooldown record for an address. The scheduler
// calls this after successful jobs; seeding tools use it to pre-fill
// the window.
func (q *ScanQueue) MarkScanned(address string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recentScans[Normalize(address)] = q.now()
}

// Subscribe registers an event channel. The caller must Unsubscribe
// when done.
func (q *ScanQueue) Subscribe() chan Event {
	ch := make(chan Event, 16)
	q.subsMu.Lock()
	q.subs[ch] = struct{}{}
	q.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (q *ScanQueue) Unsubscribe(ch chan Event) {
	q.subsMu.Lock()
	if _, ok := q.subs[ch]; ok {
		delete(q.subs, ch)
		close(ch)
	}
	q.subsMu.Unlock()
}

// Close stops the queue. In-flight work is allowed to settle via the
// context handed to the process callback.
func (q *ScanQueue) Close() {
	q.cancel()
}

func (q *ScanQueue) emit(ev Event) {
	q.subsMu.Lock()
	defer q.subsMu.Unlock()
	for ch := range q.subs {
		// Non-blocking send; drop if the subscriber is slow.
		select {
		case ch <- ev:
		default:
		}
	}
}

// kick runs one scheduler step on a fresh goroutine so admission calls
// return immediately.
func (q *ScanQueue) kick() {
	go q.step()
}

// step starts the oldest pending item if the queue is idle and the
// minimum inter-start interval has elapsed; otherwise it either defers
// itself with a timer or does nothing. Invoked after every enqueue and
// after every job settles.
func (q *ScanQueue) step() {
	q.mu.Lock()
	if q.running || q.deferred {
		q.mu.Unlock()
		return
	}

	var next *Item
	for _, it := range q.items {
		if it.Status == StatusPending {
			next = it
			break
		}
	}
	if next == nil {
		q.mu.Unlock()
		return
	}

	if elapsed := q.now().Sub(q.lastStart); elapsed < q.cfg.MinInterval {
		// Rate limited: re-run this step once the interval completes
		// instead of dropping it.
		q.deferred = true
		wait := q.cfg.MinInterval - elapsed
		q.mu.Unlock()
		time.AfterFunc(wait, func() {
			q.mu.Lock()
			q.deferred = false
			q.mu.Unlock()
			q.step()
		})
		return
	}

	next.Status = StatusProcessing
	q.running = true
	started := q.now()
	q.lastStart = started
	itemID, address := next.ID, next.Address
	q.mu.Unlock()

	q.emit(Event{ItemID: itemID, Address: address, Status: StatusProcessing, Time: started})
	q.logger.Info("scan started", logging.Field{Key: "address", Value: address})

	go func() {
		err := q.process(q.ctx, address)
		q.settle(itemID, address, err)
	}()
}

// settle records a job outcome, stamps the cooldown record on success,
// trims retained history and immediately attempts the next step.
func (q *ScanQueue) settle(itemID, address string, err error) {
	q.mu.Lock()
	q.running = false

	var settled *Item
	for _, it := range q.items {
		if it.ID == itemID {
			settled = it
			break
		}
	}
	if settled != nil {
		if err != nil {
			settled.Status = StatusFailed
			settled.Error = err.Error()
		} else {
			settled.Status = StatusCompleted
			// Only successful scans stamp the cooldown window, so a
			// failed address can be retried immediately.
			q.recentScans[address] = q.now()
		}
	}

	if len(q.items) > q.cfg.MaxHistory {
		q.items = q.items[len(q.items)-q.cfg.MaxHistory:]
	}
	q.mu.Unlock()

	ev := Event{ItemID: itemID, Address: address, Status: StatusCompleted, Time: q.now()}
	if err != nil {
		ev.Status = StatusFailed
		ev.Error = err.Error()
		q.logger.Warn("scan failed",
			logging.Field{Key: "address", Value: address},
			logging.Field{Key: "error", Value: err.Error()})
	} else {
		q.logger.Info("scan completed", logging.Field{Key: "address", Value: address})
	}
	q.emit(ev)

	// Drain the FIFO until empty or rate limited.
	q.step()
}

// liveItemLocked returns the non-terminal item for an address, if any.
// Callers must hold mu.
func (q *ScanQueue) liveItemLocked(normalized string) *Item {
	for _, it := range q.items {
		if it.Address == normalized && (it.Status == StatusPending || it.Status == StatusProcessing) {
			return it
		}
	}
	return nil
}

// pendingPositionLocked returns the 1-based position of an item among
// pending items, or 0 when the item is already processing. Callers must
// hold mu.
func (q *ScanQueue) pendingPositionLocked(target *Item) int {
	pos := 0
	for _, it := range q.items {
		if it.Status != StatusPending {
			continue
		}
		pos++
		if it == target {
			return pos
		}
	}
	return 0
}

func (q *ScanQueue) pendingCountLocked() int {
	n := 0
	for _, it := range q.items {
		if it.Status == StatusPending {
			n++
		}
	}
	return n
}
