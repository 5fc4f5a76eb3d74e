package budget

import (
	"sync"
	"time"
)

// TokenRecord is one per-request token usage entry (spec.md §4.10 "Token
// tracker").
type TokenRecord struct {
	SessionID     string
	RequestID     string
	InputTokens   int
	OutputTokens  int
	TaskType      string
	AgentID       string
	TrajectoryID  string
	RecordedAt    time.Time
}

// TokenTracker records per-request token usage into a bounded in-memory
// buffer, auto-flushing at a configurable limit, with aggregation queries
// by session, task type, agent, trajectory, or time window (spec.md §4.10).
type TokenTracker struct {
	mu         sync.Mutex
	buffer     []TokenRecord
	flushLimit int
	onFlush    func([]TokenRecord)
	now        func() time.Time
}

// DefaultFlushLimit bounds the in-memory buffer before an auto-flush.
const DefaultFlushLimit = 500

// NewTokenTracker builds a tracker that calls onFlush (if non-nil) whenever
// the buffer reaches flushLimit, then clears it.
func NewTokenTracker(flushLimit int, onFlush func([]TokenRecord)) *TokenTracker {
	if flushLimit <= 0 {
		flushLimit = DefaultFlushLimit
	}
	return &TokenTracker{
		flushLimit: flushLimit,
		onFlush:    onFlush,
		now:        time.Now,
	}
}

// Record appends rec (stamping RecordedAt if zero) and triggers an
// auto-flush once the buffer reaches its limit.
func (t *TokenTracker) Record(rec TokenRecord) {
	t.mu.Lock()
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = t.now()
	}
	t.buffer = append(t.buffer, rec)
	shouldFlush := len(t.buffer) >= t.flushLimit
	var flushed []TokenRecord
	if shouldFlush {
		flushed = t.buffer
		t.buffer = nil
	}
	t.mu.Unlock()

	if shouldFlush && t.onFlush != nil {
		t.onFlush(flushed)
	}
}

// Stats aggregates token counts matching an optional filter.
type Stats struct {
	Requests     int
	InputTokens  int64
	OutputTokens int64
}

// Filter narrows an aggregation query; zero-value fields are wildcards.
type Filter struct {
	SessionID    string
	TaskType     string
	AgentID      string
	TrajectoryID string
	Since        time.Time
	Until        time.Time
}

func (f Filter) matches(r TokenRecord) bool {
	if f.SessionID != "" && f.SessionID != r.SessionID {
		return false
	}
	if f.TaskType != "" && f.TaskType != r.TaskType {
		return false
	}
	if f.AgentID != "" && f.AgentID != r.AgentID {
		return false
	}
	if f.TrajectoryID != "" && f.TrajectoryID != r.TrajectoryID {
		return false
	}
	if !f.Since.IsZero() && r.RecordedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.RecordedAt.After(f.Until) {
		return false
	}
	return true
}

// Query aggregates the current (unflushed) buffer by filter.
func (t *TokenTracker) Query(f Filter) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	var s Stats
	for _, r := range t.buffer {
		if !f.matches(r) {
			continue
		}
		s.Requests++
		s.InputTokens += int64(r.InputTokens)
		s.OutputTokens += int64(r.OutputTokens)
	}
	return s
}

// BufferSize returns the number of unflushed records currently held.
func (t *TokenTracker) BufferSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}
