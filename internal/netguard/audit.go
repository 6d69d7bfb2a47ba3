package netguard

import (
	"sync"
	"time"
)

// DefaultAuditCapacity bounds the audit ring when no capacity is configured.
const DefaultAuditCapacity = 1000

// AuditRow records one blocked request. RuleID is empty when the decision
// came from a non-rule path (allowlist/denylist).
type AuditRow struct {
	RequestID    string
	AgentID      string
	Timestamp    time.Time
	URL          string
	Host         string
	ResourceType string
	RuleID       string
	Action       string
	PageURL      string
	Method       string
}

// AuditLog is an append-only bounded buffer of audit rows. When the buffer
// fills, the oldest half is dropped in one operation to amortize eviction
// cost under contention.
type AuditLog struct {
	mu       sync.Mutex
	capacity int
	rows     []AuditRow
	dropped  uint64
}

// NewAuditLog creates an audit log. Non-positive capacities fall back to
// DefaultAuditCapacity.
func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &AuditLog{capacity: capacity}
}

// Append records a row, halving the buffer first if it is full.
func (l *AuditLog) Append(row AuditRow) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.rows) >= l.capacity {
		half := l.capacity / 2
		l.dropped += uint64(len(l.rows) - half)
		kept := make([]AuditRow, half)
		copy(kept, l.rows[len(l.rows)-half:])
		l.rows = kept
	}
	l.rows = append(l.rows, row)
}

// Rows returns a copy of the buffered rows, oldest first.
func (l *AuditLog) Rows() []AuditRow {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditRow, len(l.rows))
	copy(out, l.rows)
	return out
}

// Recent returns up to n of the newest rows, oldest first.
func (l *AuditLog) Recent(n int) []AuditRow {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > len(l.rows) {
		n = len(l.rows)
	}
	out := make([]AuditRow, n)
	copy(out, l.rows[len(l.rows)-n:])
	return out
}

// Len returns the number of buffered rows.
func (l *AuditLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

// Dropped returns how many rows eviction has discarded.
func (l *AuditLog) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
