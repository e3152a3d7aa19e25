package providers

import (
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// QuotaState is the per-day request counter of one provider.
// Exhausted is set when the backend itself reported the quota as spent.
type QuotaState struct {
	Date      string
	Count     int
	Exhausted bool
}

// ResetIfNewDay returns a fresh state when now falls on a later calendar day
func (s QuotaState) ResetIfNewDay(now time.Time) QuotaState {
	day := now.Format(dayLayout)
	if s.Date == day {
		return s
	}
	return QuotaState{Date: day}
}

// QuotaTracker owns the quota, cool-down and last-error state of one adapter
type QuotaTracker struct {
	mu               sync.Mutex
	limit            int
	state            QuotaState
	rateLimitedUntil time.Time
	lastError        string
	now              Clock
}

// NewQuotaTracker creates a tracker; limit <= 0 means no daily quota
func NewQuotaTracker(limit int, now Clock) *QuotaTracker {
	if now == nil {
		now = time.Now
	}
	return &QuotaTracker{
		limit: limit,
		state: QuotaState{Date: now().Format(dayLayout)},
		now:   now,
	}
}

func (q *QuotaTracker) current() QuotaState {
	q.state = q.state.ResetIfNewDay(q.now())
	return q.state
}

// Exhausted reports whether no more requests may be sent today
func (q *QuotaTracker) Exhausted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.current()
	return s.Exhausted || (q.limit > 0 && s.Count >= q.limit)
}

// Reserve counts one request against today's quota; false when none is left
func (q *QuotaTracker) Reserve() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.current()
	if s.Exhausted || (q.limit > 0 && s.Count >= q.limit) {
		return false
	}
	q.state.Count++
	return true
}

// Remaining returns nil when no daily quota is configured
func (q *QuotaTracker) Remaining() *int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.limit <= 0 {
		return nil
	}
	s := q.current()
	remaining := q.limit - s.Count
	if s.Exhausted || remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// MarkExhausted blocks the provider until the next calendar day
func (q *QuotaTracker) MarkExhausted() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.current()
	q.state.Exhausted = true
}

// MarkRateLimited puts the provider in cool-down for d
func (q *QuotaTracker) MarkRateLimited(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if until := q.now().Add(d); until.After(q.rateLimitedUntil) {
		q.rateLimitedUntil = until
	}
}

// RateLimited reports whether a cool-down is in effect
func (q *QuotaTracker) RateLimited() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.now().Before(q.rateLimitedUntil)
}

// SetLastError records the most recent failure; empty clears it
func (q *QuotaTracker) SetLastError(msg string) {
	q.mu.Lock()
	q.lastError = msg
	q.mu.Unlock()
}

// LastError returns the most recent failure message
func (q *QuotaTracker) LastError() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastError
}

// Snapshot returns today's state
func (q *QuotaTracker) Snapshot() QuotaState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current()
}
