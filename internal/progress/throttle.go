package progress

import (
	"sync"
	"time"
)

// CHECK_INTERVAL is the minimum spacing between outbound scoring requests for
// one session.
const CHECK_INTERVAL = 5 * time.Second

// Throttle rate-limits scoring requests for a single session. Request may be
// called on every transcript delta; at most one outbound request is issued
// per interval, and calls landing inside the cool-down coalesce into a single
// deferred issue via one owned timer handle.
//
// Every issued request carries a monotonically increasing id. The caller must
// check IsLatest before applying a response; an older id means a newer
// request has since been issued and the response must be discarded.
type Throttle struct {
	interval time.Duration
	issue    func(requestID uint64)

	mu         sync.Mutex
	closed     bool
	lastIssued time.Time
	timer      *time.Timer
	deferred   bool
	latestID   uint64
}

// NewThrottle creates a throttle for one session. The interval window starts
// at construction, so a session's first check happens one full interval after
// the session begins. issue is invoked on its own goroutine.
func NewThrottle(interval time.Duration, issue func(requestID uint64)) *Throttle {
	if interval <= 0 {
		interval = CHECK_INTERVAL
	}
	return &Throttle{interval: interval, issue: issue, lastIssued: time.Now()}
}

// Request asks for a scoring check. Outside the cool-down it issues
// immediately; inside it, exactly one deferred issue is scheduled for when
// the interval next allows it, no matter how many times Request is called.
func (t *Throttle) Request() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if t.deferred {
		// Already coalesced into the pending deferred issue.
		return
	}
	elapsed := time.Since(t.lastIssued)
	if elapsed >= t.interval {
		t.issueLocked()
		return
	}
	t.deferred = true
	remaining := t.interval - elapsed
	if t.timer == nil {
		t.timer = time.AfterFunc(remaining, t.onTimer)
	} else {
		t.timer.Stop()
		t.timer.Reset(remaining)
	}
}

func (t *Throttle) onTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || !t.deferred {
		return
	}
	t.deferred = false
	t.issueLocked()
}

func (t *Throttle) issueLocked() {
	t.lastIssued = time.Now()
	t.latestID++
	id := t.latestID
	if t.issue != nil {
		go t.issue(id)
	}
}

// IsLatest reports whether the given request id is still the newest issued.
// Responses for older ids are stale and must be dropped silently.
func (t *Throttle) IsLatest(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return id == t.latestID
}

// Close cancels any deferred issue. No request fires after Close returns.
func (t *Throttle) Close() {
	t.mu.Lock()
	t.closed = true
	t.deferred = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
}
