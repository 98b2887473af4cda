package coach

import (
	"fmt"
	"sync"
	"time"

	"github.com/chadiek/sales-trainer/internal/script"
)

// Config holds the stuck-gate detection policy.
type Config struct {
	LowThreshold float64       // similarity below this means the gate is not progressing
	StuckAfter   time.Duration // continuous low similarity required before a hint
	Cooldown     time.Duration // minimum spacing between fired hints
}

// Default returns the production policy.
func Default() Config {
	return Config{LowThreshold: 0.40, StuckAfter: 15 * time.Second, Cooldown: 30 * time.Second}
}

// hintLines maps gate short names to the nudge spoken when the trainee is
// stuck on that gate. Gates without a line fall back to a generic nudge.
var hintLines = map[string]string{
	"rapport":    "Slow down and connect first. Ask about the property before anything else.",
	"motivation": "You haven't uncovered why they're selling. Ask what a sale would solve for them.",
	"condition":  "Get them walking you through the house. Roof, HVAC, kitchen, baths.",
	"timeline":   "You still don't know their timeline. Ask when they'd want to be done and moved.",
	"anchor":     "Anchor their number. Ask what they'd need to walk away with.",
	"recap":      "Recap what you heard before moving on. Condition, timeline, their number.",
	"offer":      "Present the offer with the reasoning. Walk them through how you got there.",
	"close":      "Ask for the commitment. Agreement today, title opened today.",
	"reconnect":  "Reconnect before business. Confirm nothing changed since last time.",
}

// Trigger watches the current gate's similarity and fires a cooldown-limited
// coaching hint when the trainee has been stuck below the low threshold for
// the configured duration. It owns a single resettable timer; any state that
// invalidates the timer's premise cancels it outright.
type Trigger struct {
	cfg   Config
	gates []script.Gate
	emit  func(gateIndex int, message string)

	mu         sync.Mutex
	closed     bool
	lastGate   int
	stuckSince *time.Time
	lastHint   *time.Time
	timer      *time.Timer
	fired      int
}

// New constructs a trigger for one session. emit is called with the gate the
// hint targets; it must not block.
func New(cfg Config, gates []script.Gate, emit func(gateIndex int, message string)) *Trigger {
	return &Trigger{cfg: cfg, gates: gates, emit: emit}
}

// Observe folds one current-gate similarity reading into the trigger.
func (t *Trigger) Observe(gateIndex int, similarity float64) {
	var fire func()
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if gateIndex != t.lastGate {
		// Gate moved; the old stuck window no longer applies.
		t.cancelTimerLocked()
		t.stuckSince = nil
		t.lastGate = gateIndex
	}
	if similarity >= t.cfg.LowThreshold {
		// Progressing again.
		t.cancelTimerLocked()
		t.stuckSince = nil
		t.mu.Unlock()
		return
	}
	now := time.Now()
	if t.stuckSince == nil {
		s := now
		t.stuckSince = &s
	}
	elapsed := now.Sub(*t.stuckSince)
	if elapsed >= t.cfg.StuckAfter {
		fire = t.fireLocked(now)
		t.stuckSince = nil
		t.cancelTimerLocked()
	} else {
		t.scheduleLocked(t.cfg.StuckAfter - elapsed)
	}
	t.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// onTimer runs when the stuck window elapses without an intervening update.
func (t *Trigger) onTimer() {
	var fire func()
	t.mu.Lock()
	if t.closed || t.stuckSince == nil {
		t.mu.Unlock()
		return
	}
	now := time.Now()
	elapsed := now.Sub(*t.stuckSince)
	if elapsed < t.cfg.StuckAfter {
		// Rescheduled reading pushed the window; wait out the remainder.
		t.scheduleLocked(t.cfg.StuckAfter - elapsed)
		t.mu.Unlock()
		return
	}
	fire = t.fireLocked(now)
	t.stuckSince = nil
	t.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// fireLocked decides whether a hint may actually go out. A fire attempt
// inside the cooldown window is dropped, not queued. Returns the delivery
// closure to invoke outside the lock, or nil.
func (t *Trigger) fireLocked(now time.Time) func() {
	if t.lastHint != nil && now.Sub(*t.lastHint) < t.cfg.Cooldown {
		return nil
	}
	at := now
	t.lastHint = &at
	t.fired++
	gate := t.lastGate
	msg := t.messageFor(gate)
	emit := t.emit
	if emit == nil {
		return nil
	}
	return func() { emit(gate, msg) }
}

func (t *Trigger) messageFor(gateIndex int) string {
	for _, g := range t.gates {
		if g.Index == gateIndex {
			if line, ok := hintLines[g.ShortName]; ok {
				return line
			}
			return fmt.Sprintf("You're drifting off script on %s. Bring it back to the reference line.", g.FullName)
		}
	}
	return "You're drifting off script. Bring it back to the reference line."
}

func (t *Trigger) scheduleLocked(d time.Duration) {
	if t.timer == nil {
		t.timer = time.AfterFunc(d, t.onTimer)
		return
	}
	t.timer.Stop()
	t.timer.Reset(d)
}

func (t *Trigger) cancelTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Fired returns how many hints were delivered this session.
func (t *Trigger) Fired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Close cancels any pending timer. A hint firing after session end is a
// defect, so Close must be called before the session is torn down.
func (t *Trigger) Close() {
	t.mu.Lock()
	t.closed = true
	t.cancelTimerLocked()
	t.mu.Unlock()
}
