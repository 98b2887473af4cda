package streak

import "sync"

// ON_SCRIPT_THRESHOLD is the similarity at or above which a reading counts as
// on-script. Shared with the gate advancement rule in the progress tracker.
const ON_SCRIPT_THRESHOLD = 0.75

// MIN_ACTIVE_STREAK is the count at which a streak is surfaced to the UI.
// Counts of 1-2 are tracked but carry multiplier 1.0 and are not shown.
const MIN_ACTIVE_STREAK = 3

// Tier maps a minimum streak count to a score multiplier and badge color.
type Tier struct {
	MinStreak  int
	Multiplier float64
	Color      string
}

// tiers is scanned ascending; the highest tier whose MinStreak does not
// exceed the current count wins. Below the lowest tier the multiplier is 1.0.
var tiers = []Tier{
	{MinStreak: 3, Multiplier: 1.5, Color: "emerald"},
	{MinStreak: 5, Multiplier: 2.0, Color: "sapphire"},
	{MinStreak: 8, Multiplier: 3.0, Color: "gold"},
}

// State is the derived streak view consumed by the UI layer.
type State struct {
	Count      int     `json:"count"`
	Multiplier float64 `json:"multiplier"`
	Color      string  `json:"color,omitempty"`
	Active     bool    `json:"active"`
}

// Engine derives a consecutive-on-script streak from the current-gate
// similarity stream. It holds no timers; Observe is called once per scoring
// result applied to the session.
type Engine struct {
	mu           sync.Mutex
	count        int
	best         int
	prevOnScript bool
}

func New() *Engine { return &Engine{} }

// Observe folds one current-gate similarity reading into the streak.
// Two consecutive on-script readings grow the streak; an on-script reading
// after an off-script one restarts it at 1; an off-script reading zeroes it.
func (e *Engine) Observe(similarity float64) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	on := similarity >= ON_SCRIPT_THRESHOLD
	switch {
	case on && e.prevOnScript:
		e.count++
	case on:
		e.count = 1
	default:
		e.count = 0
	}
	e.prevOnScript = on
	if e.count > e.best {
		e.best = e.count
	}
	return e.stateLocked()
}

// State returns the current streak without observing a new reading.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Best returns the longest streak seen this session.
func (e *Engine) Best() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.best
}

// Reset clears the streak for a new session.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.count, e.best, e.prevOnScript = 0, 0, false
	e.mu.Unlock()
}

func (e *Engine) stateLocked() State {
	st := State{Count: e.count, Multiplier: 1.0}
	for _, t := range tiers {
		if e.count >= t.MinStreak {
			st.Multiplier = t.Multiplier
			st.Color = t.Color
		}
	}
	st.Active = e.count >= MIN_ACTIVE_STREAK
	return st
}
