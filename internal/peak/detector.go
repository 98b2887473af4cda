package peak

import (
	"sync"
	"time"
)

// Config holds the activation policy for peak mode.
type Config struct {
	MinScore float64       // adherence score that qualifies, inclusive
	HoldFor  time.Duration // how long the score must hold before activation
}

// Default returns the production policy: 90+ adherence held for 30 seconds.
func Default() Config {
	return Config{MinScore: 90, HoldFor: 30 * time.Second}
}

// MULTIPLIER is applied by the presentation layer while peak mode is active.
// It is a policy constant, not derived from the score.
const MULTIPLIER = 2.0

// State is the exposed peak-mode view.
type State struct {
	Active      bool       `json:"active"`
	ActivatedAt *time.Time `json:"activatedAt,omitempty"`
}

// Detector tracks how long the adherence score has stayed at or above the
// qualifying threshold. Any dip below the threshold deactivates immediately
// and restarts the hold window.
type Detector struct {
	cfg Config

	mu          sync.Mutex
	heldSince   *time.Time
	activatedAt *time.Time
}

func New(cfg Config) *Detector {
	if cfg.MinScore == 0 && cfg.HoldFor == 0 {
		cfg = Default()
	}
	return &Detector{cfg: cfg}
}

// Observe folds one adherence reading into the detector and returns the
// resulting state. Called once per applied scoring result.
func (d *Detector) Observe(adherence float64) State {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if adherence < d.cfg.MinScore {
		d.heldSince = nil
		d.activatedAt = nil
		return d.stateLocked()
	}
	if d.heldSince == nil {
		d.heldSince = &now
	}
	if d.activatedAt == nil && now.Sub(*d.heldSince) >= d.cfg.HoldFor {
		at := now
		d.activatedAt = &at
	}
	return d.stateLocked()
}

// State returns the current peak-mode state without a new observation.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked()
}

// Reset clears the detector for session end.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.heldSince = nil
	d.activatedAt = nil
	d.mu.Unlock()
}

func (d *Detector) stateLocked() State {
	st := State{Active: d.activatedAt != nil}
	if st.Active {
		at := *d.activatedAt
		st.ActivatedAt = &at
	}
	return st
}
