package progress

import (
	"sync"
	"time"

	"github.com/chadiek/sales-trainer/internal/scoring"
	"github.com/chadiek/sales-trainer/internal/script"
)

// ADVANCE_THRESHOLD is the current-gate similarity above which the trainee is
// considered to have hit the gate. Matches the streak engine's on-script
// threshold; advancement requires strictly exceeding it.
const ADVANCE_THRESHOLD = 0.75

// Snapshot is a point-in-time copy of a session's gate progress.
type Snapshot struct {
	CurrentGate int             `json:"currentGate"`
	GateCount   int             `json:"gateCount"`
	Similarity  map[int]float64 `json:"similarity"`
	Adherence   float64         `json:"adherence"`
	LastCheck   time.Time       `json:"lastCheck"`
}

// ApplyResult reports what one scoring response did to the tracker.
type ApplyResult struct {
	Snapshot Snapshot
	// ObservedSimilarity is the similarity of the gate that was current when
	// the response was applied, when that gate was scored. The streak and
	// coach engines key off this reading, not the post-advance gate.
	ObservedSimilarity *float64
	Advanced           bool
}

// Tracker owns one session's gate pointer, per-gate similarity map and
// aggregate adherence score. The gate pointer is monotonically non-decreasing
// for the lifetime of the session.
type Tracker struct {
	mu        sync.Mutex
	mode      string
	gateCount int
	current   int
	sims      map[int]float64
	adherence float64
	lastCheck time.Time
}

// NewTracker starts a session at gate 1 of the given mode's script.
func NewTracker(mode string) *Tracker {
	return &Tracker{
		mode:      mode,
		gateCount: script.Count(mode),
		current:   1,
		sims:      make(map[int]float64),
	}
}

// Apply merges one scoring response into the tracker. Partial gate arrays
// merge into the similarity map; untouched gates keep their last value. The
// gate pointer advances by one when the current gate's similarity exceeds
// the threshold, or jumps forward to the backend's recommended gate. It never
// moves backwards; a regressive recommendation is ignored.
func (t *Tracker) Apply(resp scoring.Response) ApplyResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, g := range resp.Gates {
		if g.Gate < 1 || g.Gate > t.gateCount {
			continue
		}
		t.sims[g.Gate] = g.Similarity
	}
	t.adherence = resp.AdherenceScore
	t.lastCheck = time.Now()

	res := ApplyResult{}
	if sim, ok := t.sims[t.current]; ok {
		s := sim
		res.ObservedSimilarity = &s
	}

	before := t.current
	if sim, ok := t.sims[t.current]; ok && sim > ADVANCE_THRESHOLD && t.current < t.gateCount {
		t.current++
	}
	if resp.RecommendedGate != nil && *resp.RecommendedGate > t.current {
		jump := *resp.RecommendedGate
		if jump > t.gateCount {
			jump = t.gateCount
		}
		t.current = jump
	}
	res.Advanced = t.current > before
	res.Snapshot = t.snapshotLocked()
	return res
}

// Snapshot returns a copy of the current progress state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// CurrentGate returns the gate pointer.
func (t *Tracker) CurrentGate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Adherence returns the last aggregate adherence score from the backend.
func (t *Tracker) Adherence() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.adherence
}

// Mode returns the script mode this tracker was created with.
func (t *Tracker) Mode() string { return t.mode }

// Reset clears all per-session gate state for session end.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.current = 1
	t.sims = make(map[int]float64)
	t.adherence = 0
	t.lastCheck = time.Time{}
	t.mu.Unlock()
}

func (t *Tracker) snapshotLocked() Snapshot {
	sims := make(map[int]float64, len(t.sims))
	for k, v := range t.sims {
		sims[k] = v
	}
	return Snapshot{
		CurrentGate: t.current,
		GateCount:   t.gateCount,
		Similarity:  sims,
		Adherence:   t.adherence,
		LastCheck:   t.lastCheck,
	}
}
