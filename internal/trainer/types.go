package trainer

import (
	"context"
	"time"

	"github.com/chadiek/sales-trainer/internal/coach"
	"github.com/chadiek/sales-trainer/internal/peak"
	"github.com/chadiek/sales-trainer/internal/progress"
	"github.com/chadiek/sales-trainer/internal/salesflow"
	"github.com/chadiek/sales-trainer/internal/scoring"
	"github.com/chadiek/sales-trainer/internal/streak"
)

// Transcript event roles.
const (
	RoleTrainee = "trainee"
	RolePersona = "persona"
)

// TranscriptEvent is one utterance delivered by the voice-streaming transport.
type TranscriptEvent struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Scorer is the minimal interface to the similarity-scoring backend.
type Scorer interface {
	Score(ctx context.Context, req scoring.Request) (scoring.Response, error)
}

// SummaryStore uploads end-of-session summaries. Failures are logged, never
// surfaced to the trainee.
type SummaryStore interface {
	Upload(objectKey string, contentType string, body []byte) error
}

// Hooks carries the session's outbound callbacks. Both must be non-blocking;
// they run on scoring/timer goroutines.
type Hooks struct {
	// OnState is invoked with a fresh state snapshot after every applied
	// scoring result and after every sales-process transition.
	OnState func(Update)
	// OnHint is invoked when the coach fires a nudge for a gate.
	OnHint func(gateIndex int, message string)
}

// Update is the live view pushed to the UI layer.
type Update struct {
	SessionID string             `json:"sessionId"`
	Mode      string             `json:"mode"`
	Gate      progress.Snapshot  `json:"gate"`
	Streak    streak.State       `json:"streak"`
	Peak      peak.State         `json:"peak"`
	Flow      salesflow.Snapshot `json:"flow"`
}

// Summary is the end-of-call result uploaded to storage.
type Summary struct {
	SessionID   string     `json:"sessionId"`
	Mode        string     `json:"mode"`
	EndedAt     time.Time  `json:"endedAt"`
	FinalGate   int        `json:"finalGate"`
	GateCount   int        `json:"gateCount"`
	Adherence   float64    `json:"adherence"`
	BestStreak  int        `json:"bestStreak"`
	PeakReached bool       `json:"peakReached"`
	PeakAt      *time.Time `json:"peakAt,omitempty"`
	FinalPhase  string     `json:"finalPhase"`
	HintsFired  int        `json:"hintsFired"`
}

// Config tunes the per-session engines. Zero values fall back to production
// policy; tests use millisecond-scale settings.
type Config struct {
	CheckInterval time.Duration
	ExcerptLimit  int // max chars of trainee speech sent per scoring request
	Coach         coach.Config
	Peak          peak.Config
}

// DefaultConfig is the production policy.
func DefaultConfig() Config {
	return Config{
		CheckInterval: progress.CHECK_INTERVAL,
		ExcerptLimit:  500,
		Coach:         coach.Default(),
		Peak:          peak.Default(),
	}
}
