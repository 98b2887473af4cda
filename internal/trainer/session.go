package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/chadiek/sales-trainer/internal/coach"
	"github.com/chadiek/sales-trainer/internal/peak"
	"github.com/chadiek/sales-trainer/internal/progress"
	"github.com/chadiek/sales-trainer/internal/salesflow"
	"github.com/chadiek/sales-trainer/internal/scoring"
	"github.com/chadiek/sales-trainer/internal/script"
	"github.com/chadiek/sales-trainer/internal/streak"
)

// Session orchestrates one live training call: transcript deltas in, throttled
// scoring checks out, derived gamification state pushed to the UI layer. All
// state is owned by this session and torn down on End.
type Session struct {
	id     string
	mode   string
	cfg    Config
	scorer Scorer
	store  SummaryStore
	hooks  Hooks

	tracker  *progress.Tracker
	throttle *progress.Throttle
	streak   *streak.Engine
	peak     *peak.Detector
	coach    *coach.Trigger
	flow     *salesflow.Machine

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	active      bool
	buffer      []TranscriptEvent
	traineeText strings.Builder
	pendingText strings.Builder // trainee speech since the last issued check
	startedAt   time.Time
}

// NewSession creates and activates a session for the given script mode.
func NewSession(id, mode string, scorer Scorer, store SummaryStore, hooks Hooks, cfg Config) *Session {
	if cfg.ExcerptLimit <= 0 {
		cfg.ExcerptLimit = 500
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		mode:      mode,
		cfg:       cfg,
		scorer:    scorer,
		store:     store,
		hooks:     hooks,
		tracker:   progress.NewTracker(mode),
		streak:    streak.New(),
		peak:      peak.New(cfg.Peak),
		flow:      salesflow.New(),
		ctx:       ctx,
		cancel:    cancel,
		active:    true,
		startedAt: time.Now(),
	}
	s.coach = coach.New(cfg.Coach, script.GatesFor(mode), func(gate int, msg string) {
		if hooks.OnHint != nil {
			hooks.OnHint(gate, msg)
		}
	})
	s.throttle = progress.NewThrottle(cfg.CheckInterval, s.issueCheck)
	return s
}

func (s *Session) ID() string   { return s.id }
func (s *Session) Mode() string { return s.mode }

// Flow exposes the sales-process machine for the persona-response and
// conversation-understanding boundaries.
func (s *Session) Flow() *salesflow.Machine { return s.flow }

// OnTranscript ingests one transcript event from the voice transport. Only
// trainee speech feeds the scoring pipeline; persona speech is buffered for
// context but never scored.
func (s *Session) OnTranscript(ev TranscriptEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.buffer = append(s.buffer, ev)
	if ev.Role != RoleTrainee {
		s.mu.Unlock()
		return
	}
	if s.traineeText.Len() > 0 {
		s.traineeText.WriteString(" ")
	}
	s.traineeText.WriteString(ev.Text)
	if s.pendingText.Len() > 0 {
		s.pendingText.WriteString(" ")
	}
	s.pendingText.WriteString(ev.Text)
	// Nothing worth scoring yet; this check happens before the throttle is
	// consulted so an empty delta never burns the interval.
	pending := strings.TrimSpace(s.pendingText.String())
	s.mu.Unlock()
	if pending == "" {
		return
	}
	s.throttle.Request()
}

// issueCheck runs on the throttle's goroutine whenever a scoring request is
// allowed out. The excerpt is snapshotted at issue time, not request time.
func (s *Session) issueCheck(requestID uint64) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	excerpt := tailChars(s.traineeText.String(), s.cfg.ExcerptLimit)
	s.pendingText.Reset()
	s.mu.Unlock()
	if strings.TrimSpace(excerpt) == "" {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	resp, err := s.scorer.Score(ctx, scoring.Request{
		TranscriptExcerpt: excerpt,
		CurrentGate:       s.tracker.CurrentGate(),
		Mode:              s.mode,
	})
	if err != nil {
		// Transient: keep prior state, the next interval tries again.
		log.Printf("session %s: scoring check failed: %v", s.id, err)
		return
	}
	s.applyScore(requestID, resp)
}

// applyScore folds one scoring response into the session. Responses for
// superseded request ids are dropped silently; the id compare is the sole
// defense against the stale-response race.
func (s *Session) applyScore(requestID uint64, resp scoring.Response) {
	if !s.throttle.IsLatest(requestID) {
		log.Printf("session %s: discarding stale scoring response (id=%d)", s.id, requestID)
		return
	}
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	res := s.tracker.Apply(resp)
	if res.ObservedSimilarity != nil {
		s.streak.Observe(*res.ObservedSimilarity)
	}
	s.peak.Observe(resp.AdherenceScore)
	if sim, ok := res.Snapshot.Similarity[res.Snapshot.CurrentGate]; ok {
		s.coach.Observe(res.Snapshot.CurrentGate, sim)
	} else if res.Advanced {
		// New gate with no reading yet; still tell the coach the gate moved
		// so its stuck window restarts.
		s.coach.Observe(res.Snapshot.CurrentGate, 1.0)
	}
	s.pushState()
}

// PushState sends a fresh snapshot to the UI layer. Exported for the HTTP and
// websocket edges to call after sales-process transitions.
func (s *Session) PushState() { s.pushState() }

func (s *Session) pushState() {
	if s.hooks.OnState == nil {
		return
	}
	s.hooks.OnState(s.State())
}

// State returns the current live view.
func (s *Session) State() Update {
	return Update{
		SessionID: s.id,
		Mode:      s.mode,
		Gate:      s.tracker.Snapshot(),
		Streak:    s.streak.State(),
		Peak:      s.peak.State(),
		Flow:      s.flow.Snapshot(),
	}
}

// Transcript returns a copy of the session's transcript buffer.
func (s *Session) Transcript() []TranscriptEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TranscriptEvent, len(s.buffer))
	copy(out, s.buffer)
	return out
}

// Active reports whether the session is still live.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// End tears the session down: timers first so nothing fires for a dead
// session, then a best-effort summary upload, then state release. Safe to
// call more than once.
func (s *Session) End() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.mu.Unlock()

	s.throttle.Close()
	s.coach.Close()
	s.cancel()

	summary := s.summary()
	if s.store != nil {
		go func() {
			body, err := json.Marshal(summary)
			if err != nil {
				log.Printf("session %s: marshal summary: %v", s.id, err)
				return
			}
			key := fmt.Sprintf("summaries/%s/%s.json", summary.EndedAt.Format("2006-01-02"), s.id)
			if err := s.store.Upload(key, "application/json", body); err != nil {
				log.Printf("session %s: summary upload failed: %v", s.id, err)
			}
		}()
	}

	s.mu.Lock()
	s.buffer = nil
	s.traineeText.Reset()
	s.pendingText.Reset()
	s.mu.Unlock()
	s.tracker.Reset()
	s.streak.Reset()
	s.peak.Reset()
	log.Printf("session %s ended (gate %d, adherence %.0f)", s.id, summary.FinalGate, summary.Adherence)
}

func (s *Session) summary() Summary {
	snap := s.tracker.Snapshot()
	pk := s.peak.State()
	return Summary{
		SessionID:   s.id,
		Mode:        s.mode,
		EndedAt:     time.Now(),
		FinalGate:   snap.CurrentGate,
		GateCount:   snap.GateCount,
		Adherence:   snap.Adherence,
		BestStreak:  s.streak.Best(),
		PeakReached: pk.Active,
		PeakAt:      pk.ActivatedAt,
		FinalPhase:  string(s.flow.Phase()),
		HintsFired:  s.coach.Fired(),
	}
}

// tailChars returns the last n characters of s without splitting words more
// than necessary.
func tailChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[len(s)-n:]
	if i := strings.IndexByte(cut, ' '); i > 0 && i < len(cut)-1 {
		cut = cut[i+1:]
	}
	return cut
}
