package trainer

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chadiek/sales-trainer/internal/coach"
	"github.com/chadiek/sales-trainer/internal/peak"
	"github.com/chadiek/sales-trainer/internal/scoring"
	"github.com/chadiek/sales-trainer/internal/script"
)

type fakeScorer struct {
	mu    sync.Mutex
	calls int
	resps []scoring.Response
	reqs  []scoring.Request
}

func (f *fakeScorer) Score(ctx context.Context, req scoring.Request) (scoring.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	i := f.calls
	f.calls++
	if i < len(f.resps) {
		return f.resps[i], nil
	}
	return scoring.Response{}, nil
}

func (f *fakeScorer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu     sync.Mutex
	keys   []string
	bodies [][]byte
}

func (f *fakeStore) Upload(key, contentType string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.bodies = append(f.bodies, body)
	return nil
}

func testSessionConfig() Config {
	return Config{
		CheckInterval: 30 * time.Millisecond,
		ExcerptLimit:  500,
		Coach:         coach.Config{LowThreshold: 0.40, StuckAfter: time.Hour, Cooldown: time.Hour},
		Peak:          peak.Config{MinScore: 90, HoldFor: time.Hour},
	}
}

func TestSession_ScoresTraineeSpeechAndAdvances(t *testing.T) {
	scorer := &fakeScorer{resps: []scoring.Response{{
		Gates:          []scoring.GateScore{{Gate: 1, Similarity: 0.9}},
		AdherenceScore: 82,
	}}}
	var updates int32
	var last atomic.Value
	s := NewSession("s1", script.ModePrimary, scorer, nil, Hooks{
		OnState: func(u Update) {
			atomic.AddInt32(&updates, 1)
			last.Store(u)
		},
	}, testSessionConfig())
	defer s.End()

	s.OnTranscript(TranscriptEvent{Role: RoleTrainee, Text: "hey thanks for taking my call"})
	time.Sleep(60 * time.Millisecond)

	if scorer.callCount() != 1 {
		t.Fatalf("expected one scoring call, got %d", scorer.callCount())
	}
	if n := atomic.LoadInt32(&updates); n == 0 {
		t.Fatalf("no state update pushed")
	}
	u := last.Load().(Update)
	if u.Gate.CurrentGate != 2 {
		t.Fatalf("expected advance to gate 2, got %d", u.Gate.CurrentGate)
	}
	if u.Gate.Adherence != 82 {
		t.Fatalf("adherence=%v", u.Gate.Adherence)
	}
	if u.Streak.Count != 1 {
		t.Fatalf("streak=%d want 1", u.Streak.Count)
	}
}

func TestSession_WhitespaceNeverReachesThrottle(t *testing.T) {
	scorer := &fakeScorer{}
	s := NewSession("s1", script.ModePrimary, scorer, nil, Hooks{}, testSessionConfig())
	defer s.End()

	s.OnTranscript(TranscriptEvent{Role: RoleTrainee, Text: "   "})
	s.OnTranscript(TranscriptEvent{Role: RoleTrainee, Text: "\t\n"})
	time.Sleep(60 * time.Millisecond)
	if scorer.callCount() != 0 {
		t.Fatalf("whitespace transcript issued %d scoring calls", scorer.callCount())
	}
}

func TestSession_PersonaSpeechDoesNotTriggerScoring(t *testing.T) {
	scorer := &fakeScorer{}
	s := NewSession("s1", script.ModePrimary, scorer, nil, Hooks{}, testSessionConfig())
	defer s.End()

	s.OnTranscript(TranscriptEvent{Role: RolePersona, Text: "tell me about the roof"})
	time.Sleep(60 * time.Millisecond)
	if scorer.callCount() != 0 {
		t.Fatalf("persona speech issued %d scoring calls", scorer.callCount())
	}
	if got := len(s.Transcript()); got != 1 {
		t.Fatalf("persona speech not buffered: %d events", got)
	}
}

func TestSession_StaleResponseDiscarded(t *testing.T) {
	var updates int32
	s := NewSession("s1", script.ModePrimary, &fakeScorer{}, nil, Hooks{
		OnState: func(Update) { atomic.AddInt32(&updates, 1) },
	}, testSessionConfig())
	defer s.End()

	// Issue two requests through the throttle so ids 1 and 2 exist.
	s.throttle.Request()
	time.Sleep(40 * time.Millisecond)
	s.throttle.Request()
	time.Sleep(40 * time.Millisecond)

	rec := 5
	// The old response arrives after the newer request was issued: dropped.
	s.applyScore(1, scoring.Response{RecommendedGate: &rec})
	if got := s.tracker.CurrentGate(); got != 1 {
		t.Fatalf("stale response applied: gate=%d", got)
	}
	// The latest id applies normally.
	s.applyScore(2, scoring.Response{RecommendedGate: &rec})
	if got := s.tracker.CurrentGate(); got != 5 {
		t.Fatalf("latest response not applied: gate=%d", got)
	}
}

func TestSession_ExcerptIsBoundedAndTraineeOnly(t *testing.T) {
	scorer := &fakeScorer{}
	cfg := testSessionConfig()
	cfg.ExcerptLimit = 40
	s := NewSession("s1", script.ModePrimary, scorer, nil, Hooks{}, cfg)
	defer s.End()

	s.OnTranscript(TranscriptEvent{Role: RolePersona, Text: "persona words must never appear"})
	for i := 0; i < 5; i++ {
		s.OnTranscript(TranscriptEvent{Role: RoleTrainee, Text: "some trainee words about the property"})
	}
	time.Sleep(60 * time.Millisecond)

	scorer.mu.Lock()
	defer scorer.mu.Unlock()
	if len(scorer.reqs) == 0 {
		t.Fatalf("no scoring request issued")
	}
	got := scorer.reqs[0].TranscriptExcerpt
	if len(got) > 40 {
		t.Fatalf("excerpt exceeds limit: %d chars", len(got))
	}
	if got == "" {
		t.Fatalf("empty excerpt")
	}
}

func TestSession_EndUploadsSummaryAndStopsScoring(t *testing.T) {
	scorer := &fakeScorer{resps: []scoring.Response{{
		Gates:          []scoring.GateScore{{Gate: 1, Similarity: 0.9}},
		AdherenceScore: 88,
	}}}
	store := &fakeStore{}
	s := NewSession("s1", script.ModeSecondary, scorer, store, Hooks{}, testSessionConfig())

	s.OnTranscript(TranscriptEvent{Role: RoleTrainee, Text: "good to talk again"})
	time.Sleep(60 * time.Millisecond)
	s.End()
	time.Sleep(30 * time.Millisecond)

	store.mu.Lock()
	if len(store.keys) != 1 {
		store.mu.Unlock()
		t.Fatalf("expected one summary upload, got %d", len(store.keys))
	}
	var sum Summary
	if err := json.Unmarshal(store.bodies[0], &sum); err != nil {
		store.mu.Unlock()
		t.Fatalf("summary not valid json: %v", err)
	}
	store.mu.Unlock()
	if sum.SessionID != "s1" || sum.Mode != script.ModeSecondary {
		t.Fatalf("summary identity wrong: %+v", sum)
	}
	if sum.FinalGate != 2 || sum.Adherence != 88 {
		t.Fatalf("summary snapshot wrong: %+v", sum)
	}

	// Post-End transcript is ignored and no further scoring happens.
	before := scorer.callCount()
	s.OnTranscript(TranscriptEvent{Role: RoleTrainee, Text: "more words"})
	time.Sleep(60 * time.Millisecond)
	if scorer.callCount() != before {
		t.Fatalf("ended session still scoring")
	}
	if s.Active() {
		t.Fatalf("session still active after End")
	}
}

func TestSession_EndIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	s := NewSession("s1", script.ModePrimary, &fakeScorer{}, store, Hooks{}, testSessionConfig())
	s.End()
	s.End()
	time.Sleep(30 * time.Millisecond)
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.keys) != 1 {
		t.Fatalf("expected one upload across double End, got %d", len(store.keys))
	}
}

func TestTailChars(t *testing.T) {
	if got := tailChars("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	got := tailChars("one two three four five", 10)
	if len(got) > 10 {
		t.Fatalf("tail too long: %q", got)
	}
}
