package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/sales-trainer/internal/coach"
	"github.com/chadiek/sales-trainer/internal/peak"
	"github.com/chadiek/sales-trainer/internal/scoring"
	"github.com/chadiek/sales-trainer/internal/trainer"
)

type fakeScorer struct{ resp scoring.Response }

func (f *fakeScorer) Score(ctx context.Context, req scoring.Request) (scoring.Response, error) {
	return f.resp, nil
}

func testManager() *trainer.Manager {
	return trainer.NewManager(
		&fakeScorer{resp: scoring.Response{
			Gates:          []scoring.GateScore{{Gate: 1, Similarity: 0.9}},
			AdherenceScore: 80,
		}},
		nil,
		trainer.Config{
			CheckInterval: 20 * time.Millisecond,
			ExcerptLimit:  500,
			Coach:         coach.Config{LowThreshold: 0.4, StuckAfter: time.Hour, Cooldown: time.Hour},
			Peak:          peak.Config{MinScore: 90, HoldFor: time.Hour},
		},
	)
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) sessionWSMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for {
		var m sessionWSMessage
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("waiting for %q: %v", msgType, err)
		}
		if m.Type == msgType {
			return m
		}
	}
}

func TestServe_SessionLifecycle(t *testing.T) {
	mgr := testManager()
	h := NewHandler(mgr, "")
	srv := httptest.NewServer(http.HandlerFunc(h.Serve))
	defer srv.Close()

	conn := dial(t, srv, nil)
	defer conn.Close()

	if err := conn.WriteJSON(sessionWSMessage{Type: "start", Mode: "primary"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	started := readUntil(t, conn, "started")
	if started.SessionID == "" {
		t.Fatalf("no session id in started frame")
	}
	if mgr.Count() != 1 {
		t.Fatalf("manager count=%d", mgr.Count())
	}

	// Trainee speech produces a state push once the throttle allows a check.
	_ = conn.WriteJSON(sessionWSMessage{Type: "transcript", Role: trainer.RoleTrainee, Text: "hey thanks for taking my call"})
	state := readUntil(t, conn, "state")
	if state.State == nil || state.State.Gate.CurrentGate != 2 {
		t.Fatalf("expected gate advance in state frame: %+v", state.State)
	}

	// Pillar updates flow into the sales-process machine and push state.
	_ = conn.WriteJSON(sessionWSMessage{Type: "pillar", Pillar: "motivation"})
	state = readUntil(t, conn, "state")
	if !state.State.Flow.Pillars["motivation"] {
		t.Fatalf("pillar not reflected: %+v", state.State.Flow)
	}

	// Out-of-order flow call comes back as a typed error frame.
	_ = conn.WriteJSON(sessionWSMessage{Type: "underwriting_complete"})
	errFrame := readUntil(t, conn, "error")
	if !strings.Contains(errFrame.Error, "underwriting not ready") {
		t.Fatalf("unexpected refusal reason: %q", errFrame.Error)
	}

	_ = conn.WriteJSON(sessionWSMessage{Type: "end"})
	readUntil(t, conn, "ended")
	deadline := time.Now().Add(time.Second)
	for mgr.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if mgr.Count() != 0 {
		t.Fatalf("session not ended: count=%d", mgr.Count())
	}
}

func TestServe_UnknownModeRejected(t *testing.T) {
	h := NewHandler(testManager(), "")
	srv := httptest.NewServer(http.HandlerFunc(h.Serve))
	defer srv.Close()

	conn := dial(t, srv, nil)
	defer conn.Close()
	_ = conn.WriteJSON(sessionWSMessage{Type: "start", Mode: "freestyle"})
	errFrame := readUntil(t, conn, "error")
	if errFrame.Error == "" {
		t.Fatalf("expected error payload")
	}
}

func TestServe_AuthViaBearerHeader(t *testing.T) {
	h := NewHandler(testManager(), "sekret")
	srv := httptest.NewServer(http.HandlerFunc(h.Serve))
	defer srv.Close()

	header := http.Header{"Authorization": {"Bearer sekret"}}
	conn := dial(t, srv, header)
	defer conn.Close()
	_ = conn.WriteJSON(sessionWSMessage{Type: "start", Mode: "secondary"})
	readUntil(t, conn, "started")
}

func TestServe_AuthViaFirstFrame(t *testing.T) {
	h := NewHandler(testManager(), "sekret")
	srv := httptest.NewServer(http.HandlerFunc(h.Serve))
	defer srv.Close()

	conn := dial(t, srv, nil)
	defer conn.Close()
	_ = conn.WriteJSON(sessionWSMessage{Type: "auth", Password: "sekret"})
	_ = conn.WriteJSON(sessionWSMessage{Type: "start", Mode: "primary"})
	readUntil(t, conn, "started")
}

func TestServe_BadAuthRejected(t *testing.T) {
	h := NewHandler(testManager(), "sekret")
	srv := httptest.NewServer(http.HandlerFunc(h.Serve))
	defer srv.Close()

	conn := dial(t, srv, nil)
	defer conn.Close()
	_ = conn.WriteJSON(sessionWSMessage{Type: "auth", Password: "wrong"})
	errFrame := readUntil(t, conn, "error")
	if errFrame.Error != "unauthorized" {
		t.Fatalf("expected unauthorized, got %q", errFrame.Error)
	}
}

func TestServe_DisconnectEndsSession(t *testing.T) {
	mgr := testManager()
	h := NewHandler(mgr, "")
	srv := httptest.NewServer(http.HandlerFunc(h.Serve))
	defer srv.Close()

	conn := dial(t, srv, nil)
	_ = conn.WriteJSON(sessionWSMessage{Type: "start", Mode: "primary"})
	readUntil(t, conn, "started")
	conn.Close()

	deadline := time.Now().Add(time.Second)
	for mgr.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if mgr.Count() != 0 {
		t.Fatalf("session survived disconnect")
	}
}
