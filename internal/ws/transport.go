package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/chadiek/sales-trainer/internal/salesflow"
	"github.com/chadiek/sales-trainer/internal/trainer"
)

// sessionWSMessage is the signaling format between the browser trainer UI and
// the server. Client-to-server types: "auth", "start", "transcript",
// "pillar", "underwriting_complete", "reveal_offer", "price_agreed",
// "closing_complete", "end". Server-to-client: "started", "state", "hint",
// "ended", "error".
type sessionWSMessage struct {
	Type string `json:"type"`
	// auth
	Password string `json:"password,omitempty"`
	// start
	Mode string `json:"mode,omitempty"`
	// started
	SessionID string `json:"sessionId,omitempty"`
	// transcript
	Role string `json:"role,omitempty"`
	Text string `json:"text,omitempty"`
	// pillar
	Pillar    string `json:"pillar,omitempty"`
	Satisfied *bool  `json:"satisfied,omitempty"`
	// state / hint
	State *trainer.Update `json:"state,omitempty"`
	Gate  int             `json:"gate,omitempty"`
	Hint  string          `json:"hint,omitempty"`
	// error
	Error string `json:"error,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin for demo use; restrict in production
		return true
	},
}

// Handler serves one training session per websocket connection.
type Handler struct {
	Manager      *trainer.Manager
	AuthPassword string
}

func NewHandler(m *trainer.Manager, authPassword string) *Handler {
	return &Handler{Manager: m, AuthPassword: authPassword}
}

// safeConn serializes writes; state and hint frames arrive from scoring and
// timer goroutines concurrently with reply frames from the read loop.
type safeConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *safeConn) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *safeConn) writeError(err error) {
	_ = c.write(sessionWSMessage{Type: "error", Error: err.Error()})
}

// Serve upgrades to WebSocket and runs the session protocol:
// auth(optional) -> start -> transcript/pillar/flow messages... -> end.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	raw, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	conn := &safeConn{conn: raw}
	defer func() { _ = raw.Close() }()

	// Simple auth: Authorization: Bearer <pwd> or ?password=... or first message type=auth
	if h.AuthPassword != "" {
		if !checkAuthHeaderOrQuery(r, h.AuthPassword) {
			mt, data, rerr := raw.ReadMessage()
			if rerr != nil || mt != websocket.TextMessage {
				conn.writeError(fmt.Errorf("auth required"))
				return
			}
			var m sessionWSMessage
			if jerr := json.Unmarshal(data, &m); jerr != nil || strings.ToLower(m.Type) != "auth" || m.Password != h.AuthPassword {
				conn.writeError(fmt.Errorf("unauthorized"))
				return
			}
		}
	}

	// Expect a start message next.
	var mode string
	for {
		mt, data, rerr := raw.ReadMessage()
		if rerr != nil {
			log.Printf("ws read error before start: %v", rerr)
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var m sessionWSMessage
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		if strings.ToLower(m.Type) == "start" {
			mode = m.Mode
			break
		}
		if strings.ToLower(m.Type) == "end" {
			return
		}
	}

	sess, err := h.Manager.Create(mode, trainer.Hooks{
		OnState: func(u trainer.Update) {
			up := u
			_ = conn.write(sessionWSMessage{Type: "state", State: &up})
		},
		OnHint: func(gate int, msg string) {
			_ = conn.write(sessionWSMessage{Type: "hint", Gate: gate, Hint: msg})
		},
	})
	if err != nil {
		conn.writeError(err)
		return
	}
	defer func() { _ = h.Manager.End(sess.ID()) }()

	if err := conn.write(sessionWSMessage{Type: "started", SessionID: sess.ID(), Mode: sess.Mode()}); err != nil {
		return
	}
	log.Printf("ws session %s started (mode=%s)", sess.ID(), sess.Mode())

	for {
		_, data, rerr := raw.ReadMessage()
		if rerr != nil {
			// Connection gone; the deferred End cancels all session timers.
			return
		}
		var m sessionWSMessage
		if json.Unmarshal(data, &m) != nil {
			continue
		}
		if done := h.dispatch(conn, sess, m); done {
			return
		}
	}
}

// dispatch handles one client frame. Returns true when the session ended.
func (h *Handler) dispatch(conn *safeConn, sess *trainer.Session, m sessionWSMessage) bool {
	switch strings.ToLower(m.Type) {
	case "transcript":
		sess.OnTranscript(trainer.TranscriptEvent{Role: m.Role, Text: m.Text})
	case "pillar":
		satisfied := true
		if m.Satisfied != nil {
			satisfied = *m.Satisfied
		}
		if err := sess.Flow().UpdatePillar(salesflow.Pillar(m.Pillar), satisfied); err != nil {
			conn.writeError(err)
			return false
		}
		sess.PushState()
	case "underwriting_complete":
		if err := sess.Flow().CompleteUnderwriting(); err != nil {
			conn.writeError(err)
			return false
		}
		sess.PushState()
	case "reveal_offer":
		if err := sess.Flow().RevealOffer(); err != nil {
			conn.writeError(err)
			return false
		}
		sess.PushState()
	case "price_agreed":
		if err := sess.Flow().AgreeToPrice(); err != nil {
			conn.writeError(err)
			return false
		}
		sess.PushState()
	case "closing_complete":
		sess.Flow().CompleteClosing()
		sess.PushState()
	case "end":
		_ = conn.write(sessionWSMessage{Type: "ended", SessionID: sess.ID()})
		return true
	}
	return false
}

func checkAuthHeaderOrQuery(r *http.Request, password string) bool {
	if r == nil || password == "" {
		return false
	}
	if q := r.URL.Query().Get("password"); q != "" && q == password {
		return true
	}
	ah := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		tok := strings.TrimSpace(ah[len("Bearer "):])
		if tok == password {
			return true
		}
	}
	if x := r.Header.Get("X-Auth-Token"); x != "" && x == password {
		return true
	}
	return false
}
