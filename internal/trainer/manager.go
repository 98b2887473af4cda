package trainer

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/chadiek/sales-trainer/internal/script"
)

var (
	ErrSessionNotFound = errors.New("trainer: session not found")
	ErrUnknownMode     = errors.New("trainer: unknown script mode")
)

// Manager is the uuid-keyed registry of live sessions.
type Manager struct {
	scorer Scorer
	store  SummaryStore
	cfg    Config

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(scorer Scorer, store SummaryStore, cfg Config) *Manager {
	return &Manager{
		scorer:   scorer,
		store:    store,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session for the given script mode.
func (m *Manager) Create(mode string, hooks Hooks) (*Session, error) {
	switch mode {
	case script.ModePrimary, script.ModeSecondary:
	default:
		return nil, ErrUnknownMode
	}
	s := NewSession(uuid.NewString(), mode, m.scorer, m.store, hooks, m.cfg)
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s, nil
}

// Get looks up a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// End tears down one session and removes it from the registry.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.End()
	return nil
}

// EndAll tears down every live session; used on server shutdown.
func (m *Manager) EndAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.End()
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
