package session

import (
	"sync"

	"github.com/datasage-io/datasage/internal/config"
	"github.com/datasage-io/datasage/internal/logger"
)

// DefaultID names the session used when a caller does not pick one.
const DefaultID = "default"

// Manager hands out independent sessions keyed by caller-chosen ids. The
// sessions share nothing; the manager only guards the id lookup, so work in
// one session never blocks another.
type Manager struct {
	cfg *config.Config
	log *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds an empty manager. Sessions are created lazily by Get.
func NewManager(cfg *config.Config, log *logger.Logger) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.New(nil)
	}
	return &Manager{cfg: cfg, log: log, sessions: make(map[string]*Session)}
}

// Get returns the session for id, creating it on first use. An empty id maps
// to DefaultID.
func (m *Manager) Get(id string) *Session {
	if id == "" {
		id = DefaultID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := New(m.cfg, m.log.With().Str("session", id).Logger())
	m.sessions[id] = s
	return s
}

// Remove closes and forgets the session for id. Unknown ids are a no-op.
func (m *Manager) Remove(id string) error {
	if id == "" {
		id = DefaultID
	}
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close()
}

// Close releases every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for id, s := range m.sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.sessions, id)
	}
	return firstErr
}
