package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/codechallenge/network"
)

// Session is one player connection. Username is empty until the
// connection has authenticated.
type Session struct {
	ID        string
	Conn      network.Connection
	CreatedAt time.Time

	username   string
	lastActive time.Time
	mutex      sync.RWMutex
}

func NewSession(conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.NewString(),
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
	}
}

func (s *Session) Username() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.username
}

// Authenticated reports whether SetUsername has been called.
func (s *Session) Authenticated() bool {
	return s.Username() != ""
}

// SetUsername marks the session authenticated. It only takes effect once.
func (s *Session) SetUsername(username string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.username == "" {
		s.username = username
	}
}

// Touch records that the player just sent something.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) Send(tag string, body any) error {
	return s.Conn.Send(tag, body)
}

// CloseWithError makes a best-effort attempt to deliver an error message
// and then closes the connection.
func (s *Session) CloseWithError(reason string) error {
	_ = s.Conn.Send(network.TagError, network.ErrorBody{Reason: reason})
	return s.Conn.Close()
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

func (s *Session) GetID() string {
	return s.ID
}

// Manager tracks live sessions and which session currently speaks for each username.
type Manager struct {
	sessions map[string]*Session
	byUser   map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

// Bind makes session the current one for its username and returns the
// session it replaced, if any.
func (m *Manager) Bind(session *Session) (previous *Session) {
	username := session.Username()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	previous = m.byUser[username]
	if previous == session {
		previous = nil
	}
	m.byUser[username] = session
	return previous
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	delete(m.sessions, sessionID)
	if name := s.Username(); name != "" && m.byUser[name] == s {
		delete(m.byUser, name)
	}
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) GetByUsername(username string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.byUser[username]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every tracked connection.
func (m *Manager) CloseAll() {
	m.mutex.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mutex.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}
