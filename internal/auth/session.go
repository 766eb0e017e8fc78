package auth

import "sync"

// Session is the credential material attached to protected requests.
type Session struct {
	Token       string `json:"token"`
	DisplayName string `json:"display_name"`
}

// SessionStore persists the current session. Load returns nil when none is stored.
type SessionStore interface {
	Load() (*Session, error)
	Save(s Session) error
	Clear() error
}

// MemoryStore keeps the session for the process lifetime only.
type MemoryStore struct {
	mu sync.Mutex
	s  *Session
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s == nil {
		return nil, nil
	}
	cp := *m.s
	return &cp, nil
}

func (m *MemoryStore) Save(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = &s
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}
