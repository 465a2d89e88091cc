package session

import (
	"context"
	"strings"
	"sync"
)

// Session is the authenticated shopper the checkout acts for.
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
}

func (s Session) normalized() Session {
	s.Token = strings.TrimSpace(s.Token)
	s.UserID = strings.TrimSpace(s.UserID)
	s.Email = strings.TrimSpace(s.Email)
	return s
}

// Store persists the current session between runs.
type Store interface {
	// Load returns nil and no error when nothing is stored.
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the session in process.
type MemoryStore struct {
	mu      sync.Mutex
	current *Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, nil
	}
	out := *m.current
	return &out, nil
}

func (m *MemoryStore) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &s
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return nil
}
