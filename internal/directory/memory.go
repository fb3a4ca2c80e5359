package directory

import (
	"context"
	"sync"
)

// Memory is an in-process Directory used by tests and DSN-less runs.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]Principal
	byEmail map[string]string
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]Principal),
		byEmail: make(map[string]string),
	}
}

var _ Directory = (*Memory)(nil)

// Add registers a principal. Existing entries with the same id are replaced.
func (m *Memory) Add(p Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byID[p.ID]; ok {
		delete(m.byEmail, old.Email)
	}
	m.byID[p.ID] = p
	m.byEmail[p.Email] = p.ID
}

func (m *Memory) ResolveByEmail(ctx context.Context, email string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (m *Memory) Lookup(ctx context.Context, id string) (Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byID[id]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) EmailsByIDs(ctx context.Context, principalIDs []string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(principalIDs))
	for _, id := range principalIDs {
		if p, ok := m.byID[id]; ok {
			out[id] = p.Email
		}
	}
	return out, nil
}
