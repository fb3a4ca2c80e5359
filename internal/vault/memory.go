package vault

import (
	"context"
	"sync"

	"futeurvault.org/internal/ids"
)

// Memory implements Store with in-process concurrency safety. Used by tests
// and DSN-less development runs; production uses the PostgreSQL store.
type Memory struct {
	mu          sync.RWMutex
	credentials map[string]*Credential
	grants      map[string]*ShareGrant
	pairs       map[pairKey]string // (credential, grantee) -> grant id
}

type pairKey struct {
	credentialID string
	granteeID    string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		credentials: make(map[string]*Credential),
		grants:      make(map[string]*ShareGrant),
		pairs:       make(map[pairKey]string),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) CreateCredential(ctx context.Context, c *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	cp := *c
	m.credentials[c.ID] = &cp
	return nil
}

func (m *Memory) Credential(ctx context.Context, id string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credentials[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyCredential(c)
	return &cp, nil
}

func (m *Memory) UpdateCredential(ctx context.Context, c *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.credentials[c.ID]; !ok {
		return ErrNotFound
	}
	cp := copyCredential(c)
	m.credentials[c.ID] = &cp
	return nil
}

func (m *Memory) DeleteCredential(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.credentials[id]; !ok {
		return ErrNotFound
	}
	delete(m.credentials, id)
	// cascade: drop every grant referencing the credential
	for gid, g := range m.grants {
		if g.CredentialID == id {
			delete(m.pairs, pairKey{g.CredentialID, g.GranteeID})
			delete(m.grants, gid)
		}
	}
	return nil
}

func (m *Memory) CredentialsByOwner(ctx context.Context, ownerID string) ([]*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Credential
	for _, c := range m.credentials {
		if c.OwnerID == ownerID {
			cp := copyCredential(c)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) CreateGrant(ctx context.Context, g *ShareGrant) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{g.CredentialID, g.GranteeID}
	if _, exists := m.pairs[key]; exists {
		return false, nil
	}
	if g.ID == "" {
		g.ID = ids.New()
	}
	cp := *g
	m.grants[g.ID] = &cp
	m.pairs[key] = g.ID
	return true, nil
}

func (m *Memory) Grant(ctx context.Context, id string) (*ShareGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *Memory) DeleteGrant(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.pairs, pairKey{g.CredentialID, g.GranteeID})
	delete(m.grants, id)
	return nil
}

func (m *Memory) GrantsForCredential(ctx context.Context, credentialID string) ([]*ShareGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ShareGrant
	for _, g := range m.grants {
		if g.CredentialID == credentialID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) GrantsForGrantee(ctx context.Context, granteeID string) ([]*ShareGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ShareGrant
	for _, g := range m.grants {
		if g.GranteeID == granteeID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func copyCredential(c *Credential) Credential {
	cp := *c
	cp.SecretUsername = append([]byte(nil), c.SecretUsername...)
	cp.SecretPassword = append([]byte(nil), c.SecretPassword...)
	return cp
}
