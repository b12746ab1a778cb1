package credential

import (
	"context"
	"strings"
	"sync"
)

// Memory is a mutex-guarded in-memory Store. It backs tests and
// single-node development; production deployments use Postgres.
type Memory struct {
	mu         sync.RWMutex
	byID       map[string]Record
	byEmail    map[string]string
	byUsername map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		byID:       make(map[string]Record),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func (m *Memory) GetByID(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *Memory) GetByEmail(_ context.Context, email string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[normalize(email)]
	if !ok {
		return nil, ErrNotFound
	}
	rec := m.byID[id]
	return &rec, nil
}

func (m *Memory) GetByUsername(_ context.Context, username string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byUsername[normalize(username)]
	if !ok {
		return nil, ErrNotFound
	}
	rec := m.byID[id]
	return &rec, nil
}

func (m *Memory) Create(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := normalize(rec.Email)
	username := normalize(rec.Username)

	if _, taken := m.byEmail[email]; taken {
		return ErrDuplicate
	}
	if _, taken := m.byUsername[username]; taken {
		return ErrDuplicate
	}

	m.byID[rec.ID] = *rec
	m.byEmail[email] = rec.ID
	m.byUsername[username] = rec.ID
	return nil
}

func (m *Memory) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.PasswordHash = hash
	m.byID[id] = rec
	return nil
}

func (m *Memory) MarkVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.IsVerified = true
	m.byID[id] = rec
	return nil
}

// SetActive flips the active flag; used by tests to model account
// deactivation happening in the external directory.
func (m *Memory) SetActive(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return
	}
	rec.IsActive = active
	m.byID[id] = rec
}

// SetFlags adjusts the premium flag and level; used by tests to drive
// the authorization middleware.
func (m *Memory) SetFlags(id string, premium bool, level int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return
	}
	rec.IsPremium = premium
	rec.Level = level
	m.byID[id] = rec
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
