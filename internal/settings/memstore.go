package settings

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemStore is an in-memory [Store]. The zero value is ready to use.
type MemStore struct {
	mu    sync.RWMutex
	users map[string]VoiceSettings
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Get implements [Store].
func (m *MemStore) Get(_ context.Context, userID string) (VoiceSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.users[userID]
	if !ok {
		return Defaults(), nil
	}
	return clone(s), nil
}

// Update implements [Store].
func (m *MemStore) Update(_ context.Context, userID string, p Patch) (VoiceSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base, ok := m.users[userID]
	if !ok {
		base = Defaults()
	}
	next, err := Apply(base, p)
	if err != nil {
		return VoiceSettings{}, err
	}
	next.UpdatedAt = time.Now().UTC()
	m.put(userID, next)
	return clone(next), nil
}

// Reset implements [Store].
func (m *MemStore) Reset(_ context.Context, userID string) (VoiceSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := Defaults()
	d.UpdatedAt = time.Now().UTC()
	m.put(userID, d)
	return clone(d), nil
}

// put stores s. Must be called with m.mu held.
func (m *MemStore) put(userID string, s VoiceSettings) {
	if m.users == nil {
		m.users = make(map[string]VoiceSettings)
	}
	m.users[userID] = clone(s)
}

func clone(s VoiceSettings) VoiceSettings {
	s.CustomCommands = slices.Clone(s.CustomCommands)
	return s
}
