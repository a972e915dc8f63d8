package identity

import (
	"context"
	"sync"
)

// MemoryKV is an in-memory KVStore. Its contents die with the process.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) GetOrCreate(_ context.Context, key, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	m.data[key] = value
	return value, nil
}

// StaticCredential is a CredentialSource holding a fixed credential; an
// empty string means logged out. Safe for concurrent use.
type StaticCredential struct {
	mu    sync.RWMutex
	value string
}

// Set replaces the credential. Set("") logs out.
func (s *StaticCredential) Set(credential string) {
	s.mu.Lock()
	s.value = credential
	s.mu.Unlock()
}

func (s *StaticCredential) Credential(context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.value != "", nil
}
