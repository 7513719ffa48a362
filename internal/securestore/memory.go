package securestore

import "sync"

// memoryStore is a process-local Store used in tests and for callers that
// want fast-unlock artifacts without touching the OS keychain.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemory returns an in-memory Store.
func NewMemory() Store {
	return &memoryStore{entries: make(map[string][]byte)}
}

func (m *memoryStore) Available() bool { return true }

func (m *memoryStore) Write(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.entries[name] = cp
	return nil
}

func (m *memoryStore) Read(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *memoryStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
	return nil
}
