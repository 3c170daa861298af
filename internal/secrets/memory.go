package secrets

import (
	"sync"

	"github.com/sheetvault/sheetvault/internal/errors"
)

// Memory is an in-memory secret store used in tests and environments
// without a keyring backend.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory creates a new in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Save(account string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]byte, len(blob))
	copy(cp, blob)
	m.entries[account] = cp
	return nil
}

func (m *Memory) Load(account string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.entries[account]
	if !ok {
		return nil, &errors.ErrSecretNotFound{Account: account}
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, nil
}

func (m *Memory) Delete(account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[account]; !ok {
		return &errors.ErrSecretNotFound{Account: account}
	}
	delete(m.entries, account)
	return nil
}

var _ Store = (*Memory)(nil)
