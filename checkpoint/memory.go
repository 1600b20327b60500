package checkpoint

import (
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/varstate/state"
)

type memoryStore struct {
	mu    sync.RWMutex
	snaps map[string]*state.Snapshot
}

// NewMemoryStore creates a Store backed by process memory. Checkpoints are
// lost when the process exits; suitable for tests and single-run recovery.
func NewMemoryStore() Store {
	return &memoryStore{snaps: make(map[string]*state.Snapshot)}
}

func (m *memoryStore) Save(snap *state.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.SessionID] = snap.Clone()
	return nil
}

func (m *memoryStore) Load(sessionID string) (*state.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, exists := m.snaps[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return snap.Clone(), nil
}

func (m *memoryStore) Delete(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.snaps, sessionID)
	return nil
}

func (m *memoryStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.snaps))
	for id := range m.snaps {
		ids = append(ids, id)
	}
	return ids, nil
}
