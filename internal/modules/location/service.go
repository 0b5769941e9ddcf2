// README: Location directory consumed by route creation (station lookup, rescue distance origin).
package location

import (
	"context"
	"sync"

	"lastmile/internal/types"
)

type Directory interface {
	Get(ctx context.Context, id types.ID) (Location, error)
}

// MemoryDirectory is the in-process directory for the memory backend and tests.
type MemoryDirectory struct {
	mu   sync.RWMutex
	locs map[types.ID]Location
}

func NewMemoryDirectory(locs ...Location) *MemoryDirectory {
	m := &MemoryDirectory{locs: make(map[types.ID]Location, len(locs))}
	for _, l := range locs {
		m.locs[l.ID] = l
	}
	return m
}

func (m *MemoryDirectory) Put(l Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locs[l.ID] = l
}

func (m *MemoryDirectory) Get(_ context.Context, id types.ID) (Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.locs[id]
	if !ok {
		return Location{}, ErrNotFound
	}
	return l, nil
}
