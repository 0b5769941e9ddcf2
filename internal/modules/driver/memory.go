package driver

import (
	"context"
	"sort"
	"sync"

	"lastmile/internal/types"
)

// MemoryDirectory is an in-process directory used by the memory store backend
// and by tests.
type MemoryDirectory struct {
	mu      sync.RWMutex
	drivers map[types.ID]Driver
}

func NewMemoryDirectory(drivers ...Driver) *MemoryDirectory {
	m := &MemoryDirectory{drivers: make(map[types.ID]Driver, len(drivers))}
	for _, d := range drivers {
		m.drivers[d.ID] = d
	}
	return m
}

func (m *MemoryDirectory) Put(d Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = d
}

func (m *MemoryDirectory) Get(_ context.Context, id types.ID) (Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return Driver{}, ErrNotFound
	}
	return d, nil
}

func (m *MemoryDirectory) List(_ context.Context, f Filter) ([]Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		if f.Match(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
