package pricing

import (
	"context"
	"sort"
	"sync"
)

// MemoryCatalog keeps every version of every key in process.
type MemoryCatalog struct {
	mu      sync.RWMutex
	entries map[Key][]Entry
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{entries: make(map[Key][]Entry)}
}

func (m *MemoryCatalog) ActiveEntry(_ context.Context, key Key) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries[key] {
		if e.Active {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (m *MemoryCatalog) ListActive(_ context.Context, station string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for k, versions := range m.entries {
		if k.Station != station {
			continue
		}
		for _, e := range versions {
			if e.Active {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ServiceType != out[j].ServiceType {
			return out[i].ServiceType < out[j].ServiceType
		}
		return out[i].Ownership < out[j].Ownership
	})
	return out, nil
}

func (m *MemoryCatalog) History(_ context.Context, key Key) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.entries[key]
	out := make([]Entry, len(versions))
	for i, e := range versions {
		out[len(versions)-1-i] = e
	}
	return out, nil
}

func (m *MemoryCatalog) Publish(_ context.Context, e Entry) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.entries[e.Key]
	for i := range versions {
		if versions[i].Active {
			to := e.EffectiveFrom
			versions[i].Active = false
			versions[i].EffectiveTo = &to
		}
	}
	e.Version = len(versions) + 1
	e.Active = true
	e.EffectiveTo = nil
	m.entries[e.Key] = append(versions, e)
	return e, nil
}
