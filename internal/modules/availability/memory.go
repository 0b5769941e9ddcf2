package availability

import (
	"context"
	"sync"
	"time"

	"lastmile/internal/types"
)

// MemorySource holds availability rows in process.
type MemorySource struct {
	mu   sync.RWMutex
	rows []Row
}

func NewMemorySource(rows ...Row) *MemorySource {
	return &MemorySource{rows: rows}
}

func (m *MemorySource) Add(rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
}

func (m *MemorySource) List(_ context.Context, from, to time.Time) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	from, to = types.Day(from), types.Day(to)
	var out []Row
	for _, r := range m.rows {
		d := types.Day(r.Date)
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
