package storage

import (
	"context"
	"sync"
)

// MemoryKV keeps records in process memory. It is used by tests and by the
// CLI's throwaway "memory" driver.
type MemoryKV struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{records: make(map[string]Record)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Value = append([]byte(nil), rec.Value...)
	return rec, nil
}

func (m *MemoryKV) Put(_ context.Context, key string, value []byte, expect int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.records[key].Version != expect {
		return 0, ErrConflict
	}
	next := expect + 1
	m.records[key] = Record{Value: append([]byte(nil), value...), Version: next}
	return next, nil
}

// Set overwrites key unconditionally. Tests use it to plant raw payloads.
func (m *MemoryKV) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[key] = Record{Value: append([]byte(nil), value...), Version: m.records[key].Version + 1}
}
