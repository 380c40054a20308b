package leaderboard

import (
	"context"
	"sync"

	"koipond/internal/model"
)

type MemoryBackend struct {
	mu      sync.RWMutex
	records map[int]model.SpeciesRecord
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[int]model.SpeciesRecord)}
}

func (m *MemoryBackend) Load(context.Context) ([]model.SpeciesRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.SpeciesRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, copyRecord(rec))
	}
	return out, nil
}

func (m *MemoryBackend) Put(_ context.Context, record model.SpeciesRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.SpeciesID] = copyRecord(record)
	return nil
}

func (m *MemoryBackend) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[int]model.SpeciesRecord)
	return nil
}
