package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"koipond/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	checkpoints map[string]model.CheckpointRecord
	genomes     map[string]model.Genome
	diagnostics map[string][]model.GenerationDiagnostics
	species     map[string][]model.SpeciesRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.checkpoints = make(map[string]model.CheckpointRecord)
	s.genomes = make(map[string]model.Genome)
	s.diagnostics = make(map[string][]model.GenerationDiagnostics)
	s.species = make(map[string][]model.SpeciesRecord)
	return nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, record model.CheckpointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	record.Blob = append([]byte(nil), record.Blob...)
	s.checkpoints[record.ID] = record
	return nil
}

func (s *MemoryStore) GetCheckpoint(_ context.Context, id string) (model.CheckpointRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.checkpoints[id]
	if !ok {
		return model.CheckpointRecord{}, false, nil
	}
	record.Blob = append([]byte(nil), record.Blob...)
	return record, true, nil
}

func (s *MemoryStore) LatestCheckpoint(_ context.Context, runID string) (model.CheckpointRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest model.CheckpointRecord
	found := false
	for _, record := range s.checkpoints {
		if runID != "" && record.RunID != runID {
			continue
		}
		if !found || newerCheckpoint(record, latest) {
			latest = record
			found = true
		}
	}
	if !found {
		return model.CheckpointRecord{}, false, nil
	}
	latest.Blob = append([]byte(nil), latest.Blob...)
	return latest, true, nil
}

func (s *MemoryStore) ListCheckpoints(_ context.Context, runID string) ([]model.CheckpointRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.CheckpointRecord, 0, len(s.checkpoints))
	for _, record := range s.checkpoints {
		if runID != "" && record.RunID != runID {
			continue
		}
		record.Blob = nil
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Generation == out[j].Generation {
			return out[i].ID < out[j].ID
		}
		return out[i].Generation < out[j].Generation
	})
	return out, nil
}

func (s *MemoryStore) SaveGenome(_ context.Context, genome model.Genome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.genomes[genome.ID] = copyGenome(genome)
	return nil
}

func (s *MemoryStore) GetGenome(_ context.Context, id string) (model.Genome, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	genome, ok := s.genomes[id]
	if !ok {
		return model.Genome{}, false, nil
	}
	return copyGenome(genome), true, nil
}

func (s *MemoryStore) SaveGenerationDiagnostics(_ context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.diagnostics[runID] = append([]model.GenerationDiagnostics(nil), diagnostics...)
	return nil
}

func (s *MemoryStore) GetGenerationDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.GenerationDiagnostics(nil), diagnostics...), true, nil
}

func (s *MemoryStore) SaveSpeciesRecords(_ context.Context, runID string, records []model.SpeciesRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.species[runID] = copySpeciesRecords(records)
	return nil
}

func (s *MemoryStore) GetSpeciesRecords(_ context.Context, runID string) ([]model.SpeciesRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.species[runID]
	if !ok {
		return nil, false, nil
	}
	return copySpeciesRecords(records), true, nil
}

func newerCheckpoint(a, b model.CheckpointRecord) bool {
	if a.Generation != b.Generation {
		return a.Generation > b.Generation
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func copyGenome(g model.Genome) model.Genome {
	g.Occupant = nil
	g.Neurons = append([]model.Neuron(nil), g.Neurons...)
	g.Synapses = append([]model.Synapse(nil), g.Synapses...)
	g.InputIDs = append([]string(nil), g.InputIDs...)
	g.OutputIDs = append([]string(nil), g.OutputIDs...)
	return g
}

func copySpeciesRecords(records []model.SpeciesRecord) []model.SpeciesRecord {
	out := make([]model.SpeciesRecord, len(records))
	for i, record := range records {
		record.History = append([]model.GenerationPoint(nil), record.History...)
		out[i] = record
	}
	return out
}
