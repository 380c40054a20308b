package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/zap"

	"koipond/internal/koi"
	"koipond/internal/model"
)

var ErrNotInitialized = errors.New("leaderboard is not initialized")

// Backend persists species records.
type Backend interface {
	Load(ctx context.Context) ([]model.SpeciesRecord, error)
	Put(ctx context.Context, record model.SpeciesRecord) error
	Clear(ctx context.Context) error
}

// Registry tracks the best koi of each species across a run. It is created
// per run and must be initialized before use.
type Registry struct {
	backend Backend
	log     *zap.Logger

	mu          sync.RWMutex
	rng         *rand.Rand
	records     map[int]model.SpeciesRecord
	initialized bool
}

func NewRegistry(backend Backend, seed int64, logger *zap.Logger) *Registry {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		backend: backend,
		log:     logger,
		rng:     rand.New(rand.NewSource(seed)),
		records: make(map[int]model.SpeciesRecord),
	}
}

// Initialize loads existing records from the backend.
func (r *Registry) Initialize(ctx context.Context) error {
	records, err := r.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load leaderboard: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[int]model.SpeciesRecord, len(records))
	for _, rec := range records {
		r.records[rec.SpeciesID] = rec
	}
	r.initialized = true
	return nil
}

// Reset drops every record and returns the registry to its uninitialized
// state.
func (r *Registry) Reset(ctx context.Context) error {
	if err := r.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear leaderboard: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[int]model.SpeciesRecord)
	r.initialized = false
	return nil
}

// Record notes the best koi of a generation for its species. A species keeps
// the scientific name and first generation it was first recorded with. The
// record only changes once the backend has stored it.
func (r *Registry) Record(ctx context.Context, speciesID int, agent model.AgentSnapshot, fitness float64, generation int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return ErrNotInitialized
	}
	rec, ok := r.records[speciesID]
	if !ok {
		rec = model.SpeciesRecord{
			SpeciesID:       speciesID,
			ScientificName:  koi.ScientificName(r.rng),
			FirstGeneration: generation,
			HighestFitness:  fitness,
		}
	}
	if fitness > rec.HighestFitness {
		rec.HighestFitness = fitness
	}
	rec.LastGeneration = generation
	rec.Size = agent.Radius * 2
	rec.ColorKey = agent.ColorKey
	rec.History = append(append([]model.GenerationPoint(nil), rec.History...), model.GenerationPoint{Generation: generation, Fitness: fitness})

	if err := r.backend.Put(ctx, copyRecord(rec)); err != nil {
		return fmt.Errorf("persist species %d: %w", speciesID, err)
	}
	r.records[speciesID] = rec
	r.log.Debug("species recorded",
		zap.Int("species", speciesID),
		zap.String("name", rec.ScientificName),
		zap.Float64("fitness", fitness),
		zap.Int("generation", generation),
	)
	return nil
}

func (r *Registry) Get(speciesID int) (model.SpeciesRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[speciesID]
	if !ok {
		return model.SpeciesRecord{}, false
	}
	return copyRecord(rec), true
}

// Records returns every record ordered by species id.
func (r *Registry) Records() []model.SpeciesRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.SpeciesRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpeciesID < out[j].SpeciesID })
	return out
}

// Top returns the n species with the highest fitness, best first.
func (r *Registry) Top(n int) []model.SpeciesRecord {
	return Top(r.Records(), n)
}

// Top sorts records by highest fitness, best first, breaking ties by species
// id, and keeps the first n.
func Top(records []model.SpeciesRecord, n int) []model.SpeciesRecord {
	out := append(make([]model.SpeciesRecord, 0, len(records)), records...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HighestFitness != out[j].HighestFitness {
			return out[i].HighestFitness > out[j].HighestFitness
		}
		return out[i].SpeciesID < out[j].SpeciesID
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func copyRecord(rec model.SpeciesRecord) model.SpeciesRecord {
	rec.History = append([]model.GenerationPoint(nil), rec.History...)
	return rec
}
