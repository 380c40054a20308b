package checkpoint

import (
	"errors"
	"fmt"
	"sync"

	"koipond/internal/genotype"
	"koipond/internal/model"
	"koipond/internal/storage"
)

var ErrSnapshotInProgress = errors.New("a snapshot is already prepared")

// Source is the live population a snapshot is taken from.
type Source interface {
	Generation() int
	Genomes() []*model.Genome
	Species() model.SpeciesSet
	Seed() int64
	NextGenomeKey() int
}

type detached struct {
	genome   *model.Genome
	occupant model.Occupant
	resource model.Resource
}

// Coordinator lifts live back-references off genomes for the duration of a
// serialization and puts them back afterwards. At most one preparation is
// outstanding at a time.
type Coordinator struct {
	mu       sync.Mutex
	prepared bool
	table    map[string]detached
}

func NewCoordinator() *Coordinator {
	return &Coordinator{table: make(map[string]detached)}
}

// Prepare detaches every genome's occupant, and the occupant's resource
// handle, into the side table keyed by genome id. On error nothing stays
// detached.
func (c *Coordinator) Prepare(genomes []*model.Genome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.prepared {
		return ErrSnapshotInProgress
	}
	for _, g := range genomes {
		if g == nil {
			continue
		}
		if _, dup := c.table[g.ID]; dup {
			c.restoreLocked()
			return fmt.Errorf("prepare snapshot: duplicate genome id %s", g.ID)
		}
		entry := detached{genome: g, occupant: g.Detach()}
		if entry.occupant != nil {
			entry.resource = entry.occupant.DetachResource()
		}
		c.table[g.ID] = entry
	}
	c.prepared = true
	return nil
}

// Restore reattaches everything Prepare detached and empties the side table.
// It is safe to call when nothing is prepared.
func (c *Coordinator) Restore() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restoreLocked()
}

func (c *Coordinator) restoreLocked() {
	for id, entry := range c.table {
		if entry.occupant != nil {
			if entry.resource != nil {
				entry.occupant.AttachResource(entry.resource)
			}
			entry.genome.Attach(entry.occupant)
		}
		delete(c.table, id)
	}
	c.prepared = false
}

// Pending reports how many genomes are currently detached.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.table)
}

// WithDetached runs fn between Prepare and Restore. Restore runs even when fn
// fails or panics.
func (c *Coordinator) WithDetached(genomes []*model.Genome, fn func() error) error {
	if err := c.Prepare(genomes); err != nil {
		return err
	}
	defer c.Restore()
	return fn()
}

// Capture takes an isolated, cycle-free copy of the population. The live
// genomes are left exactly as they were found.
func (c *Coordinator) Capture(src Source, runID, id string) (model.Snapshot, error) {
	genomes := src.Genomes()
	var snap model.Snapshot
	err := c.WithDetached(genomes, func() error {
		snap = model.Snapshot{
			VersionedRecord: storage.CurrentVersion(),
			ID:              id,
			RunID:           runID,
			Generation:      src.Generation(),
			Population:      make(map[string]model.Genome, len(genomes)),
			Order:           make([]string, 0, len(genomes)),
			Species:         genotype.CloneSpeciesSet(src.Species()),
			Seed:            src.Seed(),
			NextGenomeKey:   src.NextGenomeKey(),
		}
		for _, g := range genomes {
			clone := genotype.CloneGenome(*g)
			clone.Occupant = nil
			snap.Population[g.ID] = clone
			snap.Order = append(snap.Order, g.ID)
		}
		return nil
	})
	return snap, err
}
