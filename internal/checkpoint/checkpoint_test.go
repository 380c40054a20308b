package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"koipond/internal/metrics"
	"koipond/internal/model"
	"koipond/internal/storage"
)

type sprite struct{ name string }

func (s *sprite) Release() error { return nil }

// fish stands in for a live koi: unexported state and a display handle.
type fish struct {
	id       string
	resource model.Resource
}

func (f *fish) OccupantID() string { return f.id }

func (f *fish) DetachResource() model.Resource {
	r := f.resource
	f.resource = nil
	return r
}

func (f *fish) AttachResource(r model.Resource) { f.resource = r }

type population struct {
	generation int
	genomes    []*model.Genome
	species    model.SpeciesSet
}

func (p *population) Generation() int           { return p.generation }
func (p *population) Genomes() []*model.Genome  { return p.genomes }
func (p *population) Species() model.SpeciesSet { return p.species }
func (p *population) Seed() int64               { return 42 }
func (p *population) NextGenomeKey() int        { return 17 }

func testGenome(id string, weight float64) *model.Genome {
	return &model.Genome{
		VersionedRecord: storage.CurrentVersion(),
		ID:              id,
		Neurons: []model.Neuron{
			{ID: "in-00", Activation: "identity"},
			{ID: "out-0", Activation: "tanh", Bias: 0.1},
		},
		Synapses:  []model.Synapse{{ID: "in-00->out-0", From: "in-00", To: "out-0", Weight: weight, Enabled: true}},
		InputIDs:  []string{"in-00"},
		OutputIDs: []string{"out-0"},
		Fitness:   weight * 10,
	}
}

// livePopulation returns genomes bound to fish that each hold a sprite.
func livePopulation(n int) (*population, []*fish, []*sprite) {
	p := &population{
		generation: 20,
		species: model.SpeciesSet{
			Threshold:       1.2,
			NextID:          3,
			Representatives: map[int]string{1: "g0", 2: "g1"},
			Members:         map[int][]string{1: {"g0", "g2"}, 2: {"g1"}},
			ByGenome:        map[string]int{"g0": 1, "g1": 2, "g2": 1},
			Created:         map[int]int{1: 0, 2: 4},
		},
	}
	var fishes []*fish
	var sprites []*sprite
	for i := 0; i < n; i++ {
		g := testGenome(fmt.Sprintf("g%d", i), float64(i)+0.5)
		s := &sprite{name: g.ID}
		f := &fish{id: g.ID, resource: s}
		g.Attach(f)
		p.genomes = append(p.genomes, g)
		fishes = append(fishes, f)
		sprites = append(sprites, s)
	}
	return p, fishes, sprites
}

func assertLive(t *testing.T, p *population, fishes []*fish, sprites []*sprite) {
	t.Helper()
	for i, g := range p.genomes {
		if g.Occupant == nil {
			t.Fatalf("genome %s lost its occupant", g.ID)
		}
		if g.Occupant != model.Occupant(fishes[i]) {
			t.Fatalf("genome %s is bound to a different occupant", g.ID)
		}
		if fishes[i].resource != model.Resource(sprites[i]) {
			t.Fatalf("occupant of %s lost its display handle", g.ID)
		}
	}
}

func TestPrepareRestoreRoundTripKeepsIdentity(t *testing.T) {
	p, fishes, sprites := livePopulation(3)
	c := NewCoordinator()

	if err := c.Prepare(p.genomes); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	for i, g := range p.genomes {
		if g.Occupant != nil || fishes[i].resource != nil {
			t.Fatalf("genome %s still attached after prepare", g.ID)
		}
	}
	if c.Pending() != 3 {
		t.Fatalf("pending: got %d want 3", c.Pending())
	}

	c.Restore()
	assertLive(t, p, fishes, sprites)
	if c.Pending() != 0 {
		t.Fatalf("pending after restore: %d", c.Pending())
	}

	c.Restore()
	assertLive(t, p, fishes, sprites)
}

func TestPrepareRejectsOverlap(t *testing.T) {
	p, fishes, sprites := livePopulation(2)
	c := NewCoordinator()
	if err := c.Prepare(p.genomes); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	if err := c.Prepare(p.genomes); !errors.Is(err, ErrSnapshotInProgress) {
		t.Fatalf("expected ErrSnapshotInProgress, got %v", err)
	}

	c.Restore()
	assertLive(t, p, fishes, sprites)
}

func TestPrepareDuplicateIDsLeavesNothingDetached(t *testing.T) {
	p, fishes, sprites := livePopulation(2)
	c := NewCoordinator()

	if err := c.Prepare(append(p.genomes, p.genomes[0])); err == nil {
		t.Fatalf("expected duplicate ids to be rejected")
	}
	if c.Pending() != 0 {
		t.Fatalf("pending after a rejected prepare: %d", c.Pending())
	}
	assertLive(t, p, fishes, sprites)
	if err := c.Prepare(p.genomes); err != nil {
		t.Fatalf("prepare after rejection: %v", err)
	}
	c.Restore()
}

func TestWithDetachedRestoresOnErrorAndPanic(t *testing.T) {
	p, fishes, sprites := livePopulation(2)
	c := NewCoordinator()
	boom := errors.New("disk full")

	err := c.WithDetached(p.genomes, func() error {
		for _, g := range p.genomes {
			if g.Occupant != nil {
				t.Errorf("genome %s attached inside WithDetached", g.ID)
			}
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the callback error, got %v", err)
	}
	assertLive(t, p, fishes, sprites)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected the panic to propagate")
			}
		}()
		_ = c.WithDetached(p.genomes, func() error { panic("encoder crashed") })
	}()
	assertLive(t, p, fishes, sprites)
	if c.Pending() != 0 {
		t.Fatalf("pending after panic: %d", c.Pending())
	}
}

func TestEncodingAttachedGenomeFails(t *testing.T) {
	p, _, _ := livePopulation(1)
	if _, err := EncodeGenome(*p.genomes[0]); err == nil {
		t.Fatalf("expected encoding an attached genome to fail")
	}
}

func TestCaptureIsIsolatedAndCycleFree(t *testing.T) {
	p, fishes, sprites := livePopulation(3)
	c := NewCoordinator()

	snap, err := c.Capture(p, "run-1", "cp-1")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	assertLive(t, p, fishes, sprites)

	if snap.Generation != 20 || snap.Seed != 42 || snap.NextGenomeKey != 17 {
		t.Fatalf("snapshot header: generation=%d seed=%d next key=%d", snap.Generation, snap.Seed, snap.NextGenomeKey)
	}
	if diff := cmp.Diff([]string{"g0", "g1", "g2"}, snap.Order); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
	for id, g := range snap.Population {
		if g.Occupant != nil {
			t.Fatalf("captured genome %s carries an occupant", id)
		}
	}

	snap.Population["g0"].Synapses[0].Weight = 99
	snap.Species.Members[1][0] = "changed"
	if w := p.genomes[0].Synapses[0].Weight; w != 0.5 {
		t.Fatalf("live weight changed to %v", w)
	}
	if m := p.species.Members[1][0]; m != "g0" {
		t.Fatalf("live species member changed to %s", m)
	}
}

func TestSnapshotBlobRoundTrip(t *testing.T) {
	p, _, _ := livePopulation(3)
	snap, err := NewCoordinator().Capture(p, "run-1", "cp-1")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	blob, err := Encode(snap)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if diff := cmp.Diff(snap, got); diff != "" {
		t.Fatalf("snapshot round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsGarbageAndVersion(t *testing.T) {
	if _, err := Decode([]byte("not a checkpoint")); err == nil {
		t.Fatalf("expected garbage to be rejected")
	}

	blob, err := Encode(model.Snapshot{ID: "old", VersionedRecord: model.VersionedRecord{SchemaVersion: 99, CodecVersion: 1}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(blob); !errors.Is(err, storage.ErrVersionMismatch) {
		t.Fatalf("expected a version mismatch, got %v", err)
	}
}

func TestCheckpointerWritesOnInterval(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	m := metrics.New()
	cp := NewCheckpointer(Config{RunID: "run-1", Interval: 10, Dir: dir, Store: store, Metrics: m}, nil)

	p, fishes, sprites := livePopulation(2)
	record, err := cp.Save(context.Background(), p)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	assertLive(t, p, fishes, sprites)

	snap, err := LoadFile(filepath.Join(dir, "koipond-checkpoint-20"))
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if snap.ID != record.ID || snap.RunID != "run-1" {
		t.Fatalf("file holds checkpoint %s of run %s", snap.ID, snap.RunID)
	}

	stored, ok, err := store.LatestCheckpoint(context.Background(), "run-1")
	if err != nil || !ok {
		t.Fatalf("latest checkpoint: ok=%v err=%v", ok, err)
	}
	if string(stored.Blob) != string(record.Blob) {
		t.Fatalf("stored blob differs from the written one")
	}

	written := cp.Written()
	if len(written) != 1 || written[0].Blob != nil {
		t.Fatalf("expected one written record without its blob, got %+v", written)
	}
}

type failingStore struct{ storage.Store }

func (failingStore) SaveCheckpoint(context.Context, model.CheckpointRecord) error {
	return errors.New("store offline")
}

func TestCheckpointerFailureIsLoggedAndRestores(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	cp := NewCheckpointer(Config{RunID: "run-1", Interval: 1, Store: failingStore{}, Logger: zap.New(core)}, nil)
	p, fishes, sprites := livePopulation(2)

	_, err := cp.Save(context.Background(), p)
	var serr *SerializationError
	if !errors.As(err, &serr) {
		t.Fatalf("expected a SerializationError, got %v", err)
	}
	if serr.Generation != 20 {
		t.Fatalf("error generation: got %d want 20", serr.Generation)
	}
	if n := logs.FilterMessage("checkpoint skipped").Len(); n != 1 {
		t.Fatalf("expected one skipped log, got %d", n)
	}
	assertLive(t, p, fishes, sprites)
	if cp.Coordinator().Pending() != 0 || len(cp.Written()) != 0 {
		t.Fatalf("pending=%d written=%d after a failed save", cp.Coordinator().Pending(), len(cp.Written()))
	}
}

func TestSaveBestDetachesSingleGenome(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	cp := NewCheckpointer(Config{Store: store}, nil)
	p, fishes, sprites := livePopulation(1)
	path := filepath.Join(dir, "best", "best_koi.gob")

	if err := cp.SaveBest(context.Background(), path, p.genomes[0]); err != nil {
		t.Fatalf("save best: %v", err)
	}
	assertLive(t, p, fishes, sprites)

	got, err := LoadGenomeFile(path)
	if err != nil {
		t.Fatalf("load genome: %v", err)
	}
	if got.ID != "g0" || got.Occupant != nil {
		t.Fatalf("loaded genome %s with occupant %v", got.ID, got.Occupant)
	}

	if _, ok, err := store.GetGenome(context.Background(), "g0"); err != nil || !ok {
		t.Fatalf("stored genome: ok=%v err=%v", ok, err)
	}
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob")
	if err := WriteFile(path, []byte("one")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFile(path, []byte("two")); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "two" {
		t.Fatalf("content: got %q want two", data)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, got %d entries", len(entries))
	}
}
