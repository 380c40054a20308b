package storage

import (
	"context"
	"testing"

	"koipond/internal/model"
)

func TestMemoryStoreContract(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	exerciseStore(t, store)
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveGenome(context.Background(), testGenome("g")); err == nil {
		t.Fatal("expected error before init")
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	blob := []byte{1, 2, 3}
	if err := store.SaveCheckpoint(ctx, model.CheckpointRecord{ID: "c", RunID: "r", Blob: blob}); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	blob[0] = 9
	record, _, _ := store.GetCheckpoint(ctx, "c")
	if record.Blob[0] != 1 {
		t.Fatalf("stored blob aliases caller slice")
	}
	record.Blob[1] = 9
	again, _, _ := store.GetCheckpoint(ctx, "c")
	if again.Blob[1] != 2 {
		t.Fatalf("returned blob aliases stored slice")
	}

	genome := testGenome("g")
	if err := store.SaveGenome(ctx, genome); err != nil {
		t.Fatalf("save genome: %v", err)
	}
	genome.Synapses[0].Weight = -1
	loaded, _, _ := store.GetGenome(ctx, "g")
	if loaded.Synapses[0].Weight != 1.25 {
		t.Fatalf("stored genome aliases caller slices")
	}
}
