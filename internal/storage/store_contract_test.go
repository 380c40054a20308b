package storage

import (
	"context"
	"testing"
	"time"

	"koipond/internal/model"
)

func testGenome(id string) model.Genome {
	return model.Genome{
		VersionedRecord: CurrentVersion(),
		ID:              id,
		Neurons: []model.Neuron{
			{ID: "in-00", Activation: "identity"},
			{ID: "out-0", Activation: "tanh", Bias: 0.5},
		},
		Synapses: []model.Synapse{
			{ID: "in-00->out-0", From: "in-00", To: "out-0", Weight: 1.25, Enabled: true},
		},
		InputIDs:  []string{"in-00"},
		OutputIDs: []string{"out-0"},
		Fitness:   42,
	}
}

// exerciseStore runs the behavior every Store backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, gen := range []int{10, 30, 20} {
		record := model.CheckpointRecord{
			VersionedRecord: CurrentVersion(),
			ID:              "run-a-" + string(rune('a'+i)),
			RunID:           "run-a",
			Generation:      gen,
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
			Blob:            []byte{byte(gen), 1, 2},
		}
		if err := store.SaveCheckpoint(ctx, record); err != nil {
			t.Fatalf("save checkpoint: %v", err)
		}
	}
	other := model.CheckpointRecord{
		VersionedRecord: CurrentVersion(),
		ID:              "run-b-a",
		RunID:           "run-b",
		Generation:      5,
		CreatedAt:       base,
		Blob:            []byte{5},
	}
	if err := store.SaveCheckpoint(ctx, other); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	latest, ok, err := store.LatestCheckpoint(ctx, "run-a")
	if err != nil || !ok {
		t.Fatalf("latest checkpoint: ok=%t err=%v", ok, err)
	}
	if latest.Generation != 30 || len(latest.Blob) != 3 || latest.Blob[0] != 30 {
		t.Fatalf("unexpected latest checkpoint: %+v", latest)
	}
	if !latest.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("created_at not preserved: %v", latest.CreatedAt)
	}

	listed, err := store.ListCheckpoints(ctx, "run-a")
	if err != nil {
		t.Fatalf("list checkpoints: %v", err)
	}
	if len(listed) != 3 || listed[0].Generation != 10 || listed[2].Generation != 30 {
		t.Fatalf("unexpected checkpoint listing: %+v", listed)
	}
	for _, record := range listed {
		if record.Blob != nil {
			t.Fatalf("listing should not carry blobs")
		}
	}
	all, err := store.ListCheckpoints(ctx, "")
	if err != nil || len(all) != 4 {
		t.Fatalf("expected 4 checkpoints across runs, got %d err=%v", len(all), err)
	}

	loaded, ok, err := store.GetCheckpoint(ctx, "run-b-a")
	if err != nil || !ok || loaded.RunID != "run-b" {
		t.Fatalf("get checkpoint: %+v ok=%t err=%v", loaded, ok, err)
	}
	if _, ok, err := store.GetCheckpoint(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing checkpoint, ok=%t err=%v", ok, err)
	}
	if _, ok, err := store.LatestCheckpoint(ctx, "run-z"); err != nil || ok {
		t.Fatalf("expected no checkpoint for unknown run, ok=%t err=%v", ok, err)
	}

	genome := testGenome("koi-7")
	if err := store.SaveGenome(ctx, genome); err != nil {
		t.Fatalf("save genome: %v", err)
	}
	loadedGenome, ok, err := store.GetGenome(ctx, "koi-7")
	if err != nil || !ok {
		t.Fatalf("get genome: ok=%t err=%v", ok, err)
	}
	if loadedGenome.Fitness != 42 || len(loadedGenome.Synapses) != 1 || loadedGenome.Synapses[0].Weight != 1.25 {
		t.Fatalf("unexpected genome: %+v", loadedGenome)
	}

	diagnostics := []model.GenerationDiagnostics{{Generation: 0, BestFitness: 12, SpeciesCount: 2, BestGenomeID: "koi-7"}}
	if err := store.SaveGenerationDiagnostics(ctx, "run-a", diagnostics); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	gotDiagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-a")
	if err != nil || !ok || len(gotDiagnostics) != 1 || gotDiagnostics[0].BestGenomeID != "koi-7" {
		t.Fatalf("unexpected diagnostics: %+v ok=%t err=%v", gotDiagnostics, ok, err)
	}

	species := []model.SpeciesRecord{{
		SpeciesID:      3,
		ScientificName: "Cyprinus rubrofuscus kohaku",
		HighestFitness: 88,
		History:        []model.GenerationPoint{{Generation: 1, Fitness: 40}, {Generation: 2, Fitness: 88}},
	}}
	if err := store.SaveSpeciesRecords(ctx, "run-a", species); err != nil {
		t.Fatalf("save species records: %v", err)
	}
	gotSpecies, ok, err := store.GetSpeciesRecords(ctx, "run-a")
	if err != nil || !ok || len(gotSpecies) != 1 || len(gotSpecies[0].History) != 2 {
		t.Fatalf("unexpected species records: %+v ok=%t err=%v", gotSpecies, ok, err)
	}
	if _, ok, err := store.GetSpeciesRecords(ctx, "run-z"); err != nil || ok {
		t.Fatalf("expected no species records for unknown run, ok=%t err=%v", ok, err)
	}
}
