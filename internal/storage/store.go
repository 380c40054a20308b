package storage

import (
	"context"

	"koipond/internal/model"
)

// Store persists checkpoints, the best genome and per-run history.
type Store interface {
	Init(ctx context.Context) error
	SaveCheckpoint(ctx context.Context, record model.CheckpointRecord) error
	GetCheckpoint(ctx context.Context, id string) (model.CheckpointRecord, bool, error)
	// LatestCheckpoint returns the checkpoint with the highest generation
	// for runID. An empty runID searches every run.
	LatestCheckpoint(ctx context.Context, runID string) (model.CheckpointRecord, bool, error)
	// ListCheckpoints returns checkpoint metadata ordered by generation.
	// Blobs are not included.
	ListCheckpoints(ctx context.Context, runID string) ([]model.CheckpointRecord, error)
	SaveGenome(ctx context.Context, genome model.Genome) error
	GetGenome(ctx context.Context, id string) (model.Genome, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveSpeciesRecords(ctx context.Context, runID string, records []model.SpeciesRecord) error
	GetSpeciesRecords(ctx context.Context, runID string) ([]model.SpeciesRecord, bool, error)
}
