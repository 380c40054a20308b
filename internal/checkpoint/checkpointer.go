package checkpoint

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"koipond/internal/evo"
	"koipond/internal/metrics"
	"koipond/internal/model"
	"koipond/internal/storage"
)

const (
	DefaultInterval = 10
	DefaultPrefix   = "koipond-checkpoint-"
)

type Config struct {
	RunID string
	// Interval is the number of generations between checkpoints. Zero
	// disables periodic checkpoints.
	Interval int
	Dir      string
	Prefix   string
	Store    storage.Store
	Logger   *zap.Logger
	Metrics  *metrics.Collector
}

// Checkpointer writes population checkpoints every Interval generations and
// the best genome at run end. Write failures are logged and skipped.
type Checkpointer struct {
	evo.BaseReporter

	cfg         Config
	coordinator *Coordinator
	log         *zap.Logger
	written     []model.CheckpointRecord
}

func NewCheckpointer(cfg Config, coordinator *Coordinator) *Checkpointer {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if coordinator == nil {
		coordinator = NewCoordinator()
	}
	return &Checkpointer{cfg: cfg, coordinator: coordinator, log: cfg.Logger}
}

func (c *Checkpointer) Coordinator() *Coordinator { return c.coordinator }

// Written lists the checkpoints written so far, without blobs.
func (c *Checkpointer) Written() []model.CheckpointRecord {
	return append([]model.CheckpointRecord(nil), c.written...)
}

// EndGeneration checkpoints once the population has reached a multiple of
// the interval.
func (c *Checkpointer) EndGeneration(ctx context.Context, p *evo.Population) {
	if c.cfg.Interval <= 0 || p.Generation()%c.cfg.Interval != 0 {
		return
	}
	_, _ = c.Save(ctx, p)
}

// Save captures src and writes it to the checkpoint directory and the store,
// whichever are configured. A failure is logged and returned as a
// *SerializationError; the live population is never left detached.
func (c *Checkpointer) Save(ctx context.Context, src Source) (model.CheckpointRecord, error) {
	generation := src.Generation()
	record, err := c.save(ctx, src)
	if err != nil {
		serr := &SerializationError{Generation: generation, Err: err}
		c.cfg.Metrics.Checkpoint(false)
		c.log.Warn("checkpoint skipped", zap.Int("generation", generation), zap.Error(serr))
		return model.CheckpointRecord{}, serr
	}
	c.cfg.Metrics.Checkpoint(true)
	c.log.Info("checkpoint written",
		zap.String("id", record.ID),
		zap.Int("generation", generation),
		zap.Int("bytes", len(record.Blob)),
	)
	meta := record
	meta.Blob = nil
	c.written = append(c.written, meta)
	return record, nil
}

func (c *Checkpointer) save(ctx context.Context, src Source) (model.CheckpointRecord, error) {
	id := uuid.NewString()
	snap, err := c.coordinator.Capture(src, c.cfg.RunID, id)
	if err != nil {
		return model.CheckpointRecord{}, err
	}
	blob, err := Encode(snap)
	if err != nil {
		return model.CheckpointRecord{}, err
	}
	record := model.CheckpointRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              id,
		RunID:           c.cfg.RunID,
		Generation:      snap.Generation,
		CreatedAt:       time.Now().UTC(),
		Blob:            blob,
	}
	if c.cfg.Dir != "" {
		if err := WriteFile(c.Path(snap.Generation), blob); err != nil {
			return model.CheckpointRecord{}, fmt.Errorf("write checkpoint file: %w", err)
		}
	}
	if c.cfg.Store != nil {
		if err := c.cfg.Store.SaveCheckpoint(ctx, record); err != nil {
			return model.CheckpointRecord{}, fmt.Errorf("store checkpoint: %w", err)
		}
	}
	return record, nil
}

// Path is the checkpoint file for a generation.
func (c *Checkpointer) Path(generation int) string {
	return filepath.Join(c.cfg.Dir, fmt.Sprintf("%s%d", c.cfg.Prefix, generation))
}

// SaveBest writes the best genome to path and to the store, under the same
// detach discipline as a population checkpoint.
func (c *Checkpointer) SaveBest(ctx context.Context, path string, best *model.Genome) error {
	if best == nil {
		return nil
	}
	err := c.coordinator.WithDetached([]*model.Genome{best}, func() error {
		if path != "" {
			blob, err := EncodeGenome(*best)
			if err != nil {
				return err
			}
			if err := WriteFile(path, blob); err != nil {
				return err
			}
		}
		if c.cfg.Store != nil {
			if err := c.cfg.Store.SaveGenome(ctx, *best); err != nil {
				return fmt.Errorf("store best genome: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		c.log.Warn("best genome not saved", zap.String("genome", best.ID), zap.Error(err))
		return &SerializationError{Err: err}
	}
	c.log.Info("best genome saved", zap.String("genome", best.ID), zap.Float64("fitness", best.Fitness), zap.String("path", path))
	return nil
}
