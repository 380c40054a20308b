// Package koipond is the library surface over a koi pond run: starting and
// resuming runs, and reading back checkpoints, diagnostics and the species
// leaderboard.
package koipond

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"koipond/internal/checkpoint"
	"koipond/internal/config"
	"koipond/internal/leaderboard"
	"koipond/internal/metrics"
	"koipond/internal/model"
	"koipond/internal/platform"
	"koipond/internal/simulation"
	"koipond/internal/storage"
)

var ErrNoActiveRun = errors.New("no run in progress")

type Options struct {
	// Settings defaults to config.Default().
	Settings *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Collector
}

type Client struct {
	settings config.Config
	store    storage.Store
	board    *leaderboard.Registry
	redis    *leaderboard.RedisBackend
	log      *zap.Logger
	metrics  *metrics.Collector

	initOnce sync.Once
	initErr  error

	mu     sync.Mutex
	active *platform.Runner
}

type RunRequest struct {
	RunID string
	// Generations overrides the configured generation count when > 0.
	Generations int
	Renderer    simulation.Renderer
	// ResumeFrom is a checkpoint file path or a stored checkpoint id.
	ResumeFrom string
	// ResumeLatest resumes from the newest stored checkpoint of RunID, or
	// of any run when RunID is empty.
	ResumeLatest bool
}

type RunSummary struct {
	RunID           string
	StopReason      string
	StartGeneration int
	NextGeneration  int
	BestGenomeID    string
	BestFitness     float64
	Diagnostics     []model.GenerationDiagnostics
	Checkpoints     []model.CheckpointRecord
}

func New(opts Options) (*Client, error) {
	settings := config.Default()
	if opts.Settings != nil {
		settings = *opts.Settings
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewStore(settings.Storage.Kind, settings.Storage.Path)
	if err != nil {
		return nil, err
	}

	c := &Client{settings: settings, store: store, log: logger, metrics: opts.Metrics}
	var backend leaderboard.Backend
	switch settings.Leaderboard.Backend {
	case "redis":
		rb, err := leaderboard.NewRedisBackend(settings.Leaderboard.RedisAddr, settings.Leaderboard.Key)
		if err != nil {
			_ = storage.Close(store)
			return nil, err
		}
		c.redis = rb
		backend = rb
	default:
		backend = leaderboard.NewMemoryBackend()
	}
	c.board = leaderboard.NewRegistry(backend, settings.Evaluation.Seed, logger)
	return c, nil
}

func (c *Client) Close() error {
	var errs []error
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	errs = append(errs, storage.Close(c.store))
	return errors.Join(errs...)
}

// Init prepares the store and loads the leaderboard. Other calls run it on
// first use.
func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		if err := c.store.Init(ctx); err != nil {
			c.initErr = fmt.Errorf("init store: %w", err)
			return
		}
		if err := c.board.Initialize(ctx); err != nil {
			c.initErr = fmt.Errorf("init leaderboard: %w", err)
		}
	})
	return c.initErr
}

func (c *Client) Settings() config.Config { return c.settings }

// LeaderboardTop returns the leaderboard's best species for a live view
// such as the terminal renderer's side panel.
func (c *Client) LeaderboardTop(n int) []model.SpeciesRecord { return c.board.Top(n) }

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	settings := c.settings
	if req.Generations > 0 {
		settings.Evaluation.Generations = req.Generations
	}

	var resume *model.Snapshot
	switch {
	case req.ResumeFrom != "" && req.ResumeLatest:
		return RunSummary{}, errors.New("use either resume from or resume latest")
	case req.ResumeFrom != "":
		snap, err := c.LoadCheckpoint(ctx, req.ResumeFrom)
		if err != nil {
			return RunSummary{}, err
		}
		resume = &snap
	case req.ResumeLatest:
		record, ok, err := c.store.LatestCheckpoint(ctx, req.RunID)
		if err != nil {
			return RunSummary{}, err
		}
		if !ok {
			return RunSummary{}, errors.New("no checkpoint available to resume")
		}
		snap, err := checkpoint.Decode(record.Blob)
		if err != nil {
			return RunSummary{}, fmt.Errorf("checkpoint %s: %w", record.ID, err)
		}
		resume = &snap
	}
	runID := req.RunID
	if runID == "" && resume != nil {
		runID = resume.RunID
	}

	runner, err := platform.NewRunner(platform.Config{
		RunID:       runID,
		Settings:    settings,
		Store:       c.store,
		Leaderboard: c.board,
		Renderer:    req.Renderer,
		Logger:      c.log,
		Metrics:     c.metrics,
		Resume:      resume,
	})
	if err != nil {
		return RunSummary{}, err
	}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return RunSummary{}, platform.ErrRunInProgress
	}
	c.active = runner
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
	}()

	result, err := runner.Run(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	return RunSummary{
		RunID:           result.RunID,
		StopReason:      string(result.StopReason),
		StartGeneration: result.StartGeneration,
		NextGeneration:  result.NextGeneration,
		BestGenomeID:    result.Best.ID,
		BestFitness:     result.Best.Fitness,
		Diagnostics:     result.Diagnostics,
		Checkpoints:     result.Checkpoints,
	}, nil
}

// RequestCheckpoint asks the active run to checkpoint the generation in
// flight.
func (c *Client) RequestCheckpoint() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ErrNoActiveRun
	}
	c.active.RequestCheckpoint()
	return nil
}

// Leaderboard returns up to limit species by best fitness. Zero returns all.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]model.SpeciesRecord, error) {
	if limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	if limit == 0 {
		records := c.board.Records()
		return leaderboard.Top(records, len(records)), nil
	}
	return c.board.Top(limit), nil
}

func (c *Client) ResetLeaderboard(ctx context.Context) error {
	if err := c.Init(ctx); err != nil {
		return err
	}
	if err := c.board.Reset(ctx); err != nil {
		return err
	}
	return c.board.Initialize(ctx)
}

// Checkpoints lists stored checkpoint metadata for a run, or for every run
// when runID is empty.
func (c *Client) Checkpoints(ctx context.Context, runID string) ([]model.CheckpointRecord, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c.store.ListCheckpoints(ctx, runID)
}

// LoadCheckpoint decodes a checkpoint from a file path or, when no such file
// exists, from the store by id.
func (c *Client) LoadCheckpoint(ctx context.Context, ref string) (model.Snapshot, error) {
	if ref == "" {
		return model.Snapshot{}, errors.New("checkpoint reference is required")
	}
	if _, err := os.Stat(ref); err == nil {
		return checkpoint.LoadFile(ref)
	}
	if err := c.Init(ctx); err != nil {
		return model.Snapshot{}, err
	}
	record, ok, err := c.store.GetCheckpoint(ctx, ref)
	if err != nil {
		return model.Snapshot{}, err
	}
	if !ok {
		return model.Snapshot{}, fmt.Errorf("checkpoint not found: %s", ref)
	}
	return checkpoint.Decode(record.Blob)
}

// BestGenome reads a best-genome file, or the stored genome with that id.
func (c *Client) BestGenome(ctx context.Context, ref string) (model.Genome, error) {
	if ref == "" {
		ref = c.settings.Checkpoint.BestGenomePath
	}
	if ref == "" {
		return model.Genome{}, errors.New("best genome reference is required")
	}
	if _, err := os.Stat(ref); err == nil {
		return checkpoint.LoadGenomeFile(ref)
	}
	if err := c.Init(ctx); err != nil {
		return model.Genome{}, err
	}
	genome, ok, err := c.store.GetGenome(ctx, ref)
	if err != nil {
		return model.Genome{}, err
	}
	if !ok {
		return model.Genome{}, fmt.Errorf("genome not found: %s", ref)
	}
	return genome, nil
}

func (c *Client) Diagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, error) {
	if runID == "" {
		return nil, errors.New("diagnostics requires a run id")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	return diagnostics, nil
}
