// Package platform wires a koi pond run together: the population, the
// generation evaluator, checkpoints, the leaderboard, storage and the
// background services that live as long as the run.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"koipond/internal/checkpoint"
	"koipond/internal/config"
	"koipond/internal/evo"
	"koipond/internal/genotype"
	"koipond/internal/leaderboard"
	"koipond/internal/metrics"
	"koipond/internal/model"
	"koipond/internal/simulation"
	"koipond/internal/storage"
)

var ErrRunInProgress = errors.New("run already in progress")

type StopReason string

const (
	StopReasonCompleted StopReason = "completed"
	StopReasonSolved    StopReason = "solved"
	StopReasonRenderer  StopReason = "renderer"
	StopReasonCancelled StopReason = "cancelled"
)

// Config wires a Runner. Settings is copied and never re-read.
type Config struct {
	RunID       string
	Settings    config.Config
	Store       storage.Store
	Leaderboard *leaderboard.Registry
	Renderer    simulation.Renderer
	Controllers simulation.ControllerFactory
	Logger      *zap.Logger
	Metrics     *metrics.Collector
	Services    SupervisorPolicy
	// Resume continues from a checkpoint instead of seeding a population.
	Resume *model.Snapshot
}

type RunResult struct {
	RunID           string                        `json:"run_id"`
	Best            model.Genome                  `json:"best"`
	StartGeneration int                           `json:"start_generation"`
	NextGeneration  int                           `json:"next_generation"`
	StopReason      StopReason                    `json:"stop_reason"`
	Diagnostics     []model.GenerationDiagnostics `json:"diagnostics"`
	Checkpoints     []model.CheckpointRecord      `json:"checkpoints"`
	Leaderboard     []model.SpeciesRecord         `json:"leaderboard"`
}

type Runner struct {
	cfg      Config
	settings config.Config
	log      *zap.Logger

	population   *evo.Population
	evaluator    *simulation.Evaluator
	checkpointer *checkpoint.Checkpointer
	history      *history
	board        *leaderboard.Registry
	services     *Supervisor

	running atomic.Bool
}

func NewRunner(cfg Config) (*Runner, error) {
	settings := cfg.Settings
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore()
	}
	if cfg.Leaderboard == nil {
		cfg.Leaderboard = leaderboard.NewRegistry(nil, settings.Evaluation.Seed, cfg.Logger)
	}
	log := cfg.Logger.With(zap.String("run_id", cfg.RunID))

	evoCfg, err := evolutionConfig(settings)
	if err != nil {
		return nil, err
	}
	var population *evo.Population
	if cfg.Resume != nil {
		population, err = evo.RestorePopulation(evoCfg, *cfg.Resume)
	} else {
		population, err = evo.NewPopulation(evoCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("population: %w", err)
	}

	r := &Runner{
		cfg:        cfg,
		settings:   settings,
		log:        log,
		population: population,
		board:      cfg.Leaderboard,
	}

	cpCfg := checkpointConfig(cfg.RunID, settings)
	cpCfg.Store = cfg.Store
	cpCfg.Logger = log
	cpCfg.Metrics = cfg.Metrics
	r.checkpointer = checkpoint.NewCheckpointer(cpCfg, nil)

	r.evaluator, err = simulation.NewEvaluator(simulationConfig(settings), simulation.Options{
		Controllers: cfg.Controllers,
		Species:     population.SpeciesOf,
		Renderer:    cfg.Renderer,
		Leaderboard: cfg.Leaderboard,
		OnSnapshot:  r.snapshotInFlight,
		Logger:      log,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluator: %w", err)
	}

	r.history = &history{runID: cfg.RunID, runner: r}
	population.AddReporter(r.history)
	population.AddReporter(r.checkpointer)

	r.services = NewSupervisor(cfg.Services, SupervisorHooks{
		OnRestart: func(name string, err error, restarts int) {
			log.Warn("service restarting", zap.String("service", name), zap.Int("restarts", restarts), zap.Error(err))
		},
		OnGiveUp: func(name string, err error, restarts int) {
			log.Error("service abandoned", zap.String("service", name), zap.Int("restarts", restarts), zap.Error(err))
		},
	})
	return r, nil
}

func (r *Runner) RunID() string { return r.cfg.RunID }

// Population exposes the evolving population. It must not be mutated while
// Run is in progress.
func (r *Runner) Population() *evo.Population { return r.population }

func (r *Runner) Leaderboard() *leaderboard.Registry { return r.board }

func (r *Runner) Services() []ServiceStatus { return r.services.Services() }

// RequestCheckpoint asks for a checkpoint of the generation in flight. It
// is taken between simulation steps and is safe to call from any goroutine.
func (r *Runner) RequestCheckpoint() {
	r.evaluator.RequestSnapshot()
}

// Run evolves for the configured number of generations. A renderer stop or a
// cancelled ctx ends the run early with a final checkpoint and a nil error.
func (r *Runner) Run(ctx context.Context) (RunResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return RunResult{}, ErrRunInProgress
	}
	defer r.running.Store(false)

	if err := r.cfg.Store.Init(ctx); err != nil {
		return RunResult{}, fmt.Errorf("init store: %w", err)
	}
	if err := r.board.Initialize(ctx); err != nil {
		return RunResult{}, fmt.Errorf("init leaderboard: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, finish := context.WithCancel(gctx)
	defer finish()

	if err := r.startServices(); err != nil {
		return RunResult{}, err
	}
	var result RunResult
	g.Go(func() error {
		defer finish()
		var err error
		result, err = r.evolve(runCtx, ctx)
		return err
	})
	g.Go(func() error {
		<-runCtx.Done()
		r.services.StopAll()
		return nil
	})
	err := g.Wait()
	return result, err
}

func (r *Runner) evolve(ctx, parent context.Context) (RunResult, error) {
	started := time.Now()
	result := RunResult{
		RunID:           r.cfg.RunID,
		StartGeneration: r.population.Generation(),
		StopReason:      StopReasonCompleted,
	}
	r.history.ctx = ctx
	r.log.Info("run started",
		zap.Int("generation", result.StartGeneration),
		zap.Int("generations", r.settings.Evaluation.Generations),
		zap.Int("population", len(r.population.Genomes())),
	)

	best, err := r.population.Run(ctx, r.evaluator.EvaluateGeneration, r.settings.Evaluation.Generations)
	interrupted := false
	switch {
	case err == nil:
		if r.history.solved {
			result.StopReason = StopReasonSolved
		}
	case errors.Is(err, simulation.ErrStopRequested):
		result.StopReason = StopReasonRenderer
		r.history.record(r.population.Generation(), r.population.Genomes())
		interrupted = true
	case parent.Err() != nil:
		result.StopReason = StopReasonCancelled
		interrupted = true
	default:
		r.log.Error("run failed", zap.Error(err))
		return result, err
	}

	persist := context.WithoutCancel(ctx)
	if interrupted {
		// The population holds the generation that was cut short; resuming
		// re-evaluates it.
		_, _ = r.checkpointer.Save(persist, r.population)
	}
	if best.ID == "" {
		best = bestEvaluated(r.population.Genomes())
	}
	if best.ID != "" {
		_ = r.checkpointer.SaveBest(persist, r.settings.Checkpoint.BestGenomePath, &best)
	}
	if err := r.cfg.Store.SaveSpeciesRecords(persist, r.cfg.RunID, r.board.Records()); err != nil {
		r.log.Warn("leaderboard not persisted", zap.Error(err))
	}

	result.Best = best
	result.NextGeneration = r.population.Generation()
	result.Diagnostics = r.history.all()
	result.Checkpoints = r.checkpointer.Written()
	result.Leaderboard = r.board.Records()
	r.log.Info("run finished",
		zap.String("reason", string(result.StopReason)),
		zap.Int("next_generation", result.NextGeneration),
		zap.String("best_genome", best.ID),
		zap.Float64("best_fitness", best.Fitness),
		zap.Duration("took", time.Since(started)),
	)
	return result, nil
}

// snapshotInFlight checkpoints the generation being evaluated. The koi are
// still attached to their genomes while it runs.
func (r *Runner) snapshotInFlight(ctx context.Context, generation int, _ []*model.Genome) {
	r.log.Info("checkpoint requested", zap.Int("generation", generation))
	_, _ = r.checkpointer.Save(ctx, r.population)
}

func (r *Runner) startServices() error {
	addr := r.settings.Metrics.Addr
	if addr == "" || r.cfg.Metrics == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.cfg.Metrics.Handler())
	return r.services.Start("metrics", func(ctx context.Context) error {
		return serveHTTP(ctx, &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second})
	})
}

func serveHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return ctx.Err()
	}
}

func bestEvaluated(genomes []*model.Genome) model.Genome {
	var best *model.Genome
	for _, g := range genomes {
		if g.Evaluated && (best == nil || g.Fitness > best.Fitness) {
			best = g
		}
	}
	if best == nil {
		return model.Genome{}
	}
	clone := genotype.CloneGenome(*best)
	clone.Occupant = nil
	return clone
}
