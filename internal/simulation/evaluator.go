package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"

	"koipond/internal/koi"
	"koipond/internal/metrics"
	"koipond/internal/model"
	"koipond/internal/pond"
)

var (
	ErrEvaluationInProgress = errors.New("a generation is already being evaluated")
	// ErrStopRequested is returned after the renderer asked the run to stop.
	// Fitness is still written back for the partial generation.
	ErrStopRequested = errors.New("stop requested by renderer")
)

const (
	DefaultSpawnMargin = 50.0
	DefaultLilyPads    = 30
	DefaultTrials      = 1
	topReported        = 5
)

type Config struct {
	Params      koi.Params
	LilyPads    int
	Trials      int
	SpawnMargin float64
	Seed        int64
}

func DefaultConfig() Config {
	return Config{
		Params:      koi.DefaultParams(),
		LilyPads:    DefaultLilyPads,
		Trials:      DefaultTrials,
		SpawnMargin: DefaultSpawnMargin,
	}
}

// SpeciesFunc maps a genome id to its species.
type SpeciesFunc func(genomeID string) int

// SnapshotFunc is called between steps when a snapshot was requested. The
// genomes still carry their live koi.
type SnapshotFunc func(ctx context.Context, generation int, genomes []*model.Genome)

// Options carries the evaluator's collaborators. Every field is optional.
type Options struct {
	Controllers ControllerFactory
	Species     SpeciesFunc
	Renderer    Renderer
	Leaderboard Recorder
	OnSnapshot  SnapshotFunc
	Logger      *zap.Logger
	Metrics     *metrics.Collector
}

// Report summarizes the last evaluated generation.
type Report struct {
	Generation       int
	Survivors        int
	Deaths           int
	ControllerErrors int
	RenderErrors     int
	Best             model.AgentSnapshot
	BestFitness      float64
	Duration         time.Duration
}

// Evaluator runs the trials of one generation at a time. While a generation
// is in flight it owns every koi and the genome to koi association; both are
// released before EvaluateGeneration returns.
type Evaluator struct {
	cfg  Config
	opts Options
	env  *pond.Environment
	rng  *rand.Rand
	log  *zap.Logger

	running           atomic.Bool
	snapshotRequested atomic.Bool

	live  map[string]*koi.Koi
	order []*koi.Koi
	last  Report
}

func NewEvaluator(cfg Config, opts Options) (*Evaluator, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("koi params: %w", err)
	}
	if cfg.LilyPads < 0 {
		return nil, fmt.Errorf("lily pad count must be >= 0")
	}
	if cfg.Trials <= 0 {
		cfg.Trials = DefaultTrials
	}
	if cfg.SpawnMargin < 0 {
		return nil, fmt.Errorf("spawn margin must be >= 0")
	}
	if opts.Controllers == nil {
		opts.Controllers = NetworkControllers
	}
	if opts.Species == nil {
		opts.Species = func(string) int { return 0 }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	env, err := pond.NewEnvironment(pond.Config{Width: cfg.Params.Width, Height: cfg.Params.Height}, rng)
	if err != nil {
		return nil, err
	}
	return &Evaluator{
		cfg:  cfg,
		opts: opts,
		env:  env,
		rng:  rng,
		log:  opts.Logger,
		live: make(map[string]*koi.Koi),
	}, nil
}

// RequestSnapshot asks the evaluator to call OnSnapshot before its next step.
// It is safe to call from any goroutine.
func (e *Evaluator) RequestSnapshot() {
	e.snapshotRequested.Store(true)
}

// LastReport returns the report of the last completed generation.
func (e *Evaluator) LastReport() Report {
	return e.last
}

// Live returns the koi bound to a genome in the generation in flight.
func (e *Evaluator) Live(genomeID string) (*koi.Koi, bool) {
	k, ok := e.live[genomeID]
	return k, ok
}

// EvaluateGeneration spawns one koi per genome, runs every trial and writes
// the mean trial fitness and the best fitness seen back onto each genome.
// Koi are processed in genome order, which decides who wins a shared pad.
func (e *Evaluator) EvaluateGeneration(ctx context.Context, generation int, genomes []*model.Genome) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrEvaluationInProgress
	}
	defer e.running.Store(false)
	defer e.release(genomes)

	started := time.Now()
	report := Report{Generation: generation}
	e.log.Info("generation started", zap.Int("generation", generation), zap.Int("genomes", len(genomes)))

	e.rng.Seed(GenerationSeed(e.cfg.Seed, generation))
	e.spawn(genomes, &report)

	totals := make(map[string]float64, len(e.order))
	failed := make(map[string]bool)
	ran := 0
	var stopErr error
	for trial := 0; trial < e.cfg.Trials && stopErr == nil; trial++ {
		fitness, err := e.runTrial(ctx, generation, trial, genomes, failed, &report)
		if err != nil && !errors.Is(err, ErrStopRequested) {
			return err
		}
		stopErr = err
		ran++
		for id, f := range fitness {
			totals[id] += f
		}
	}

	for _, g := range genomes {
		k, ok := e.live[g.ID]
		if !ok || failed[g.ID] {
			g.SetFitness(0)
			continue
		}
		g.SetFitness(totals[g.ID] / float64(ran))
		g.RaiseHighestFitness(k.HighestFitness())
	}

	e.reportBest(ctx, generation, failed, &report)
	e.logTop(generation, genomes)
	if e.opts.Renderer != nil {
		e.opts.Renderer.SetGeneration(generation)
	}

	report.Duration = time.Since(started)
	e.last = report
	e.log.Info("generation finished",
		zap.Int("generation", generation),
		zap.Float64("best_fitness", report.BestFitness),
		zap.Int("survivors", report.Survivors),
		zap.Int("deaths", report.Deaths),
		zap.Duration("took", report.Duration),
	)
	return stopErr
}

// spawn builds one koi per genome and binds it to the genome. A genome whose
// controller cannot be built gets no koi and scores zero.
func (e *Evaluator) spawn(genomes []*model.Genome, report *Report) {
	e.order = e.order[:0]
	for _, g := range genomes {
		controller, err := e.opts.Controllers(*g)
		if err != nil {
			report.ControllerErrors++
			e.opts.Metrics.ControllerError()
			e.log.Warn("controller unavailable", zap.String("genome", g.ID), zap.Error(&koi.ControllerError{GenomeID: g.ID, Err: err}))
			continue
		}
		k, err := koi.New(g.ID, controller, e.env.SpawnPoint(e.cfg.SpawnMargin), e.opts.Species(g.ID), e.cfg.Params)
		if err != nil {
			report.ControllerErrors++
			e.log.Warn("koi rejected", zap.String("genome", g.ID), zap.Error(err))
			continue
		}
		if hp, ok := e.opts.Renderer.(HandleProvider); ok {
			handle, err := hp.Acquire(k.Snapshot())
			if err != nil {
				e.log.Warn("display handle unavailable", zap.String("genome", g.ID), zap.Error(err))
			} else {
				k.AttachResource(handle)
			}
		}
		g.Attach(k)
		e.live[g.ID] = k
		e.order = append(e.order, k)
	}
}

// runTrial resets the pond and every koi, then steps until the step budget is
// spent or no koi is left. It returns the trial fitness per genome id. A koi
// in failed sits the trial out; failures during the trial are added to it.
func (e *Evaluator) runTrial(ctx context.Context, generation, trial int, genomes []*model.Genome, failed map[string]bool, report *Report) (map[string]float64, error) {
	e.env.Spawn(e.cfg.LilyPads)
	active := make([]*koi.Koi, 0, len(e.order))
	for _, k := range e.order {
		k.Reset()
		if !failed[k.GenomeID()] {
			active = append(active, k)
		}
	}

	var stopErr error
	for step := 0; step < e.cfg.Params.SimulationSteps && len(active) > 0; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.snapshotRequested.CompareAndSwap(true, false) && e.opts.OnSnapshot != nil {
			e.opts.OnSnapshot(ctx, generation, genomes)
		}

		active = e.step(active, failed, report)
		e.opts.Metrics.SetAlive(len(active))

		if !e.render(ctx, generation, trial, step, active, report) {
			stopErr = ErrStopRequested
			break
		}
	}
	report.Survivors = len(active)

	fitness := make(map[string]float64, len(e.order))
	for _, k := range e.order {
		if failed[k.GenomeID()] {
			fitness[k.GenomeID()] = 0
			continue
		}
		fitness[k.GenomeID()] = k.Fitness()
	}
	return fitness, stopErr
}

// step moves every active koi once in order. A koi that starves or whose
// controller fails leaves the active set at once, so later koi in the same
// step no longer see it.
func (e *Evaluator) step(active []*koi.Koi, failed map[string]bool, report *Report) []*koi.Koi {
	radius := e.cfg.Params.DetectionRadius
	for i := 0; i < len(active); {
		k := active[i]
		pads := e.env.PadsWithin(k.Position(), radius)
		neighbors := neighborsOf(k, active, radius)

		if err := k.Act(pads, neighbors); err != nil {
			failed[k.GenomeID()] = true
			report.ControllerErrors++
			e.opts.Metrics.ControllerError()
			e.log.Warn("controller failed", zap.String("genome", k.GenomeID()), zap.Error(err))
			active = append(active[:i], active[i+1:]...)
			continue
		}
		k.Update(e.env)
		if !k.Active() {
			report.Deaths++
			e.opts.Metrics.Death()
			e.log.Debug("koi starved",
				zap.String("genome", k.GenomeID()),
				zap.Int("steps", k.StepsTaken()),
				zap.Float64("hunger", k.Hunger()),
			)
			active = append(active[:i], active[i+1:]...)
			continue
		}
		i++
	}
	return active
}

func (e *Evaluator) render(ctx context.Context, generation, trial, step int, active []*koi.Koi, report *Report) bool {
	if e.opts.Renderer == nil {
		return true
	}
	frame := Frame{
		Generation: generation,
		Trial:      trial,
		Step:       step,
		Agents:     make([]model.AgentSnapshot, 0, len(active)),
	}
	for _, k := range active {
		frame.Agents = append(frame.Agents, k.Snapshot())
	}
	for _, pad := range e.env.LilyPads() {
		frame.LilyPads = append(frame.LilyPads, [2]float64(pad.Position))
	}

	cont, err := e.safeRender(ctx, frame)
	if err != nil {
		report.RenderErrors++
		e.opts.Metrics.RenderError()
		e.log.Warn("render failed", zap.Error(&RenderError{Generation: generation, Step: step, Err: err}))
		return true
	}
	return cont
}

// safeRender turns a renderer panic into an error.
func (e *Evaluator) safeRender(ctx context.Context, frame Frame) (cont bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			cont, err = true, fmt.Errorf("renderer panic: %v", r)
		}
	}()
	return e.opts.Renderer.Render(ctx, frame)
}

// reportBest sends the koi with the highest fitness seen to the leaderboard.
// Ties go to the earlier koi. A koi whose controller failed is never the best.
func (e *Evaluator) reportBest(ctx context.Context, generation int, failed map[string]bool, report *Report) {
	var best *koi.Koi
	for _, k := range e.order {
		if failed[k.GenomeID()] {
			continue
		}
		if best == nil || k.HighestFitness() > best.HighestFitness() {
			best = k
		}
	}
	if best == nil {
		return
	}
	report.Best = best.Snapshot()
	report.BestFitness = best.HighestFitness()
	if e.opts.Leaderboard == nil {
		return
	}
	if err := e.opts.Leaderboard.Record(ctx, best.SpeciesID(), report.Best, report.BestFitness, generation); err != nil {
		e.log.Warn("leaderboard record failed", zap.Int("species", best.SpeciesID()), zap.Error(err))
		return
	}
	e.log.Debug("leaderboard record",
		zap.Int("species", best.SpeciesID()),
		zap.Float64("fitness", report.BestFitness),
		zap.Int("generation", generation),
	)
}

func (e *Evaluator) logTop(generation int, genomes []*model.Genome) {
	ranked := make([]*model.Genome, 0, len(genomes))
	for _, g := range genomes {
		if _, ok := e.live[g.ID]; ok {
			ranked = append(ranked, g)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Fitness > ranked[j].Fitness })
	if len(ranked) > topReported {
		ranked = ranked[:topReported]
	}
	for i, g := range ranked {
		e.log.Info("generation leader",
			zap.Int("generation", generation),
			zap.Int("rank", i+1),
			zap.String("genome", g.ID),
			zap.Float64("fitness", g.Fitness),
			zap.Float64("energy", e.live[g.ID].Energy()),
		)
	}
}

// release drops every display handle and severs each genome from its koi.
// It runs on every exit path, including cancellation.
func (e *Evaluator) release(genomes []*model.Genome) {
	for _, k := range e.order {
		if err := k.ReleaseResource(); err != nil {
			e.log.Warn("release display handle", zap.String("genome", k.GenomeID()), zap.Error(err))
		}
	}
	for _, g := range genomes {
		g.Detach()
	}
	clear(e.live)
	e.order = e.order[:0]
}

// GenerationSeed derives the random source of one generation, so a run
// resumed at generation n lays out the pond exactly as an unbroken run would.
func GenerationSeed(seed int64, generation int) int64 {
	return seed + int64(generation)
}

func neighborsOf(k *koi.Koi, active []*koi.Koi, radius float64) []*koi.Koi {
	out := make([]*koi.Koi, 0)
	for _, other := range active {
		if other == k {
			continue
		}
		if planar.Distance(k.Position(), other.Position()) < radius {
			out = append(out, other)
		}
	}
	return out
}
