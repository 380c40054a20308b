package platform

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"koipond/internal/evo"
	"koipond/internal/model"
)

// history records per-generation diagnostics, feeds the metrics collector
// and persists both the diagnostics and the leaderboard after every
// generation.
type history struct {
	evo.BaseReporter

	runID  string
	runner *Runner
	ctx    context.Context

	mu          sync.Mutex
	diagnostics []model.GenerationDiagnostics
	solved      bool
}

func (h *history) PostEvaluate(generation int, genomes []*model.Genome, _ model.SpeciesSet, _ model.Genome) {
	h.record(generation, genomes)
}

func (h *history) FoundSolution(generation int, best model.Genome) {
	h.solved = true
	h.runner.log.Info("fitness threshold reached",
		zap.Int("generation", generation),
		zap.String("genome", best.ID),
		zap.Float64("fitness", best.Fitness),
	)
}

func (h *history) record(generation int, genomes []*model.Genome) {
	r := h.runner
	report := r.evaluator.LastReport()
	diag := evo.Summarize(generation, genomes, r.population.Species())
	if report.Generation == generation {
		diag.Survivors = report.Survivors
	}
	r.cfg.Metrics.ObserveGeneration(diag, report.Duration)

	h.mu.Lock()
	h.diagnostics = append(h.diagnostics, diag)
	all := append([]model.GenerationDiagnostics(nil), h.diagnostics...)
	h.mu.Unlock()

	ctx := h.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)
	if err := r.cfg.Store.SaveGenerationDiagnostics(ctx, h.runID, all); err != nil {
		r.log.Warn("diagnostics not persisted", zap.Int("generation", generation), zap.Error(err))
	}
	if err := r.cfg.Store.SaveSpeciesRecords(ctx, h.runID, r.board.Records()); err != nil {
		r.log.Warn("leaderboard not persisted", zap.Int("generation", generation), zap.Error(err))
	}
}

func (h *history) all() []model.GenerationDiagnostics {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.GenerationDiagnostics(nil), h.diagnostics...)
}
