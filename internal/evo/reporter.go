package evo

import (
	"context"
	"math"

	"koipond/internal/model"
)

// Reporter observes a Population run. Reporters must not fail the run; any
// error they hit is theirs to log.
type Reporter interface {
	StartGeneration(generation int)
	PostEvaluate(generation int, genomes []*model.Genome, species model.SpeciesSet, best model.Genome)
	// EndGeneration runs after reproduction and speciation, when the
	// population holds the next generation's unevaluated genomes.
	EndGeneration(ctx context.Context, p *Population)
	FoundSolution(generation int, best model.Genome)
}

// BaseReporter implements Reporter with no-ops for embedding.
type BaseReporter struct{}

func (BaseReporter) StartGeneration(int)                                               {}
func (BaseReporter) PostEvaluate(int, []*model.Genome, model.SpeciesSet, model.Genome) {}
func (BaseReporter) EndGeneration(context.Context, *Population)                        {}
func (BaseReporter) FoundSolution(int, model.Genome)                                   {}

// Summarize reduces an evaluated generation to diagnostics.
func Summarize(generation int, genomes []*model.Genome, species model.SpeciesSet) model.GenerationDiagnostics {
	diag := model.GenerationDiagnostics{
		Generation:   generation,
		SpeciesCount: len(species.Members),
	}
	if len(genomes) == 0 {
		return diag
	}
	diag.BestFitness = math.Inf(-1)
	diag.MinFitness = math.Inf(1)
	total := 0.0
	for _, g := range genomes {
		total += g.Fitness
		if g.Fitness > diag.BestFitness {
			diag.BestFitness = g.Fitness
			diag.BestGenomeID = g.ID
		}
		if g.Fitness < diag.MinFitness {
			diag.MinFitness = g.Fitness
		}
	}
	diag.MeanFitness = total / float64(len(genomes))
	return diag
}
