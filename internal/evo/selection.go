package evo

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"koipond/internal/model"
)

// Selector picks the parent of one offspring from a species' ranked pool.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) (model.Genome, error)
}

// ScoredGenome pairs a genome with the fitness it earned this generation.
type ScoredGenome struct {
	Genome  model.Genome
	Fitness float64
}

// EliteSelector draws uniformly from the eliteCount fittest genomes.
type EliteSelector struct{}

func (EliteSelector) Name() string { return "elite" }

func (EliteSelector) PickParent(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) (model.Genome, error) {
	if err := checkPool(rng, ranked, eliteCount); err != nil {
		return model.Genome{}, err
	}
	return ranked[rng.Intn(eliteCount)].Genome, nil
}

// TournamentSelector holds TournamentSize draws over the PoolSize fittest
// genomes and keeps the fittest draw. A zero PoolSize means twice the elite
// count and a zero TournamentSize means three draws.
type TournamentSelector struct {
	PoolSize       int
	TournamentSize int
}

func (TournamentSelector) Name() string { return "tournament" }

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) (model.Genome, error) {
	if err := checkPool(rng, ranked, eliteCount); err != nil {
		return model.Genome{}, err
	}
	pool := s.PoolSize
	if pool <= 0 {
		pool = 2 * eliteCount
	}
	pool = min(max(pool, eliteCount), len(ranked))

	draws := s.TournamentSize
	if draws <= 0 {
		draws = 3
	}
	draws = min(draws, pool)

	winner := ranked[rng.Intn(pool)]
	for i := 0; i < draws-1; i++ {
		if c := ranked[rng.Intn(pool)]; c.Fitness > winner.Fitness {
			winner = c
		}
	}
	return winner.Genome, nil
}

// SelectorByName resolves the evolution.selector setting.
func SelectorByName(name string) (Selector, error) {
	switch name {
	case "", "tournament":
		return TournamentSelector{}, nil
	case "elite":
		return EliteSelector{}, nil
	}
	return nil, fmt.Errorf("unknown selector %q", name)
}

func checkPool(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) error {
	if rng == nil {
		return errors.New("random source is required")
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return fmt.Errorf("elite count %d out of range for %d genomes", eliteCount, len(ranked))
	}
	return nil
}

// rankGenomes orders genomes by descending fitness. Ties keep population order.
func rankGenomes(genomes []*model.Genome) []ScoredGenome {
	ranked := make([]ScoredGenome, 0, len(genomes))
	for _, g := range genomes {
		ranked = append(ranked, ScoredGenome{Genome: *g, Fitness: g.Fitness})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	return ranked
}
