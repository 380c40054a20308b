package evo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"koipond/internal/genotype"
	"koipond/internal/model"
)

// FitnessFunc evaluates every genome of one generation in place. It must set
// a fitness on each genome before returning nil.
type FitnessFunc func(ctx context.Context, generation int, genomes []*model.Genome) error

var ErrUnevaluatedGenome = errors.New("genome was not assigned a fitness")

type Config struct {
	PopulationSize int
	EliteCount     int
	Seed           int64
	Selector       Selector
	MutationPolicy []WeightedMutation
	// MaxMutations bounds how many operators are applied to each child. Each
	// child receives between one and MaxMutations.
	MaxMutations  int
	CrossoverRate float64
	// SurvivalThreshold is the fraction of each species, best first, allowed
	// to parent offspring.
	SurvivalThreshold float64
	// FitnessThreshold stops the run once the best genome reaches it. Zero
	// disables the check.
	FitnessThreshold float64
	SeedSpec         genotype.SeedSpec
	Activations      []string
	GenomePrefix     string
}

// Population owns the evolving genomes and their species partition across
// generations.
type Population struct {
	cfg        Config
	rng        *rand.Rand
	genomes    []*model.Genome
	speciation *AdaptiveSpeciation
	generation int
	nextKey    int
	best       *model.Genome
	reporters  []Reporter
	lastStats  SpeciationStats
}

func validateConfig(cfg Config) (Config, error) {
	if cfg.PopulationSize <= 0 {
		return cfg, fmt.Errorf("population size must be > 0")
	}
	if cfg.EliteCount < 0 || cfg.EliteCount > cfg.PopulationSize {
		return cfg, fmt.Errorf("elite count must be in [0, population size]")
	}
	positivePolicyWeight := false
	for i, item := range cfg.MutationPolicy {
		if item.Operator == nil {
			return cfg, fmt.Errorf("mutation policy operator is required at index %d", i)
		}
		if item.Weight < 0 {
			return cfg, fmt.Errorf("mutation policy weight must be >= 0 at index %d", i)
		}
		if item.Weight > 0 {
			positivePolicyWeight = true
		}
	}
	if len(cfg.MutationPolicy) > 0 && !positivePolicyWeight {
		return cfg, fmt.Errorf("mutation policy requires at least one positive weight")
	}
	if cfg.CrossoverRate < 0 || cfg.CrossoverRate > 1 {
		return cfg, fmt.Errorf("crossover rate must be in [0, 1]")
	}
	if cfg.SurvivalThreshold < 0 || cfg.SurvivalThreshold > 1 {
		return cfg, fmt.Errorf("survival threshold must be in [0, 1]")
	}
	if cfg.SurvivalThreshold == 0 {
		cfg.SurvivalThreshold = 0.2
	}
	if cfg.MaxMutations <= 0 {
		cfg.MaxMutations = 1
	}
	if cfg.Selector == nil {
		cfg.Selector = TournamentSelector{}
	}
	if cfg.GenomePrefix == "" {
		cfg.GenomePrefix = "koi"
	}
	return cfg, nil
}

// NewPopulation seeds a fresh population from cfg.SeedSpec.
func NewPopulation(cfg Config) (*Population, error) {
	cfg, err := validateConfig(cfg)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	seeds, err := genotype.ConstructPopulation(cfg.GenomePrefix, cfg.PopulationSize, cfg.SeedSpec, rng)
	if err != nil {
		return nil, fmt.Errorf("construct population: %w", err)
	}
	genomes := make([]*model.Genome, 0, len(seeds))
	for i := range seeds {
		genomes = append(genomes, &seeds[i])
	}

	p := newPopulation(cfg, rng)
	p.genomes = genomes
	p.nextKey = len(genomes)
	p.speciation = NewAdaptiveSpeciation(cfg.PopulationSize)
	p.lastStats = p.speciation.Assign(p.genomes, 0)
	return p, nil
}

// RestorePopulation resumes from a snapshot. The snapshot is copied; the
// population never aliases it.
func RestorePopulation(cfg Config, snap model.Snapshot) (*Population, error) {
	cfg.Seed = snap.Seed
	cfg, err := validateConfig(cfg)
	if err != nil {
		return nil, err
	}
	if len(snap.Order) == 0 {
		return nil, fmt.Errorf("snapshot %s has no genomes", snap.ID)
	}
	genomes := make([]*model.Genome, 0, len(snap.Order))
	for _, id := range snap.Order {
		g, ok := snap.Population[id]
		if !ok {
			return nil, fmt.Errorf("snapshot %s: genome %s listed in order but missing", snap.ID, id)
		}
		clone := genotype.CloneGenome(g)
		clone.Occupant = nil
		genomes = append(genomes, &clone)
	}

	rng := rand.New(rand.NewSource(snap.Seed + int64(snap.Generation)))
	p := newPopulation(cfg, rng)
	p.genomes = genomes
	p.generation = snap.Generation
	p.nextKey = snap.NextGenomeKey
	if p.nextKey < len(genomes) {
		p.nextKey = len(genomes)
	}
	p.speciation = RestoreSpeciation(cfg.PopulationSize, snap.Species, genomes)
	return p, nil
}

func newPopulation(cfg Config, rng *rand.Rand) *Population {
	if len(cfg.MutationPolicy) == 0 {
		cfg.MutationPolicy = DefaultMutationPolicy(rng, cfg.Activations)
	}
	return &Population{cfg: cfg, rng: rng}
}

func (p *Population) AddReporter(r Reporter) {
	p.reporters = append(p.reporters, r)
}

// Generation is the index of the generation that will be evaluated next.
func (p *Population) Generation() int { return p.generation }

// Genomes returns the live genome records in population order.
func (p *Population) Genomes() []*model.Genome { return p.genomes }

func (p *Population) Species() model.SpeciesSet { return p.speciation.Set() }

// SpeciesOf returns the species of a genome in the current partition.
func (p *Population) SpeciesOf(genomeID string) int { return p.speciation.set.SpeciesOf(genomeID) }

func (p *Population) SpeciationStats() SpeciationStats { return p.lastStats }

func (p *Population) Seed() int64 { return p.cfg.Seed }

func (p *Population) NextGenomeKey() int { return p.nextKey }

// Best returns the fittest genome seen so far.
func (p *Population) Best() (model.Genome, bool) {
	if p.best == nil {
		return model.Genome{}, false
	}
	return genotype.CloneGenome(*p.best), true
}

// Run evaluates and reproduces for up to n generations and returns the best
// genome seen. A fitness function error aborts the run.
func (p *Population) Run(ctx context.Context, fitness FitnessFunc, n int) (model.Genome, error) {
	if fitness == nil {
		return model.Genome{}, fmt.Errorf("fitness function is required")
	}
	if n <= 0 {
		return model.Genome{}, fmt.Errorf("generations must be > 0")
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return p.bestOrZero(), err
		}
		for _, r := range p.reporters {
			r.StartGeneration(p.generation)
		}
		for _, g := range p.genomes {
			g.Evaluated = false
		}

		if err := fitness(ctx, p.generation, p.genomes); err != nil {
			return p.bestOrZero(), fmt.Errorf("evaluate generation %d: %w", p.generation, err)
		}
		var genBest *model.Genome
		for _, g := range p.genomes {
			if !g.Evaluated {
				return p.bestOrZero(), fmt.Errorf("%w: %s", ErrUnevaluatedGenome, g.ID)
			}
			if genBest == nil || g.Fitness > genBest.Fitness {
				genBest = g
			}
		}
		if p.best == nil || genBest.Fitness > p.best.Fitness {
			clone := genotype.CloneGenome(*genBest)
			clone.Occupant = nil
			p.best = &clone
		}

		species := p.speciation.Set()
		for _, r := range p.reporters {
			r.PostEvaluate(p.generation, p.genomes, species, *p.best)
		}
		if p.cfg.FitnessThreshold > 0 && genBest.Fitness >= p.cfg.FitnessThreshold {
			for _, r := range p.reporters {
				r.FoundSolution(p.generation, *p.best)
			}
			break
		}

		next, err := p.reproduce(ctx)
		if err != nil {
			return p.bestOrZero(), err
		}
		p.genomes = next
		p.generation++
		p.lastStats = p.speciation.Assign(p.genomes, p.generation)
		for _, r := range p.reporters {
			r.EndGeneration(ctx, p)
		}
	}
	return p.bestOrZero(), nil
}

func (p *Population) bestOrZero() model.Genome {
	best, _ := p.Best()
	return best
}

func (p *Population) reproduce(ctx context.Context) ([]*model.Genome, error) {
	ranked := rankGenomes(p.genomes)
	speciesOf := p.speciation.set.ByGenome
	size := p.cfg.PopulationSize
	next := make([]*model.Genome, 0, size)

	elites := p.cfg.EliteCount
	if elites > len(ranked) {
		elites = len(ranked)
	}
	for i := 0; i < elites; i++ {
		elite := genotype.CloneAgent(ranked[i].Genome, ranked[i].Genome.ID)
		next = append(next, &elite)
	}

	plan := buildSpeciesOffspringPlan(ranked, speciesOf, size-len(next))
	for _, item := range plan {
		pool := p.survivors(filterRankedBySpecies(ranked, speciesOf, item.SpeciesID))
		if len(pool) == 0 {
			continue
		}
		for i := 0; i < item.Count && len(next) < size; i++ {
			child, err := p.breed(ctx, pool)
			if err != nil {
				return nil, err
			}
			next = append(next, child)
		}
	}

	for len(next) < size {
		child, err := p.breed(ctx, p.survivors(ranked))
		if err != nil {
			return nil, err
		}
		next = append(next, child)
	}
	return next, nil
}

func (p *Population) survivors(ranked []ScoredGenome) []ScoredGenome {
	keep := int(math.Ceil(float64(len(ranked)) * p.cfg.SurvivalThreshold))
	if keep < 1 {
		keep = 1
	}
	if keep > len(ranked) {
		keep = len(ranked)
	}
	return ranked[:keep]
}

func (p *Population) breed(ctx context.Context, pool []ScoredGenome) (*model.Genome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parent, err := p.pickParent(pool)
	if err != nil {
		return nil, err
	}
	base := parent
	if p.cfg.CrossoverRate > 0 && len(pool) > 1 && p.rng.Float64() < p.cfg.CrossoverRate {
		mate, err := p.pickParent(pool)
		if err != nil {
			return nil, err
		}
		if mate.Fitness > parent.Fitness {
			base = Crossover(p.rng, mate, parent)
		} else {
			base = Crossover(p.rng, parent, mate)
		}
	}

	p.nextKey++
	child := genotype.CloneAgent(base, fmt.Sprintf("%s-%d", p.cfg.GenomePrefix, p.nextKey))
	count := 1 + p.rng.Intn(p.cfg.MaxMutations)
	for step := 0; step < count; step++ {
		operator := p.chooseMutation()
		mutated, err := operator.Apply(ctx, child)
		if err != nil {
			if errors.Is(err, ErrNoSynapses) || errors.Is(err, ErrNoMutationChoice) {
				continue
			}
			return nil, fmt.Errorf("mutation %s on %s: %w", operator.Name(), child.ID, err)
		}
		child = mutated
	}
	return &child, nil
}

func (p *Population) pickParent(pool []ScoredGenome) (model.Genome, error) {
	eliteCount := p.cfg.EliteCount
	if eliteCount > len(pool) {
		eliteCount = len(pool)
	}
	if eliteCount <= 0 {
		eliteCount = 1
	}
	return p.cfg.Selector.PickParent(p.rng, pool, eliteCount)
}

func (p *Population) chooseMutation() Operator {
	total := 0.0
	for _, item := range p.cfg.MutationPolicy {
		total += item.Weight
	}
	pick := p.rng.Float64() * total
	acc := 0.0
	for _, item := range p.cfg.MutationPolicy {
		acc += item.Weight
		if pick <= acc {
			return item.Operator
		}
	}
	return p.cfg.MutationPolicy[len(p.cfg.MutationPolicy)-1].Operator
}

type speciesQuota struct {
	SpeciesID int
	Count     int
}

// buildSpeciesOffspringPlan shares totalOffspring between species in
// proportion to their mean fitness, largest remainders first.
func buildSpeciesOffspringPlan(ranked []ScoredGenome, speciesOf map[string]int, totalOffspring int) []speciesQuota {
	if totalOffspring <= 0 || len(ranked) == 0 {
		return nil
	}
	type agg struct {
		sum   float64
		size  int
		score float64
	}
	byID := map[int]*agg{}
	for _, item := range ranked {
		sid := speciesOf[item.Genome.ID]
		if byID[sid] == nil {
			byID[sid] = &agg{}
		}
		byID[sid].sum += item.Fitness
		byID[sid].size++
	}
	ids := sortedSpeciesIDs(byID)
	minMean := 0.0
	for i, sid := range ids {
		bucket := byID[sid]
		bucket.score = bucket.sum / float64(bucket.size)
		if i == 0 || bucket.score < minMean {
			minMean = bucket.score
		}
	}
	shift := 0.0
	if minMean <= 0 {
		shift = -minMean + 1e-9
	}
	totalScore := 0.0
	for _, sid := range ids {
		byID[sid].score += shift
		totalScore += byID[sid].score
	}
	if totalScore <= 0 {
		for _, sid := range ids {
			byID[sid].score = 1.0
		}
		totalScore = float64(len(ids))
	}

	type alloc struct {
		sid       int
		count     int
		remainder float64
	}
	allocs := make([]alloc, 0, len(ids))
	assigned := 0
	for _, sid := range ids {
		share := byID[sid].score / totalScore * float64(totalOffspring)
		base := int(math.Floor(share))
		allocs = append(allocs, alloc{sid: sid, count: base, remainder: share - float64(base)})
		assigned += base
	}
	left := totalOffspring - assigned
	sort.Slice(allocs, func(i, j int) bool {
		if allocs[i].remainder == allocs[j].remainder {
			return allocs[i].sid < allocs[j].sid
		}
		return allocs[i].remainder > allocs[j].remainder
	})
	for i := 0; i < left; i++ {
		allocs[i%len(allocs)].count++
	}
	sort.Slice(allocs, func(i, j int) bool { return allocs[i].sid < allocs[j].sid })

	out := make([]speciesQuota, 0, len(allocs))
	for _, item := range allocs {
		if item.count <= 0 {
			continue
		}
		out = append(out, speciesQuota{SpeciesID: item.sid, Count: item.count})
	}
	return out
}

func filterRankedBySpecies(ranked []ScoredGenome, speciesOf map[string]int, speciesID int) []ScoredGenome {
	out := make([]ScoredGenome, 0, len(ranked))
	for _, item := range ranked {
		if speciesOf[item.Genome.ID] == speciesID {
			out = append(out, item)
		}
	}
	return out
}
