package evo

import (
	"math"
	"sort"

	"koipond/internal/genotype"
	"koipond/internal/model"
)

// SpeciationStats captures per-generation species partitioning diagnostics.
type SpeciationStats struct {
	SpeciesCount       int
	TargetSpeciesCount int
	Threshold          float64
	MeanSpeciesSize    float64
	LargestSpeciesSize int
	NewSpecies         []int
	ExtinctSpecies     []int
}

// AdaptiveSpeciation tracks a compatibility threshold and nudges it toward a
// target species count each generation. Species ids are stable across
// generations: each existing species keeps the member closest to its previous
// representative.
type AdaptiveSpeciation struct {
	TargetSpeciesCount int
	MinThreshold       float64
	MaxThreshold       float64
	AdjustStep         float64

	set  model.SpeciesSet
	reps map[int]model.Genome
}

func NewAdaptiveSpeciation(populationSize int) *AdaptiveSpeciation {
	target := int(math.Sqrt(float64(populationSize)))
	if target < 2 {
		target = 2
	}
	return &AdaptiveSpeciation{
		TargetSpeciesCount: target,
		MinThreshold:       0.05,
		MaxThreshold:       8.0,
		AdjustStep:         0.1,
		set: model.SpeciesSet{
			Threshold:       1.0,
			NextID:          1,
			Representatives: map[int]string{},
			Members:         map[int][]string{},
			ByGenome:        map[string]int{},
			Created:         map[int]int{},
		},
		reps: map[int]model.Genome{},
	}
}

// RestoreSpeciation rebuilds speciation state from a saved set. Representative
// genomes are looked up among population.
func RestoreSpeciation(populationSize int, set model.SpeciesSet, population []*model.Genome) *AdaptiveSpeciation {
	s := NewAdaptiveSpeciation(populationSize)
	s.set = genotype.CloneSpeciesSet(set)
	if s.set.NextID <= 0 {
		s.set.NextID = 1
	}
	byID := make(map[string]*model.Genome, len(population))
	for _, g := range population {
		byID[g.ID] = g
	}
	for sid, gid := range s.set.Representatives {
		if g, ok := byID[gid]; ok {
			s.reps[sid] = cloneGenome(*g)
		}
	}
	return s
}

func (s *AdaptiveSpeciation) Threshold() float64 {
	return s.set.Threshold
}

// Set returns a copy of the current species set.
func (s *AdaptiveSpeciation) Set() model.SpeciesSet {
	return genotype.CloneSpeciesSet(s.set)
}

// Assign partitions genomes into species for the given generation.
func (s *AdaptiveSpeciation) Assign(genomes []*model.Genome, generation int) SpeciationStats {
	threshold := s.set.Threshold
	previous := make(map[int]struct{}, len(s.set.Members))
	for sid := range s.set.Members {
		previous[sid] = struct{}{}
	}

	unspeciated := make([]*model.Genome, len(genomes))
	copy(unspeciated, genomes)
	members := map[int][]string{}
	byGenome := map[string]int{}
	newReps := map[int]model.Genome{}

	for _, sid := range sortedSpeciesIDs(s.reps) {
		rep := s.reps[sid]
		bestIdx := -1
		bestDistance := math.MaxFloat64
		for i, g := range unspeciated {
			d := GenomeCompatibilityDistance(rep, *g)
			if d < bestDistance {
				bestDistance = d
				bestIdx = i
			}
		}
		if bestIdx < 0 || bestDistance > threshold {
			continue
		}
		picked := unspeciated[bestIdx]
		unspeciated = append(unspeciated[:bestIdx], unspeciated[bestIdx+1:]...)
		newReps[sid] = cloneGenome(*picked)
		members[sid] = append(members[sid], picked.ID)
		byGenome[picked.ID] = sid
	}

	for _, g := range unspeciated {
		bestSID := 0
		bestDistance := math.MaxFloat64
		for _, sid := range sortedSpeciesIDs(newReps) {
			d := GenomeCompatibilityDistance(newReps[sid], *g)
			if d < bestDistance {
				bestDistance = d
				bestSID = sid
			}
		}
		if bestSID == 0 || bestDistance > threshold {
			bestSID = s.set.NextID
			s.set.NextID++
			newReps[bestSID] = cloneGenome(*g)
			s.set.Created[bestSID] = generation
		}
		members[bestSID] = append(members[bestSID], g.ID)
		byGenome[g.ID] = bestSID
	}

	count := len(members)
	if count > s.TargetSpeciesCount {
		s.set.Threshold = math.Min(s.MaxThreshold, threshold+s.AdjustStep)
	} else if count < s.TargetSpeciesCount {
		s.set.Threshold = math.Max(s.MinThreshold, threshold-s.AdjustStep)
	}

	s.reps = newReps
	s.set.Members = members
	s.set.ByGenome = byGenome
	s.set.Representatives = make(map[int]string, len(newReps))
	for sid, rep := range newReps {
		s.set.Representatives[sid] = rep.ID
	}
	for sid := range s.set.Created {
		if _, alive := members[sid]; !alive {
			delete(s.set.Created, sid)
		}
	}

	stats := SpeciationStats{
		SpeciesCount:       count,
		TargetSpeciesCount: s.TargetSpeciesCount,
		Threshold:          s.set.Threshold,
	}
	largest := 0
	for sid, ids := range members {
		if len(ids) > largest {
			largest = len(ids)
		}
		if _, ok := previous[sid]; !ok {
			stats.NewSpecies = append(stats.NewSpecies, sid)
		}
	}
	for sid := range previous {
		if _, ok := members[sid]; !ok {
			stats.ExtinctSpecies = append(stats.ExtinctSpecies, sid)
		}
	}
	sort.Ints(stats.NewSpecies)
	sort.Ints(stats.ExtinctSpecies)
	stats.LargestSpeciesSize = largest
	if count > 0 {
		stats.MeanSpeciesSize = float64(len(genomes)) / float64(count)
	}
	return stats
}

// GenomeCompatibilityDistance scores two genomes by the share of synapses
// they do not have in common plus the mean weight difference of shared ones.
func GenomeCompatibilityDistance(a, b model.Genome) float64 {
	weightsA := make(map[string]float64, len(a.Synapses))
	for _, syn := range a.Synapses {
		if syn.Enabled {
			weightsA[syn.ID] = syn.Weight
		}
	}
	shared := 0
	weightDelta := 0.0
	onlyB := 0
	for _, syn := range b.Synapses {
		if !syn.Enabled {
			continue
		}
		w, ok := weightsA[syn.ID]
		if !ok {
			onlyB++
			continue
		}
		shared++
		weightDelta += math.Abs(w - syn.Weight)
	}
	onlyA := len(weightsA) - shared

	larger := len(weightsA)
	if shared+onlyB > larger {
		larger = shared + onlyB
	}
	if larger == 0 {
		return 0
	}
	dist := float64(onlyA+onlyB) / float64(larger)
	if shared > 0 {
		dist += 0.5 * weightDelta / float64(shared)
	}
	dist += 0.5 * math.Abs(float64(len(a.Neurons)-len(b.Neurons))) / float64(max(len(a.Neurons), len(b.Neurons), 1))
	return dist
}

func sortedSpeciesIDs[V any](m map[int]V) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
