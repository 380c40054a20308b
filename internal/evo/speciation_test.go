package evo

import (
	"testing"

	"koipond/internal/model"
)

func ptrs(genomes ...model.Genome) []*model.Genome {
	out := make([]*model.Genome, 0, len(genomes))
	for i := range genomes {
		out = append(out, &genomes[i])
	}
	return out
}

func TestGenomeCompatibilityDistance(t *testing.T) {
	a := newLinearGenome("a", 1.0)
	b := newLinearGenome("b", 1.0)
	c := newComplexLinearGenome("c", 1.0)

	if d := GenomeCompatibilityDistance(a, b); d != 0 {
		t.Fatalf("expected identical genomes to have zero distance, got %f", d)
	}
	if d := GenomeCompatibilityDistance(a, c); d <= 0 {
		t.Fatalf("expected different topologies to have positive distance, got %f", d)
	}
	w := newLinearGenome("w", 3.0)
	if d := GenomeCompatibilityDistance(a, w); d != 1.0 {
		t.Fatalf("expected weight-only distance 1.0, got %f", d)
	}
}

func TestAdaptiveSpeciationAdjustsThresholdTowardTarget(t *testing.T) {
	spec := NewAdaptiveSpeciation(4)
	spec.TargetSpeciesCount = 1
	spec.set.Threshold = 0.05
	spec.MinThreshold = 0.01
	spec.MaxThreshold = 5.0
	spec.AdjustStep = 0.5

	genomes := ptrs(newLinearGenome("g0", 1.0), newComplexLinearGenome("g1", 1.0))
	stats := spec.Assign(genomes, 0)
	if stats.SpeciesCount <= 1 {
		t.Fatalf("expected at least 2 species with low threshold, got %d", stats.SpeciesCount)
	}
	if stats.Threshold <= 0.05 {
		t.Fatalf("expected threshold to increase when species exceed target, got %f", stats.Threshold)
	}

	spec.TargetSpeciesCount = 5
	before := spec.Threshold()
	stats = spec.Assign(genomes, 1)
	if stats.Threshold >= before {
		t.Fatalf("expected threshold to decrease, before=%f after=%f", before, stats.Threshold)
	}
}

func TestAdaptiveSpeciationMaintainsSpeciesIdentityAcrossGenerations(t *testing.T) {
	spec := NewAdaptiveSpeciation(8)
	spec.set.Threshold = 0.6
	spec.AdjustStep = 0

	gen1 := ptrs(
		newLinearGenome("a0", 1.0),
		newLinearGenome("a1", 0.8),
		newComplexLinearGenome("b0", 1.0),
		newComplexLinearGenome("b1", 0.7),
	)
	stats := spec.Assign(gen1, 0)
	if stats.SpeciesCount != 2 {
		t.Fatalf("expected 2 species, got %d", stats.SpeciesCount)
	}
	set1 := spec.Set()
	linearSpecies := set1.SpeciesOf("a0")
	complexSpecies := set1.SpeciesOf("b0")
	if linearSpecies == complexSpecies || linearSpecies == 0 {
		t.Fatalf("unexpected species ids %d %d", linearSpecies, complexSpecies)
	}

	gen2 := ptrs(
		newComplexLinearGenome("b2", 0.9),
		newLinearGenome("a2", 0.9),
		newLinearGenome("a3", 0.85),
		newComplexLinearGenome("b3", 0.75),
	)
	stats = spec.Assign(gen2, 1)
	set2 := spec.Set()
	if set2.SpeciesOf("a2") != linearSpecies || set2.SpeciesOf("b2") != complexSpecies {
		t.Fatalf("species ids were not carried over: %+v", set2.ByGenome)
	}
	if len(stats.NewSpecies) != 0 || len(stats.ExtinctSpecies) != 0 {
		t.Fatalf("expected no species turnover, got new=%v extinct=%v", stats.NewSpecies, stats.ExtinctSpecies)
	}
	if set2.Created[linearSpecies] != 0 {
		t.Fatalf("creation generation should be kept, got %d", set2.Created[linearSpecies])
	}
}

func TestAdaptiveSpeciationReportsExtinction(t *testing.T) {
	spec := NewAdaptiveSpeciation(4)
	spec.set.Threshold = 0.6
	spec.AdjustStep = 0

	spec.Assign(ptrs(newLinearGenome("a0", 1.0), newComplexLinearGenome("b0", 1.0)), 0)
	stats := spec.Assign(ptrs(newLinearGenome("a1", 1.0)), 1)
	if len(stats.ExtinctSpecies) != 1 {
		t.Fatalf("expected one extinct species, got %v", stats.ExtinctSpecies)
	}
	if got := len(spec.Set().Created); got != 1 {
		t.Fatalf("expected extinct species to be dropped, have %d", got)
	}
}

func TestRestoreSpeciationKeepsRepresentatives(t *testing.T) {
	spec := NewAdaptiveSpeciation(4)
	spec.set.Threshold = 0.6
	genomes := ptrs(newLinearGenome("a0", 1.0), newComplexLinearGenome("b0", 1.0))
	spec.Assign(genomes, 0)
	saved := spec.Set()

	restored := RestoreSpeciation(4, saved, genomes)
	if len(restored.reps) != 2 {
		t.Fatalf("expected 2 restored representatives, got %d", len(restored.reps))
	}
	restored.AdjustStep = 0
	restored.Assign(ptrs(newLinearGenome("a1", 1.0)), 1)
	restoredSet := restored.Set()
	if restoredSet.SpeciesOf("a1") != saved.SpeciesOf("a0") {
		t.Fatalf("restored speciation did not keep species identity")
	}
}
