package genotype

import (
	"math/rand"
	"testing"

	"koipond/internal/model"
)

type stubOccupant struct{ id string }

func (s *stubOccupant) OccupantID() string             { return s.id }
func (s *stubOccupant) DetachResource() model.Resource { return nil }
func (s *stubOccupant) AttachResource(model.Resource)  {}

func TestCloneGenomeIsDeep(t *testing.T) {
	genome, err := ConstructSeed("g", SeedSpec{Inputs: 3, Outputs: 2}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	clone := CloneGenome(genome)
	clone.Synapses[0].Weight = 42
	clone.Neurons[0].Bias = 7
	clone.InputIDs[0] = "changed"

	if genome.Synapses[0].Weight == 42 || genome.Neurons[0].Bias == 7 || genome.InputIDs[0] == "changed" {
		t.Fatal("clone shares backing arrays with the original")
	}
}

func TestCloneAgentResetsEvaluationState(t *testing.T) {
	genome, err := ConstructSeed("g", SeedSpec{Inputs: 2, Outputs: 1}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	genome.SetFitness(12)
	genome.RaiseHighestFitness(30)
	genome.Attach(&stubOccupant{id: "koi"})

	child := CloneAgent(genome, "child")
	if child.ID != "child" {
		t.Fatalf("unexpected id: %s", child.ID)
	}
	if child.Fitness != 0 || child.HighestFitness != 0 || child.Evaluated || child.Occupant != nil {
		t.Fatalf("clone kept evaluation state: %+v", child)
	}
	if genome.Occupant == nil {
		t.Fatal("cloning detached the original occupant")
	}
}

func TestCloneSpeciesSetIsDeep(t *testing.T) {
	in := model.SpeciesSet{
		Threshold:       1.5,
		NextID:          3,
		Representatives: map[int]string{1: "a", 2: "c"},
		Members:         map[int][]string{1: {"a", "b"}, 2: {"c"}},
		ByGenome:        map[string]int{"a": 1, "b": 1, "c": 2},
		Created:         map[int]int{1: 0, 2: 4},
	}
	out := CloneSpeciesSet(in)
	out.Members[1][0] = "z"
	out.ByGenome["d"] = 2
	out.Representatives[1] = "b"
	if in.Members[1][0] != "a" || len(in.ByGenome) != 3 || in.Representatives[1] != "a" {
		t.Fatalf("clone shares state with the source: %+v", in)
	}
	if out.Threshold != 1.5 || out.NextID != 3 || out.Created[2] != 4 {
		t.Fatalf("clone lost scalar fields: %+v", out)
	}
}
