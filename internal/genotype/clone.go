package genotype

import (
	"maps"

	"koipond/internal/model"
)

// CloneGenome deep copies the slices of g. The Occupant back-reference is
// carried over as-is; callers that need a cycle-free copy detach it first.
func CloneGenome(g model.Genome) model.Genome {
	out := g
	out.Neurons = append([]model.Neuron(nil), g.Neurons...)
	out.Synapses = append([]model.Synapse(nil), g.Synapses...)
	out.InputIDs = append([]string(nil), g.InputIDs...)
	out.OutputIDs = append([]string(nil), g.OutputIDs...)
	return out
}

// CloneAgent clones g under a new id with fresh evaluation state.
func CloneAgent(g model.Genome, newID string) model.Genome {
	out := CloneGenome(g)
	out.ID = newID
	out.Occupant = nil
	out.Fitness = 0
	out.HighestFitness = 0
	out.Evaluated = false
	return out
}

// CloneSpeciesSet deep copies a species partition.
func CloneSpeciesSet(in model.SpeciesSet) model.SpeciesSet {
	out := model.SpeciesSet{
		Threshold:       in.Threshold,
		NextID:          in.NextID,
		Representatives: make(map[int]string, len(in.Representatives)),
		Members:         make(map[int][]string, len(in.Members)),
		ByGenome:        make(map[string]int, len(in.ByGenome)),
		Created:         make(map[int]int, len(in.Created)),
	}
	maps.Copy(out.Representatives, in.Representatives)
	maps.Copy(out.ByGenome, in.ByGenome)
	maps.Copy(out.Created, in.Created)
	for id, members := range in.Members {
		out.Members[id] = append([]string(nil), members...)
	}
	return out
}
