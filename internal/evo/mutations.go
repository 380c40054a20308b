package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"koipond/internal/genotype"
	"koipond/internal/model"
	"koipond/internal/nn"
)

var (
	ErrNoSynapses       = errors.New("genome has no synapses")
	ErrNoMutationChoice = errors.New("no mutation choice available")
)

// PerturbRandomWeight mutates a random synapse using uniform delta in [-MaxDelta, MaxDelta].
type PerturbRandomWeight struct {
	Rand     *rand.Rand
	MaxDelta float64
}

func (o *PerturbRandomWeight) Name() string {
	return "perturb_random_weight"
}

func (o *PerturbRandomWeight) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if len(genome.Synapses) == 0 {
		return model.Genome{}, ErrNoSynapses
	}
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	if o.MaxDelta <= 0 {
		return model.Genome{}, errors.New("max delta must be > 0")
	}

	idx := o.Rand.Intn(len(genome.Synapses))
	delta := (o.Rand.Float64()*2 - 1) * o.MaxDelta

	mutated := cloneGenome(genome)
	mutated.Synapses[idx].Weight += delta
	return mutated, nil
}

// PerturbRandomBias shifts the bias of a random non-input neuron.
type PerturbRandomBias struct {
	Rand     *rand.Rand
	MaxDelta float64
}

func (o *PerturbRandomBias) Name() string {
	return "perturb_random_bias"
}

func (o *PerturbRandomBias) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	if o.MaxDelta <= 0 {
		return model.Genome{}, errors.New("max delta must be > 0")
	}
	candidates := nonInputIndexes(genome)
	if len(candidates) == 0 {
		return model.Genome{}, ErrNoMutationChoice
	}

	idx := candidates[o.Rand.Intn(len(candidates))]
	mutated := cloneGenome(genome)
	mutated.Neurons[idx].Bias += (o.Rand.Float64()*2 - 1) * o.MaxDelta
	return mutated, nil
}

// ToggleRandomSynapse flips the enabled flag of one synapse.
type ToggleRandomSynapse struct {
	Rand *rand.Rand
}

func (o *ToggleRandomSynapse) Name() string {
	return "toggle_random_synapse"
}

func (o *ToggleRandomSynapse) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if len(genome.Synapses) == 0 {
		return model.Genome{}, ErrNoSynapses
	}
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	idx := o.Rand.Intn(len(genome.Synapses))
	mutated := cloneGenome(genome)
	mutated.Synapses[idx].Enabled = !mutated.Synapses[idx].Enabled
	return mutated, nil
}

// AddRandomSynapse connects two unconnected neurons. The source always sits
// earlier in neuron order than the target, so the network stays feed-forward.
type AddRandomSynapse struct {
	Rand      *rand.Rand
	MaxWeight float64
}

func (o *AddRandomSynapse) Name() string {
	return "add_random_synapse"
}

func (o *AddRandomSynapse) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	maxWeight := o.MaxWeight
	if maxWeight <= 0 {
		maxWeight = 1
	}

	inputs := toIDSet(genome.InputIDs)
	type pair struct{ from, to string }
	pairs := make([]pair, 0)
	for i, from := range genome.Neurons {
		for _, to := range genome.Neurons[i+1:] {
			if _, isInput := inputs[to.ID]; isInput {
				continue
			}
			if hasDirectedSynapse(genome, from.ID, to.ID) {
				continue
			}
			pairs = append(pairs, pair{from: from.ID, to: to.ID})
		}
	}
	if len(pairs) == 0 {
		return model.Genome{}, ErrNoMutationChoice
	}

	picked := pairs[o.Rand.Intn(len(pairs))]
	mutated := cloneGenome(genome)
	mutated.Synapses = append(mutated.Synapses, model.Synapse{
		ID:      synapseID(picked.from, picked.to),
		From:    picked.from,
		To:      picked.to,
		Weight:  (o.Rand.Float64()*2 - 1) * maxWeight,
		Enabled: true,
	})
	return mutated, nil
}

// AddRandomNeuron inserts a neuron by splitting a random enabled synapse.
// The old synapse is disabled, the incoming link gets weight 1 and the
// outgoing link inherits the old weight.
type AddRandomNeuron struct {
	Rand        *rand.Rand
	Activations []string
}

func (o *AddRandomNeuron) Name() string {
	return "add_random_neuron"
}

func (o *AddRandomNeuron) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if len(genome.Synapses) == 0 {
		return model.Genome{}, ErrNoSynapses
	}
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	enabled := make([]int, 0, len(genome.Synapses))
	for i, syn := range genome.Synapses {
		if syn.Enabled {
			enabled = append(enabled, i)
		}
	}
	if len(enabled) == 0 {
		return model.Genome{}, ErrNoMutationChoice
	}

	activation := "tanh"
	if len(o.Activations) > 0 {
		picked, err := genotype.RandomElement(o.Rand, o.Activations)
		if err != nil {
			return model.Genome{}, err
		}
		activation = picked
	}
	if _, err := nn.GetActivation(activation); err != nil {
		return model.Genome{}, err
	}

	mutated := cloneGenome(genome)
	split := mutated.Synapses[enabled[o.Rand.Intn(len(enabled))]]
	targetIdx := neuronIndex(mutated, split.To)
	if targetIdx < 0 {
		return model.Genome{}, fmt.Errorf("synapse %s targets unknown neuron %s", split.ID, split.To)
	}

	neuronID := uniqueNeuronID(mutated, o.Rand)
	neurons := make([]model.Neuron, 0, len(mutated.Neurons)+1)
	neurons = append(neurons, mutated.Neurons[:targetIdx]...)
	neurons = append(neurons, model.Neuron{ID: neuronID, Activation: activation})
	neurons = append(neurons, mutated.Neurons[targetIdx:]...)
	mutated.Neurons = neurons

	for i := range mutated.Synapses {
		if mutated.Synapses[i].ID == split.ID {
			mutated.Synapses[i].Enabled = false
		}
	}
	mutated.Synapses = append(mutated.Synapses,
		model.Synapse{ID: synapseID(split.From, neuronID), From: split.From, To: neuronID, Weight: 1, Enabled: true},
		model.Synapse{ID: synapseID(neuronID, split.To), From: neuronID, To: split.To, Weight: split.Weight, Enabled: true},
	)
	return mutated, nil
}

// ChangeRandomActivation swaps the activation of a random non-input neuron.
type ChangeRandomActivation struct {
	Rand        *rand.Rand
	Activations []string
}

func (o *ChangeRandomActivation) Name() string {
	return "change_random_activation"
}

func (o *ChangeRandomActivation) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	choices := o.Activations
	if len(choices) == 0 {
		choices = nn.ListActivations()
	}
	candidates := nonInputIndexes(genome)
	if len(candidates) == 0 || len(choices) == 0 {
		return model.Genome{}, ErrNoMutationChoice
	}

	idx := candidates[o.Rand.Intn(len(candidates))]
	activation, err := genotype.RandomElement(o.Rand, choices)
	if err != nil {
		return model.Genome{}, err
	}
	mutated := cloneGenome(genome)
	mutated.Neurons[idx].Activation = activation
	return mutated, nil
}

// Crossover builds a child from the fitter parent's structure, taking each
// matching synapse weight from either parent with equal probability.
func Crossover(rng *rand.Rand, fitter, other model.Genome) model.Genome {
	child := cloneGenome(fitter)
	weights := make(map[string]float64, len(other.Synapses))
	for _, syn := range other.Synapses {
		weights[syn.ID] = syn.Weight
	}
	for i := range child.Synapses {
		if w, ok := weights[child.Synapses[i].ID]; ok && rng.Intn(2) == 0 {
			child.Synapses[i].Weight = w
		}
	}
	return child
}

// DefaultMutationPolicy is the operator mix used when none is configured.
func DefaultMutationPolicy(rng *rand.Rand, activations []string) []WeightedMutation {
	return []WeightedMutation{
		{Operator: &PerturbRandomWeight{Rand: rng, MaxDelta: 0.5}, Weight: 0.5},
		{Operator: &PerturbRandomBias{Rand: rng, MaxDelta: 0.3}, Weight: 0.2},
		{Operator: &AddRandomSynapse{Rand: rng, MaxWeight: 1}, Weight: 0.12},
		{Operator: &AddRandomNeuron{Rand: rng, Activations: activations}, Weight: 0.08},
		{Operator: &ToggleRandomSynapse{Rand: rng}, Weight: 0.05},
		{Operator: &ChangeRandomActivation{Rand: rng, Activations: activations}, Weight: 0.05},
	}
}

func cloneGenome(g model.Genome) model.Genome {
	return genotype.CloneGenome(g)
}

func nonInputIndexes(g model.Genome) []int {
	inputs := toIDSet(g.InputIDs)
	out := make([]int, 0, len(g.Neurons))
	for i, n := range g.Neurons {
		if _, ok := inputs[n.ID]; !ok {
			out = append(out, i)
		}
	}
	return out
}

func neuronIndex(g model.Genome, id string) int {
	for i, n := range g.Neurons {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func hasNeuron(g model.Genome, id string) bool {
	return neuronIndex(g, id) >= 0
}

func hasDirectedSynapse(g model.Genome, from, to string) bool {
	for _, syn := range g.Synapses {
		if syn.From == from && syn.To == to {
			return true
		}
	}
	return false
}

// synapseID is derived from the endpoints; the same connection carries the
// same id in every genome.
func synapseID(from, to string) string {
	return from + "->" + to
}

func uniqueNeuronID(g model.Genome, rng *rand.Rand) string {
	for {
		candidate := fmt.Sprintf("h-%d", rng.Int63())
		if !hasNeuron(g, candidate) {
			return candidate
		}
	}
}

func toIDSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
