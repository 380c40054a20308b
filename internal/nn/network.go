package nn

import (
	"errors"
	"fmt"
	"math"

	"koipond/internal/model"
)

var ErrInputWidth = errors.New("input width mismatch")

// Forward evaluates the genome in a single pass over its neurons, in the
// order they are listed. Neurons present in inputByNeuron keep their value.
func Forward(genome model.Genome, inputByNeuron map[string]float64) (map[string]float64, error) {
	values := make(map[string]float64, len(genome.Neurons))
	for neuronID, value := range inputByNeuron {
		values[neuronID] = value
	}

	incoming := make(map[string][]model.Synapse, len(genome.Neurons))
	for _, synapse := range genome.Synapses {
		if !synapse.Enabled {
			continue
		}
		incoming[synapse.To] = append(incoming[synapse.To], synapse)
	}

	for _, neuron := range genome.Neurons {
		if _, fixedInput := inputByNeuron[neuron.ID]; fixedInput {
			continue
		}

		total := neuron.Bias
		for _, synapse := range incoming[neuron.ID] {
			total += values[synapse.From] * synapse.Weight
		}

		activated, err := applyActivation(neuron.Activation, total)
		if err != nil {
			return nil, fmt.Errorf("neuron %s: %w", neuron.ID, err)
		}
		values[neuron.ID] = activated
	}

	return values, nil
}

func applyActivation(name string, x float64) (float64, error) {
	fn, err := GetActivation(name)
	if err != nil {
		return 0, fmt.Errorf("unsupported activation: %s", name)
	}
	return fn(x), nil
}

type link struct {
	from   int
	weight float64
}

type compiledNeuron struct {
	index    int
	bias     float64
	fn       ActivationFunc
	incoming []link
}

// Network is a feed-forward controller compiled from a genome. It is a pure
// function of its inputs and weights.
type Network struct {
	genomeID string
	width    int
	inputs   []int
	outputs  []int
	steps    []compiledNeuron
	values   []float64
}

// NewNetwork compiles genome into an index-addressed network. Synapses whose
// source is listed after their target are treated as reading the source's
// zero initial value, matching Forward.
func NewNetwork(genome model.Genome) (*Network, error) {
	if len(genome.InputIDs) == 0 {
		return nil, fmt.Errorf("genome %s: input ids are required", genome.ID)
	}
	if len(genome.OutputIDs) == 0 {
		return nil, fmt.Errorf("genome %s: output ids are required", genome.ID)
	}

	index := make(map[string]int, len(genome.Neurons))
	for i, neuron := range genome.Neurons {
		if _, dup := index[neuron.ID]; dup {
			return nil, fmt.Errorf("genome %s: duplicate neuron %s", genome.ID, neuron.ID)
		}
		index[neuron.ID] = i
	}

	isInput := make(map[string]bool, len(genome.InputIDs))
	inputs := make([]int, 0, len(genome.InputIDs))
	for _, id := range genome.InputIDs {
		idx, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("genome %s: unknown input neuron %s", genome.ID, id)
		}
		isInput[id] = true
		inputs = append(inputs, idx)
	}
	outputs := make([]int, 0, len(genome.OutputIDs))
	for _, id := range genome.OutputIDs {
		idx, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("genome %s: unknown output neuron %s", genome.ID, id)
		}
		outputs = append(outputs, idx)
	}

	incoming := make(map[string][]link, len(genome.Neurons))
	for _, synapse := range genome.Synapses {
		if !synapse.Enabled {
			continue
		}
		from, ok := index[synapse.From]
		if !ok {
			return nil, fmt.Errorf("genome %s: synapse %s has unknown source %s", genome.ID, synapse.ID, synapse.From)
		}
		if _, ok := index[synapse.To]; !ok {
			return nil, fmt.Errorf("genome %s: synapse %s has unknown target %s", genome.ID, synapse.ID, synapse.To)
		}
		incoming[synapse.To] = append(incoming[synapse.To], link{from: from, weight: synapse.Weight})
	}

	steps := make([]compiledNeuron, 0, len(genome.Neurons)-len(inputs))
	for i, neuron := range genome.Neurons {
		if isInput[neuron.ID] {
			continue
		}
		fn, err := GetActivation(neuron.Activation)
		if err != nil {
			return nil, fmt.Errorf("genome %s neuron %s: %w", genome.ID, neuron.ID, err)
		}
		steps = append(steps, compiledNeuron{
			index:    i,
			bias:     neuron.Bias,
			fn:       fn,
			incoming: incoming[neuron.ID],
		})
	}

	return &Network{
		genomeID: genome.ID,
		width:    len(genome.Neurons),
		inputs:   inputs,
		outputs:  outputs,
		steps:    steps,
		values:   make([]float64, len(genome.Neurons)),
	}, nil
}

func (n *Network) InputWidth() int  { return len(n.inputs) }
func (n *Network) OutputWidth() int { return len(n.outputs) }

// Activate runs one forward pass. Non-finite outputs are reported as errors
// so callers can treat a diverging network as a failed decision.
func (n *Network) Activate(inputs []float64) ([]float64, error) {
	if len(inputs) != len(n.inputs) {
		return nil, fmt.Errorf("%w: genome %s got=%d want=%d", ErrInputWidth, n.genomeID, len(inputs), len(n.inputs))
	}
	for i := range n.values {
		n.values[i] = 0
	}
	for i, idx := range n.inputs {
		n.values[idx] = inputs[i]
	}
	for _, step := range n.steps {
		total := step.bias
		for _, in := range step.incoming {
			total += n.values[in.from] * in.weight
		}
		n.values[step.index] = step.fn(total)
	}

	out := make([]float64, len(n.outputs))
	for i, idx := range n.outputs {
		v := n.values[idx]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("genome %s: non-finite output %d", n.genomeID, i)
		}
		out[i] = v
	}
	return out, nil
}
