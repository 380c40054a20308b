package genotype

import (
	"fmt"
	"math/rand"
	"strings"

	"koipond/internal/model"
	"koipond/internal/storage"
)

// SeedSpec describes the fixed input/output contract of seed genomes.
type SeedSpec struct {
	Inputs  int
	Outputs int
	// Density is the probability that a given input is wired to a given
	// output in the seed. Zero means fully connected.
	Density          float64
	OutputActivation string
	WeightScale      float64
}

func InputID(i int) string  { return fmt.Sprintf("in-%02d", i) }
func OutputID(i int) string { return fmt.Sprintf("out-%d", i) }

// ConstructSeed builds a minimal genome with every input neuron followed by
// every output neuron and direct input->output synapses.
func ConstructSeed(id string, spec SeedSpec, rng *rand.Rand) (model.Genome, error) {
	if strings.TrimSpace(id) == "" {
		return model.Genome{}, fmt.Errorf("genome id is required")
	}
	if spec.Inputs <= 0 || spec.Outputs <= 0 {
		return model.Genome{}, fmt.Errorf("seed spec requires inputs and outputs, got %d/%d", spec.Inputs, spec.Outputs)
	}
	rng = ensureRNG(rng)
	activation := spec.OutputActivation
	if activation == "" {
		activation = "tanh"
	}
	scale := spec.WeightScale
	if scale <= 0 {
		scale = 2
	}

	genome := model.Genome{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:        id,
		Neurons:   make([]model.Neuron, 0, spec.Inputs+spec.Outputs),
		InputIDs:  make([]string, 0, spec.Inputs),
		OutputIDs: make([]string, 0, spec.Outputs),
	}
	for i := 0; i < spec.Inputs; i++ {
		nid := InputID(i)
		genome.Neurons = append(genome.Neurons, model.Neuron{ID: nid, Activation: "identity"})
		genome.InputIDs = append(genome.InputIDs, nid)
	}
	for o := 0; o < spec.Outputs; o++ {
		nid := OutputID(o)
		genome.Neurons = append(genome.Neurons, model.Neuron{
			ID:         nid,
			Activation: activation,
			Bias:       randomCentered(rng),
		})
		genome.OutputIDs = append(genome.OutputIDs, nid)
	}
	for o := 0; o < spec.Outputs; o++ {
		for i := 0; i < spec.Inputs; i++ {
			if spec.Density > 0 && rng.Float64() >= spec.Density {
				continue
			}
			genome.Synapses = append(genome.Synapses, model.Synapse{
				ID:      fmt.Sprintf("%s->%s", InputID(i), OutputID(o)),
				From:    InputID(i),
				To:      OutputID(o),
				Weight:  randomCentered(rng) * scale,
				Enabled: true,
			})
		}
	}
	return genome, nil
}

// ConstructPopulation seeds size genomes with ids "<prefix>-<n>".
func ConstructPopulation(prefix string, size int, spec SeedSpec, rng *rand.Rand) ([]model.Genome, error) {
	if size <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	rng = ensureRNG(rng)
	out := make([]model.Genome, 0, size)
	for i := 0; i < size; i++ {
		genome, err := ConstructSeed(fmt.Sprintf("%s-%d", prefix, i+1), spec, rng)
		if err != nil {
			return nil, err
		}
		out = append(out, genome)
	}
	return out, nil
}
