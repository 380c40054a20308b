package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Genome is the evolvable record behind one controller. Fitness and
// HighestFitness are written back by the generation evaluator.
//
// Occupant is the live back-reference to the agent evaluating this genome.
// It is only set while a generation is in flight and must be detached before
// the genome is serialized.
type Genome struct {
	VersionedRecord
	ID             string    `json:"id"`
	Neurons        []Neuron  `json:"neurons"`
	Synapses       []Synapse `json:"synapses"`
	InputIDs       []string  `json:"input_ids"`
	OutputIDs      []string  `json:"output_ids"`
	Fitness        float64   `json:"fitness"`
	HighestFitness float64   `json:"highest_fitness"`
	Evaluated      bool      `json:"evaluated"`

	Occupant Occupant `json:"-"`
}

type Neuron struct {
	ID         string  `json:"id"`
	Activation string  `json:"activation"`
	Bias       float64 `json:"bias"`
}

type Synapse struct {
	ID      string  `json:"id"`
	From    string  `json:"from"`
	To      string  `json:"to"`
	Weight  float64 `json:"weight"`
	Enabled bool    `json:"enabled"`
}

// Resource is a non-serializable handle held on behalf of a live agent, such
// as a display sprite owned by a renderer.
type Resource interface {
	Release() error
}

// Occupant is the live simulation object bound to a genome for the duration
// of one generation.
type Occupant interface {
	OccupantID() string
	DetachResource() Resource
	AttachResource(Resource)
}

// Attach binds a live occupant to the genome.
func (g *Genome) Attach(o Occupant) {
	g.Occupant = o
}

// Detach clears the back-reference and returns what was attached.
func (g *Genome) Detach() Occupant {
	o := g.Occupant
	g.Occupant = nil
	return o
}

func (g *Genome) SetFitness(f float64) {
	g.Fitness = f
	g.Evaluated = true
}

// RaiseHighestFitness ratchets HighestFitness to at least f.
func (g *Genome) RaiseHighestFitness(f float64) {
	if f > g.HighestFitness {
		g.HighestFitness = f
	}
}

// SpeciesSet partitions a population by compatibility. Representatives are
// genome ids from the generation the set was last assigned in.
type SpeciesSet struct {
	Threshold       float64          `json:"threshold"`
	NextID          int              `json:"next_id"`
	Representatives map[int]string   `json:"representatives"`
	Members         map[int][]string `json:"members"`
	ByGenome        map[string]int   `json:"by_genome"`
	Created         map[int]int      `json:"created"`
}

// SpeciesOf returns the species id for a genome, or zero when unknown.
func (s *SpeciesSet) SpeciesOf(genomeID string) int {
	if s == nil {
		return 0
	}
	return s.ByGenome[genomeID]
}

// Snapshot is the cycle-free checkpoint unit. It is only ever built as an
// isolated copy for serialization and never used as live state.
type Snapshot struct {
	VersionedRecord
	ID            string            `json:"id"`
	RunID         string            `json:"run_id"`
	Generation    int               `json:"generation"`
	Population    map[string]Genome `json:"population"`
	Order         []string          `json:"order"`
	Species       SpeciesSet        `json:"species"`
	Seed          int64             `json:"seed"`
	NextGenomeKey int               `json:"next_genome_key"`
}

// AgentSnapshot is the read-only view of an agent handed to collaborators.
type AgentSnapshot struct {
	GenomeID       string     `json:"genome_id"`
	Position       [2]float64 `json:"position"`
	LastPosition   [2]float64 `json:"last_position"`
	Radius         float64    `json:"radius"`
	SpeciesID      int        `json:"species_id"`
	ColorKey       string     `json:"color_key"`
	Hunger         float64    `json:"hunger"`
	Energy         float64    `json:"energy"`
	FoodConsumed   int        `json:"food_consumed"`
	StepsTaken     int        `json:"steps_taken"`
	HighestFitness float64    `json:"highest_fitness"`
}

// GenerationPoint is one entry of a species' fitness history.
type GenerationPoint struct {
	Generation int     `json:"generation"`
	Fitness    float64 `json:"fitness"`
}

// SpeciesRecord is a leaderboard entry for one species.
type SpeciesRecord struct {
	SpeciesID       int               `json:"species_id"`
	ScientificName  string            `json:"scientific_name"`
	HighestFitness  float64           `json:"highest_fitness"`
	FirstGeneration int               `json:"first_generation"`
	LastGeneration  int               `json:"last_generation"`
	Size            float64           `json:"size"`
	ColorKey        string            `json:"color_key"`
	History         []GenerationPoint `json:"history"`
}

// GenerationDiagnostics summarizes one evaluated generation.
type GenerationDiagnostics struct {
	Generation   int     `json:"generation"`
	BestFitness  float64 `json:"best_fitness"`
	MeanFitness  float64 `json:"mean_fitness"`
	MinFitness   float64 `json:"min_fitness"`
	SpeciesCount int     `json:"species_count"`
	Survivors    int     `json:"survivors"`
	BestGenomeID string  `json:"best_genome_id"`
}

// CheckpointRecord wraps an encoded Snapshot for a store. Blob is opaque to
// the store.
type CheckpointRecord struct {
	VersionedRecord
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Generation int       `json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
	Blob       []byte    `json:"blob"`
}
