package koi

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"koipond/internal/model"
	"koipond/internal/pond"
)

// Koi is one simulated individual bound to one controller for one
// generation. It borrows its genome by id only.
type Koi struct {
	genomeID   string
	controller Controller
	params     Params

	position     orb.Point
	lastPosition orb.Point
	heading      orb.Point

	hunger         float64
	energy         float64
	speciesID      int
	colorKey       string
	stepsTaken     int
	foodConsumed   int
	highestFitness float64

	resource model.Resource
}

func New(genomeID string, controller Controller, position orb.Point, speciesID int, params Params) (*Koi, error) {
	if genomeID == "" {
		return nil, errors.New("genome id is required")
	}
	if controller == nil {
		return nil, fmt.Errorf("genome %s: controller is required", genomeID)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Koi{
		genomeID:     genomeID,
		controller:   controller,
		params:       params,
		position:     position,
		lastPosition: position,
		energy:       100,
		speciesID:    speciesID,
		colorKey:     ColorKey(speciesID),
	}, nil
}

func (k *Koi) GenomeID() string         { return k.genomeID }
func (k *Koi) Position() orb.Point      { return k.position }
func (k *Koi) LastPosition() orb.Point  { return k.lastPosition }
func (k *Koi) Heading() orb.Point       { return k.heading }
func (k *Koi) Hunger() float64          { return k.hunger }
func (k *Koi) Energy() float64          { return k.energy }
func (k *Koi) SpeciesID() int           { return k.speciesID }
func (k *Koi) ColorKey() string         { return k.colorKey }
func (k *Koi) StepsTaken() int          { return k.stepsTaken }
func (k *Koi) FoodConsumed() int        { return k.foodConsumed }
func (k *Koi) HighestFitness() float64  { return k.highestFitness }
func (k *Koi) Resource() model.Resource { return k.resource }

// Active reports whether the koi still takes part in the trial.
func (k *Koi) Active() bool {
	return k.hunger < k.params.DeathHunger && k.energy > 0
}

// Reset restores metabolic state for a new trial. Position, species and
// controller are kept.
func (k *Koi) Reset() {
	k.hunger = 0
	k.energy = 100
	k.stepsTaken = 0
	k.foodConsumed = 0
}

// Act senses, asks the controller for a decision and moves. It is a no-op
// once the koi has starved.
func (k *Koi) Act(pads []pond.LilyPad, neighbors []*Koi) error {
	k.lastPosition = k.position
	if k.hunger >= k.params.DeathHunger {
		return nil
	}

	outputs, err := k.controller.Activate(k.Inputs(pads, neighbors))
	if err != nil {
		return &ControllerError{GenomeID: k.genomeID, Err: err}
	}
	if len(outputs) < MinOutputWidth {
		return &ControllerError{
			GenomeID: k.genomeID,
			Err:      fmt.Errorf("expected at least %d outputs, got %d", MinOutputWidth, len(outputs)),
		}
	}
	for i, v := range outputs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ControllerError{GenomeID: k.genomeID, Err: fmt.Errorf("output %d is not finite", i)}
		}
	}

	direction, ok := unit(orb.Point{outputs[0], outputs[1]})
	if !ok {
		k.heading = orb.Point{}
		return nil
	}
	speed := math.Abs(outputs[2])
	tendency := defaultSchoolingTendency
	if len(outputs) > 3 {
		tendency = clamp(outputs[3], 0, 1)
	}
	separation := defaultSeparation
	if len(outputs) > 4 {
		separation = outputs[4]
	}

	direction = k.steer(direction, tendency, separation, neighbors)
	k.heading = direction
	if direction == (orb.Point{}) {
		return nil
	}

	step := orb.Point{direction[0] * speed * k.params.MaxSpeed, direction[1] * speed * k.params.MaxSpeed}
	target := orb.Point{k.position[0] + step[0], k.position[1] + step[1]}
	k.hunger += math.Hypot(step[0], step[1]) * k.params.MovementCost
	k.position = orb.Point{
		clamp(target[0], 0, k.params.Width),
		clamp(target[1], 0, k.params.Height),
	}
	return nil
}

// steer blends the individual heading with the direction to the centroid of
// same-species neighbors in schooling range, then pushes away from the
// nearest neighbor by separation.
func (k *Koi) steer(direction orb.Point, tendency, separation float64, neighbors []*Koi) orb.Point {
	heading := direction
	if centroid, ok := k.schoolCentroid(neighbors); ok {
		if toCentroid, ok := unit(orb.Point{centroid[0] - k.position[0], centroid[1] - k.position[1]}); ok {
			heading = orb.Point{
				(1-tendency)*direction[0] + tendency*toCentroid[0],
				(1-tendency)*direction[1] + tendency*toCentroid[1],
			}
		}
	}
	if separation != 0 {
		if nearest := k.nearestNeighbor(neighbors); nearest != nil {
			if toward, ok := unit(orb.Point{nearest.position[0] - k.position[0], nearest.position[1] - k.position[1]}); ok {
				heading = orb.Point{heading[0] - separation*toward[0], heading[1] - separation*toward[1]}
			}
		}
	}
	out, ok := unit(heading)
	if !ok {
		return orb.Point{}
	}
	return out
}

// Update applies one step of metabolism: eat, burn, recompute energy and
// ratchet the best fitness seen.
func (k *Koi) Update(env *pond.Environment) {
	env.ConsumeCheck(k)
	k.hunger += k.params.AmbientHunger
	k.energy = clamp(100-k.hunger/3, 0, 100)
	if f := k.Fitness(); f > k.highestFitness {
		k.highestFitness = f
	}
	k.stepsTaken++
}

// Fitness scores the current state: energy, survival time, food eaten and a
// penalty for hugging the edges.
func (k *Koi) Fitness() float64 {
	survival := 0.0
	if k.params.SimulationSteps > 0 {
		survival = math.Min(50, float64(k.stepsTaken)/float64(k.params.SimulationSteps)*50)
	}
	fitness := k.energy + survival + float64(k.foodConsumed)*k.params.FoodReward
	if k.nearEdge() {
		fitness -= k.params.EdgePenalty
	}
	return math.Max(0, fitness)
}

// Radius grows and shrinks with energy for display.
func (k *Koi) Radius() float64 {
	return baseRadius * clamp(k.energy/100, 0.5, 1.5)
}

func (k *Koi) Snapshot() model.AgentSnapshot {
	return model.AgentSnapshot{
		GenomeID:       k.genomeID,
		Position:       [2]float64(k.position),
		LastPosition:   [2]float64(k.lastPosition),
		Radius:         k.Radius(),
		SpeciesID:      k.speciesID,
		ColorKey:       k.colorKey,
		Hunger:         k.hunger,
		Energy:         k.energy,
		FoodConsumed:   k.foodConsumed,
		StepsTaken:     k.stepsTaken,
		HighestFitness: k.highestFitness,
	}
}

// Location and Feed let the environment feed the koi.
func (k *Koi) Location() orb.Point { return k.position }

func (k *Koi) Feed(relief float64) {
	k.hunger = math.Max(0, k.hunger-relief)
	k.foodConsumed++
}

// OccupantID, DetachResource and AttachResource bind the koi to its genome's
// back-reference slot.
func (k *Koi) OccupantID() string { return k.genomeID }

func (k *Koi) DetachResource() model.Resource {
	r := k.resource
	k.resource = nil
	return r
}

func (k *Koi) AttachResource(r model.Resource) {
	k.resource = r
}

// ReleaseResource releases and drops any held handle.
func (k *Koi) ReleaseResource() error {
	r := k.DetachResource()
	if r == nil {
		return nil
	}
	return r.Release()
}

func (k *Koi) nearEdge() bool {
	m := k.params.BoundaryMargin
	x, y := k.position[0], k.position[1]
	return x < m || y < m || x > k.params.Width-m || y > k.params.Height-m
}

func unit(p orb.Point) (orb.Point, bool) {
	mag := math.Hypot(p[0], p[1])
	if mag == 0 {
		return orb.Point{}, false
	}
	return orb.Point{p[0] / mag, p[1] / mag}, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
