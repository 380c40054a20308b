package koi

import "fmt"

const (
	// InputWidth is the length of the sensory vector handed to controllers.
	InputWidth = 20

	// OutputWidth is the controller output length seeds are built with.
	// Only the first MinOutputWidth outputs are required.
	OutputWidth    = 5
	MinOutputWidth = 3

	SchoolingRadius = 100.0

	defaultSchoolingTendency = 0.5
	defaultSeparation        = 0.0

	stepsCap   = 1000.0
	foodCap    = 20.0
	baseRadius = 10.0
)

// Params holds the per-run constants of the agent model.
type Params struct {
	Width           float64
	Height          float64
	DetectionRadius float64
	MaxSpeed        float64
	MovementCost    float64
	AmbientHunger   float64
	DeathHunger     float64
	BoundaryMargin  float64
	EdgePenalty     float64
	FoodReward      float64
	SimulationSteps int
}

func DefaultParams() Params {
	return Params{
		Width:           800,
		Height:          600,
		DetectionRadius: 150,
		MaxSpeed:        5.0,
		MovementCost:    0.05,
		AmbientHunger:   0.05,
		DeathHunger:     200,
		BoundaryMargin:  50,
		EdgePenalty:     15,
		FoodReward:      20,
		SimulationSteps: 500,
	}
}

func (p Params) Validate() error {
	switch {
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("bounds must be positive, got %gx%g", p.Width, p.Height)
	case p.DetectionRadius <= 0:
		return fmt.Errorf("detection radius must be > 0")
	case p.DeathHunger <= 0:
		return fmt.Errorf("death hunger must be > 0")
	case p.SimulationSteps <= 0:
		return fmt.Errorf("simulation steps must be > 0")
	}
	return nil
}
