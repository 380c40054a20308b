package simulation

import (
	"context"
	"fmt"

	"koipond/internal/koi"
	"koipond/internal/model"
	"koipond/internal/nn"
)

// Frame is the read-only view of one simulation step handed to a renderer.
type Frame struct {
	Generation int
	Trial      int
	Step       int
	Agents     []model.AgentSnapshot
	LilyPads   [][2]float64
}

// Renderer displays frames. Render returns false to request that the run
// stop. Render errors are logged and the step loop continues.
type Renderer interface {
	SetGeneration(generation int)
	Render(ctx context.Context, frame Frame) (bool, error)
}

// HandleProvider is implemented by renderers that keep a display handle per
// koi. Handles are held by the koi and released when it leaves the pond.
type HandleProvider interface {
	Acquire(agent model.AgentSnapshot) (model.Resource, error)
}

// Recorder receives the best koi of each generation. The evaluator never
// reads it back.
type Recorder interface {
	Record(ctx context.Context, speciesID int, agent model.AgentSnapshot, fitness float64, generation int) error
}

// ControllerFactory derives the decision capability for a genome.
type ControllerFactory func(genome model.Genome) (koi.Controller, error)

// NetworkControllers compiles genomes into feed-forward networks and checks
// their widths against the koi sensor contract.
func NetworkControllers(genome model.Genome) (koi.Controller, error) {
	network, err := nn.NewNetwork(genome)
	if err != nil {
		return nil, err
	}
	if network.InputWidth() != koi.InputWidth {
		return nil, fmt.Errorf("genome %s: %w: got=%d want=%d", genome.ID, nn.ErrInputWidth, network.InputWidth(), koi.InputWidth)
	}
	if network.OutputWidth() < koi.MinOutputWidth {
		return nil, fmt.Errorf("genome %s: need at least %d outputs, got %d", genome.ID, koi.MinOutputWidth, network.OutputWidth())
	}
	return network, nil
}

// RenderError wraps a renderer failure with the step it happened on.
type RenderError struct {
	Generation int
	Step       int
	Err        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render generation %d step %d: %v", e.Generation, e.Step, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
