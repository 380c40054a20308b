package platform

import (
	"koipond/internal/checkpoint"
	"koipond/internal/config"
	"koipond/internal/evo"
	"koipond/internal/genotype"
	"koipond/internal/koi"
	"koipond/internal/simulation"
)

func koiParams(s config.Config) koi.Params {
	return koi.Params{
		Width:           s.Environment.Width,
		Height:          s.Environment.Height,
		DetectionRadius: s.Environment.DetectionRadius,
		MaxSpeed:        s.Agent.MaxSpeed,
		MovementCost:    s.Agent.MovementCost,
		AmbientHunger:   s.Agent.AmbientHunger,
		DeathHunger:     s.Agent.DeathHunger,
		BoundaryMargin:  s.Environment.BoundaryMargin,
		EdgePenalty:     s.Agent.EdgePenalty,
		FoodReward:      s.Agent.FoodReward,
		SimulationSteps: s.Evaluation.SimulationSteps,
	}
}

func simulationConfig(s config.Config) simulation.Config {
	return simulation.Config{
		Params:      koiParams(s),
		LilyPads:    s.Environment.LilyPads,
		Trials:      s.Evaluation.Trials,
		SpawnMargin: s.Environment.SpawnMargin,
		Seed:        s.Evaluation.Seed,
	}
}

func evolutionConfig(s config.Config) (evo.Config, error) {
	selector, err := evo.SelectorByName(s.Evolution.Selector)
	if err != nil {
		return evo.Config{}, err
	}
	return evo.Config{
		PopulationSize:    s.Evolution.PopulationSize,
		EliteCount:        s.Evolution.EliteCount,
		Seed:              s.Evaluation.Seed,
		MaxMutations:      s.Evolution.MaxMutations,
		CrossoverRate:     s.Evolution.CrossoverRate,
		SurvivalThreshold: s.Evolution.SurvivalThreshold,
		FitnessThreshold:  s.Evolution.FitnessThreshold,
		Selector:          selector,
		SeedSpec: genotype.SeedSpec{
			Inputs:           koi.InputWidth,
			Outputs:          koi.OutputWidth,
			Density:          s.Evolution.SeedDensity,
			OutputActivation: "tanh",
		},
	}, nil
}

func checkpointConfig(runID string, s config.Config) checkpoint.Config {
	return checkpoint.Config{
		RunID:    runID,
		Interval: s.Checkpoint.Interval,
		Dir:      s.Checkpoint.Dir,
		Prefix:   s.Checkpoint.Prefix,
	}
}
