// Package config loads the koipond run configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultFile = "koipond.yaml"

// ConfigError names the first invalid field of a configuration.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Agent       AgentConfig       `yaml:"agent"`
	Evaluation  EvaluationConfig  `yaml:"evaluation"`
	Evolution   EvolutionConfig   `yaml:"evolution"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	Storage     StorageConfig     `yaml:"storage"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Render      RenderConfig      `yaml:"render"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type EnvironmentConfig struct {
	Width           float64 `yaml:"width"`
	Height          float64 `yaml:"height"`
	DetectionRadius float64 `yaml:"detection_radius"`
	LilyPads        int     `yaml:"lily_pads"`
	BoundaryMargin  float64 `yaml:"boundary_margin"`
	SpawnMargin     float64 `yaml:"spawn_margin"`
}

type AgentConfig struct {
	MaxSpeed      float64 `yaml:"max_speed"`
	MovementCost  float64 `yaml:"movement_cost"`
	AmbientHunger float64 `yaml:"ambient_hunger"`
	DeathHunger   float64 `yaml:"death_hunger"`
	EdgePenalty   float64 `yaml:"edge_penalty"`
	FoodReward    float64 `yaml:"food_reward"`
}

type EvaluationConfig struct {
	SimulationSteps int   `yaml:"simulation_steps"`
	Trials          int   `yaml:"trials"`
	Generations     int   `yaml:"generations"`
	Seed            int64 `yaml:"seed"`
}

type EvolutionConfig struct {
	PopulationSize    int     `yaml:"population_size"`
	EliteCount        int     `yaml:"elite_count"`
	MaxMutations      int     `yaml:"max_mutations"`
	CrossoverRate     float64 `yaml:"crossover_rate"`
	SurvivalThreshold float64 `yaml:"survival_threshold"`
	FitnessThreshold  float64 `yaml:"fitness_threshold"`
	SeedDensity       float64 `yaml:"seed_density"`
	Selector          string  `yaml:"selector"`
}

type CheckpointConfig struct {
	Interval       int    `yaml:"interval"`
	Dir            string `yaml:"dir"`
	Prefix         string `yaml:"prefix"`
	BestGenomePath string `yaml:"best_genome_path"`
}

type StorageConfig struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

type LeaderboardConfig struct {
	Backend   string `yaml:"backend"`
	RedisAddr string `yaml:"redis_addr"`
	Key       string `yaml:"key"`
}

type RenderConfig struct {
	Enabled bool `yaml:"enabled"`
	FPS     int  `yaml:"fps"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Environment: EnvironmentConfig{
			Width:           800,
			Height:          600,
			DetectionRadius: 150,
			LilyPads:        30,
			BoundaryMargin:  50,
			SpawnMargin:     50,
		},
		Agent: AgentConfig{
			MaxSpeed:      5,
			MovementCost:  0.05,
			AmbientHunger: 0.05,
			DeathHunger:   200,
			EdgePenalty:   15,
			FoodReward:    20,
		},
		Evaluation: EvaluationConfig{
			SimulationSteps: 500,
			Trials:          1,
			Generations:     50,
			Seed:            1,
		},
		Evolution: EvolutionConfig{
			PopulationSize:    50,
			EliteCount:        2,
			MaxMutations:      3,
			CrossoverRate:     0.5,
			SurvivalThreshold: 0.2,
			Selector:          "tournament",
		},
		Checkpoint: CheckpointConfig{
			Interval: 10,
			Dir:      "checkpoints",
			Prefix:   "koipond-checkpoint-",
		},
		Storage: StorageConfig{
			Kind: "memory",
			Path: "koipond.db",
		},
		Leaderboard: LeaderboardConfig{
			Backend: "memory",
			Key:     "koipond:leaderboard",
		},
		Render: RenderConfig{
			FPS: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file yields the defaults. Variables in a
// .env file next to the config are loaded first without replacing ones
// already set.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultFile
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, &ConfigError{Field: ".env", Reason: "unreadable", Err: err}
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, &ConfigError{Field: path, Reason: "invalid yaml", Err: err}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func (c Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports the first missing or invalid field.
func (c Config) Validate() error {
	switch {
	case c.Environment.Width <= 0:
		return &ConfigError{Field: "environment.width", Reason: "must be > 0"}
	case c.Environment.Height <= 0:
		return &ConfigError{Field: "environment.height", Reason: "must be > 0"}
	case c.Environment.DetectionRadius <= 0:
		return &ConfigError{Field: "environment.detection_radius", Reason: "must be > 0"}
	case c.Environment.LilyPads < 0:
		return &ConfigError{Field: "environment.lily_pads", Reason: "must be >= 0"}
	case c.Agent.DeathHunger <= 0:
		return &ConfigError{Field: "agent.death_hunger", Reason: "must be > 0"}
	case c.Evaluation.SimulationSteps <= 0:
		return &ConfigError{Field: "evaluation.simulation_steps", Reason: "must be > 0"}
	case c.Evaluation.Generations <= 0:
		return &ConfigError{Field: "evaluation.generations", Reason: "must be > 0"}
	case c.Evaluation.Trials <= 0:
		return &ConfigError{Field: "evaluation.trials", Reason: "must be > 0"}
	case c.Evolution.PopulationSize <= 0:
		return &ConfigError{Field: "evolution.population_size", Reason: "must be > 0"}
	case c.Evolution.EliteCount < 0 || c.Evolution.EliteCount > c.Evolution.PopulationSize:
		return &ConfigError{Field: "evolution.elite_count", Reason: "must be within [0, population_size]"}
	case c.Checkpoint.Interval < 0:
		return &ConfigError{Field: "checkpoint.interval", Reason: "must be >= 0"}
	case c.Render.FPS < 0:
		return &ConfigError{Field: "render.fps", Reason: "must be >= 0"}
	}

	switch c.Evolution.Selector {
	case "", "tournament", "elite":
	default:
		return &ConfigError{Field: "evolution.selector", Reason: fmt.Sprintf("unknown selector %q", c.Evolution.Selector)}
	}
	switch c.Storage.Kind {
	case "", "memory", "sqlite":
	default:
		return &ConfigError{Field: "storage.kind", Reason: fmt.Sprintf("unsupported backend %q", c.Storage.Kind)}
	}
	switch c.Leaderboard.Backend {
	case "", "memory":
	case "redis":
		if c.Leaderboard.RedisAddr == "" {
			return &ConfigError{Field: "leaderboard.redis_addr", Reason: "required for the redis backend"}
		}
	default:
		return &ConfigError{Field: "leaderboard.backend", Reason: fmt.Sprintf("unsupported backend %q", c.Leaderboard.Backend)}
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return &ConfigError{Field: "logging.format", Reason: fmt.Sprintf("unsupported format %q", c.Logging.Format)}
	}
	return nil
}
