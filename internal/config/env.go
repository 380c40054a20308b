package config

import (
	"strconv"
	"strings"
)

const EnvPrefix = "KOIPOND_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

type override struct {
	field string
	apply func(c *Config, raw string) error
}

func floatVar(get func(c *Config) *float64) func(*Config, string) error {
	return func(c *Config, raw string) error {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		*get(c) = v
		return nil
	}
}

func intVar(get func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, raw string) error {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		*get(c) = v
		return nil
	}
}

func stringVar(get func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, raw string) error {
		*get(c) = raw
		return nil
	}
}

func int64Var(get func(c *Config) *int64) func(*Config, string) error {
	return func(c *Config, raw string) error {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		*get(c) = v
		return nil
	}
}

func boolVar(get func(c *Config) *bool) func(*Config, string) error {
	return func(c *Config, raw string) error {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		*get(c) = v
		return nil
	}
}

var overrides = map[string]override{
	"WIDTH":            {"environment.width", floatVar(func(c *Config) *float64 { return &c.Environment.Width })},
	"HEIGHT":           {"environment.height", floatVar(func(c *Config) *float64 { return &c.Environment.Height })},
	"DETECTION_RADIUS": {"environment.detection_radius", floatVar(func(c *Config) *float64 { return &c.Environment.DetectionRadius })},
	"LILY_PADS":        {"environment.lily_pads", intVar(func(c *Config) *int { return &c.Environment.LilyPads })},
	"SIMULATION_STEPS": {"evaluation.simulation_steps", intVar(func(c *Config) *int { return &c.Evaluation.SimulationSteps })},
	"TRIALS":           {"evaluation.trials", intVar(func(c *Config) *int { return &c.Evaluation.Trials })},
	"GENERATIONS":      {"evaluation.generations", intVar(func(c *Config) *int { return &c.Evaluation.Generations })},
	"POPULATION_SIZE":  {"evolution.population_size", intVar(func(c *Config) *int { return &c.Evolution.PopulationSize })},
	"SELECTOR":         {"evolution.selector", stringVar(func(c *Config) *string { return &c.Evolution.Selector })},
	"CHECKPOINT_EVERY": {"checkpoint.interval", intVar(func(c *Config) *int { return &c.Checkpoint.Interval })},
	"CHECKPOINT_DIR":   {"checkpoint.dir", stringVar(func(c *Config) *string { return &c.Checkpoint.Dir })},
	"STORAGE":          {"storage.kind", stringVar(func(c *Config) *string { return &c.Storage.Kind })},
	"STORAGE_PATH":     {"storage.path", stringVar(func(c *Config) *string { return &c.Storage.Path })},
	"LEADERBOARD":      {"leaderboard.backend", stringVar(func(c *Config) *string { return &c.Leaderboard.Backend })},
	"REDIS_ADDR":       {"leaderboard.redis_addr", stringVar(func(c *Config) *string { return &c.Leaderboard.RedisAddr })},
	"METRICS_ADDR":     {"metrics.addr", stringVar(func(c *Config) *string { return &c.Metrics.Addr })},
	"LOG_LEVEL":        {"logging.level", stringVar(func(c *Config) *string { return &c.Logging.Level })},
	"LOG_FORMAT":       {"logging.format", stringVar(func(c *Config) *string { return &c.Logging.Format })},
	"SEED":             {"evaluation.seed", int64Var(func(c *Config) *int64 { return &c.Evaluation.Seed })},
	"RENDER":           {"render.enabled", boolVar(func(c *Config) *bool { return &c.Render.Enabled })},
}

// ApplyEnv applies KOIPOND_* overrides found through lookup. Empty values
// are ignored.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	for name, o := range overrides {
		raw, ok := lookup(EnvPrefix + name)
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			continue
		}
		if err := o.apply(c, raw); err != nil {
			return &ConfigError{Field: o.field, Reason: "invalid " + EnvPrefix + name, Err: err}
		}
	}
	return nil
}
