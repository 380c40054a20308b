package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"koipond/internal/config"
)

func writeConfig(t *testing.T, mutate func(*config.Config)) (string, config.Config) {
	t.Helper()
	dir := t.TempDir()
	s := config.Default()
	s.Environment.LilyPads = 8
	s.Evaluation.SimulationSteps = 15
	s.Evaluation.Generations = 2
	s.Evolution.PopulationSize = 5
	s.Evolution.EliteCount = 1
	s.Checkpoint.Interval = 1
	s.Checkpoint.Dir = filepath.Join(dir, "checkpoints")
	s.Checkpoint.BestGenomePath = filepath.Join(dir, "best.genome")
	s.Logging.Level = "error"
	if mutate != nil {
		mutate(&s)
	}
	path := filepath.Join(dir, "koipond.yaml")
	require.NoError(t, s.Save(path))
	return path, s
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	path, settings := writeConfig(t, nil)
	out, err := execute(t, "run", "-c", path, "--run-id", "cli-run")
	require.NoError(t, err)
	assert.Contains(t, out, "run cli-run completed: generations 0..2")
	assert.Contains(t, out, "best genome")
	assert.Equal(t, 2, strings.Count(out, "checkpoint "))
	assert.FileExists(t, filepath.Join(settings.Checkpoint.Dir, "koipond-checkpoint-2"))

	out, err = execute(t, "best", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "genome koi-")
	assert.Contains(t, out, "neurons ")
}

func TestResumeCommandFromFile(t *testing.T) {
	path, settings := writeConfig(t, nil)
	_, err := execute(t, "run", "-c", path, "--run-id", "first")
	require.NoError(t, err)

	out, err := execute(t, "resume", "-c", path, "--checkpoint", filepath.Join(settings.Checkpoint.Dir, "koipond-checkpoint-2"), "-g", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "run first completed: generations 2..3")
}

func TestResumeCommandRequiresSource(t *testing.T) {
	path, _ := writeConfig(t, nil)
	_, err := execute(t, "resume", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--checkpoint or --latest")
}

func TestInvalidConfigFails(t *testing.T) {
	path, _ := writeConfig(t, func(s *config.Config) { s.Evolution.PopulationSize = 0 })
	_, err := execute(t, "run", "-c", path)
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "evolution.population_size", cfgErr.Field)
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.yaml")
	out, err := execute(t, "config", "init", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	_, err = execute(t, "config", "init", "-c", path)
	require.Error(t, err)
	_, err = execute(t, "config", "init", "--force", "-c", path)
	require.NoError(t, err)

	out, err = execute(t, "config", "show", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "simulation_steps: 500")
	assert.Contains(t, out, "interval: 10")
}

func TestLeaderboardCommandWithRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	path, _ := writeConfig(t, func(s *config.Config) {
		s.Leaderboard.Backend = "redis"
		s.Leaderboard.RedisAddr = server.Addr()
		s.Evaluation.Generations = 1
	})
	_, err = execute(t, "run", "-c", path)
	require.NoError(t, err)

	out, err := execute(t, "leaderboard", "-c", path, "-n", "3")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Contains(t, lines[0], "RANK")
	assert.True(t, strings.HasPrefix(lines[1], "1 "))

	out, err = execute(t, "leaderboard", "-c", path, "--reset")
	require.NoError(t, err)
	assert.Contains(t, out, "leaderboard reset")

	out, err = execute(t, "leaderboard", "-c", path, "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestCheckpointsCommandEmpty(t *testing.T) {
	path, _ := writeConfig(t, nil)
	out, err := execute(t, "checkpoints", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "no checkpoints stored")
}
