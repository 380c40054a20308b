package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"koipond/internal/config"
	"koipond/internal/logging"
	"koipond/internal/metrics"
	"koipond/pkg/koipond"
)

// app carries what the persistent flags resolve to.
type app struct {
	out        io.Writer
	configPath string
	verbose    bool
	render     bool

	settings config.Config
	logger   *zap.Logger
	logFile  *os.File
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:           "koipondctl",
		Short:         "Evolve koi controllers in a simulated lily pond",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.teardown()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultFile, "path to the YAML configuration")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newRunCommand(a),
		newResumeCommand(a),
		newLeaderboardCommand(a),
		newCheckpointsCommand(a),
		newBestCommand(a),
		newConfigCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	settings, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		settings.Logging.Level = "debug"
	}
	if cmd.Flags().Lookup("render") != nil && cmd.Flags().Changed("render") {
		settings.Render.Enabled = a.render
	}
	a.settings = settings

	// The terminal renderer owns the screen, so logs go to a file.
	if settings.Render.Enabled && cmd.Flags().Lookup("render") != nil {
		f, err := os.OpenFile("koipond.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		level, err := zapcore.ParseLevel(settings.Logging.Level)
		if err != nil {
			_ = f.Close()
			return &config.ConfigError{Field: "logging.level", Reason: "unknown level", Err: err}
		}
		a.logFile = f
		a.logger = logging.NewWriter(f, level)
		return nil
	}
	logger, err := logging.New(settings.Logging.Level, settings.Logging.Format)
	if err != nil {
		return &config.ConfigError{Field: "logging", Reason: "invalid logger settings", Err: err}
	}
	a.logger = logger
	return nil
}

func (a *app) teardown() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

func (a *app) client() (*koipond.Client, error) {
	var collector *metrics.Collector
	if a.settings.Metrics.Addr != "" {
		collector = metrics.New()
	}
	settings := a.settings
	return koipond.New(koipond.Options{Settings: &settings, Logger: a.logger, Metrics: collector})
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
