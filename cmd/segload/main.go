package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/narwhalmedia/segload/internal/config"
	"github.com/narwhalmedia/segload/internal/container"
	"github.com/narwhalmedia/segload/internal/logger"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "segload",
	Short:         "Resumable, segmented HTTP downloads",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (yaml or json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(getCmd, statusCmd, cancelCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and wires the container. adjust may tweak the
// configuration before the logger is built.
func setup(adjust func(*config.Config)) (*container.Container, func(), error) {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if adjust != nil {
		adjust(cfg)
	}

	// Initialize logger
	log, err := logger.New(cfg.Service, cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	c, cleanup, err := container.InitializeContainer(cfg, log)
	if err != nil {
		log.Sync()
		return nil, nil, err
	}

	log.Debug("segload initialized",
		zap.String("database", cfg.Database.Driver),
		zap.String("events", cfg.Events.Driver),
		zap.Int("max_running", cfg.Scheduler.MaxRunning),
	)

	return c, func() {
		cleanup()
		log.Sync()
	}, nil
}
