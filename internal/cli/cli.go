// ============================================================================
// Run Loader CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provide a command line interface for running the run-loader
// ingestion pool against one or more logdirs, based on the Cobra framework.
//
// Command Structure:
//   run-loader                      # Root command
//   ├── run                         # Start the loader pool
//   │   └── --config, -c           # Specify config file
//   ├── status                      # Print the registered runs and config
//   ├── --version                   # Display version information
//   └── --help                      # Display help information
//
// Configuration Management:
//   Uses YAML format config file (default: configs/default.yaml):
//   - runs: list of {name, logdir} pairs to load
//   - loader: checksum toggle, poll interval, worker count (the checksum
//     toggle is shown by status; run does not pass it to the loaders, which
//     always verify checksums)
//   - metrics: Prometheus monitoring configuration
//
// run Command:
//   1. Load config file
//   2. Register every configured run with a loaderpool.Pool
//   3. Start the Prometheus metrics server, if enabled
//   4. Start the pool
//   5. Wait for SIGINT/SIGTERM, then stop the pool gracefully
//
// ============================================================================

package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/run-loader/internal/commit"
	"github.com/ChuLiYu/run-loader/internal/loaderpool"
	"github.com/ChuLiYu/run-loader/internal/logdir"
	"github.com/ChuLiYu/run-loader/internal/metrics"
	"github.com/ChuLiYu/run-loader/pkg/types"
)

var log = slog.Default()

// Config represents the complete CLI configuration structure, mapped from
// the config file through YAML tags.
type Config struct {
	Runs []struct {
		Name   string `yaml:"name"`
		Logdir string `yaml:"logdir"`
	} `yaml:"runs"`

	Loader struct {
		Workers      int           `yaml:"workers"`
		PollInterval time.Duration `yaml:"poll_interval"`
		Checksum     bool          `yaml:"checksum"`
	} `yaml:"loader"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

var (
	configFile string
	globalPool *loaderpool.Pool
)

// BuildCLI assembles the root command and its subcommands.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "run-loader",
		Short: "Run Loader: incremental TensorBoard event-file ingestion",
		Long: `Run Loader ingests append-only TensorBoard event files, reservoir-samples
their records per tag, and publishes commits readers can see under a
readers-writer lock.`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the run-loader ingestion pool",
		Long:  "Load the configured runs, start metrics (if enabled), and poll their logdirs until signaled to stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystem()
		},
	}
	return cmd
}

func runSystem() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log.Info("starting run-loader", "config", configFile, "runs", len(cfg.Runs))

	registry := commit.NewRegistry()
	logdirs := make(map[types.Run]string, len(cfg.Runs))
	for _, r := range cfg.Runs {
		logdirs[types.Run(r.Name)] = r.Logdir
	}

	pool := loaderpool.New(loaderpool.Config{
		Workers:      cfg.Loader.Workers,
		PollInterval: cfg.Loader.PollInterval,
	}, registry, func(run types.Run) logdir.Logdir {
		return logdir.NewDiskLogdir(run, logdirs[run])
	})

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		pool.SetMetrics(collector)
		go func() {
			log.Info("starting metrics server", "port", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	for _, r := range cfg.Runs {
		pool.AddRun(types.Run(r.Name))
	}

	globalPool = pool
	pool.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("received shutdown signal, stopping gracefully")
	pool.Stop()
	log.Info("run-loader stopped")
	return nil
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configured runs",
		Long:  "Display the runs and loader settings read from the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
	return cmd
}

func showStatus() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Printf("Config file:    %s\n", configFile)
	fmt.Printf("Workers:        %d\n", cfg.Loader.Workers)
	fmt.Printf("Poll interval:  %s\n", cfg.Loader.PollInterval)
	fmt.Printf("Checksum:       %v\n", cfg.Loader.Checksum)
	fmt.Println("Runs:")
	for _, r := range cfg.Runs {
		fmt.Printf("  - %s (%s)\n", r.Name, r.Logdir)
	}

	if cfg.Metrics.Enabled {
		fmt.Printf("Metrics:        enabled on :%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Println("Metrics:        disabled")
	}

	if globalPool != nil {
		fmt.Printf("Active pool runs: %v\n", globalPool.Runs())
	}

	return nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if cfg.Loader.Workers <= 0 {
		cfg.Loader.Workers = 1
	}
	if cfg.Loader.PollInterval <= 0 {
		cfg.Loader.PollInterval = 5 * time.Second
	}

	return &cfg, nil
}
