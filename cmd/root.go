package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sander-remitly/plate-calc/internal/config"
	"github.com/sander-remitly/plate-calc/internal/logger"
	"github.com/sander-remitly/plate-calc/internal/repo"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	port       int
	dbPath     string
	verbose    bool

	// cfg is resolved before any subcommand runs
	cfg config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "platecalc",
	Short: "Plate Calculator - Load dumbbells with the fewest plates",
	Long: `Plate Calculator finds the combination of plates that loads a dumbbell,
or a pair of dumbbells, to an exact weight using the fewest plates, with
every side carrying the same plates.

It provides both a REST API and command-line tools for calculations and
managing the plate inventory.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 8080, "Server port")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "./data/platecalc.db", "Database file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
}

// loadConfig merges flags that were set explicitly over env, YAML and defaults
func loadConfig(cmd *cobra.Command, _ []string) error {
	overrides := &config.CLIOverrides{ConfigFile: configFile}
	flags := cmd.Flags()
	if flags.Changed("port") {
		overrides.Port = &port
	}
	if flags.Changed("db") {
		overrides.DBPath = &dbPath
	}
	if flags.Changed("verbose") {
		overrides.Verbose = &verbose
	}

	loaded, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded

	logger.InitializeWithLevel(cfg.LogLevel)
	return nil
}

// openRepository opens the configured database, creating its directory and
// seeding the default plates on first use
func openRepository() (*repo.Repository, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	repository, err := repo.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	if _, err := repository.EnsureDefaults(); err != nil {
		repository.Close()
		return nil, err
	}
	return repository, nil
}
