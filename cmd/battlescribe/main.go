package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"battlescribe/internal/config"
	"battlescribe/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "battlescribe",
	Short: "battlescribe - turn Pokémon TCG Live battle logs into structured records",
	Long: `battlescribe reads a battle log exported from Pokémon TCG Live and produces
a structured battle record: the match setup, every turn's actions and attacks,
and the outcome.

An LLM oracle does the reading; battlescribe checks every answer. Setup
extraction is judged before any turn is processed, each turn is checked
against a schema and then for completeness, and failed turns are retried
with backoff before being dropped.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		workspace = ws

		if loaded := config.LoadDotEnv(filepath.Join(ws, ".env"), filepath.Join(ws, ".battlescribe", ".env")); loaded != "" {
			defer logging.Boot("Loaded environment from %s", loaded)
		}

		path := configPath
		if path == "" {
			path = filepath.Join(ws, ".battlescribe", "config.yaml")
		}
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		cfg.Storage.DatabasePath = inWorkspace(ws, cfg.Storage.DatabasePath)
		cfg.Storage.OutputDir = inWorkspace(ws, cfg.Storage.OutputDir)
		cfg.Usage.File = inWorkspace(ws, cfg.Usage.File)
		cfg.Prompts.Dir = inWorkspace(ws, cfg.Prompts.Dir)
		cfg.Metrics.TextfilePath = inWorkspace(ws, cfg.Metrics.TextfilePath)
		cfg.Logging.File = inWorkspace(ws, cfg.Logging.File)

		logger, err = logging.Initialize(logging.Config{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			File:    cfg.Logging.File,
			Verbose: verbose,
		})
		if err != nil {
			return err
		}
		logging.Boot("battlescribe %s starting (config=%s, workspace=%s)", cfg.Version, path, ws)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// versionCmd prints the version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the battlescribe version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "battlescribe %s\n", config.DefaultConfig().Version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/.battlescribe/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Timeout for a whole run")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveWorkspace() (string, error) {
	if workspace != "" {
		return filepath.Abs(workspace)
	}
	return os.Getwd()
}

// inWorkspace anchors relative paths at the workspace. Empty stays empty.
func inWorkspace(ws, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(ws, path)
}
