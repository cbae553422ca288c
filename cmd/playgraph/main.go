package main

import (
	"fmt"
	"os"
	"time"

	"playgraph/internal/config"
	"playgraph/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Loaded once per invocation
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "playgraph",
	Short: "playgraph - knowledge-graph tracking for text-game playthroughs",
	Long: `playgraph replays text-game walkthroughs, closes every observation under
a Datalog rule base, and records what the player has seen as a graph plus the
add/delete commands that move one graph to the next.

Rule programs are written in Mangle syntax; games are YAML state machines.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.DebugMode = true
			cfg.Logging.Level = "debug"
		}
		if err := logging.Initialize(cfg.Logging.Options()); err != nil {
			return err
		}
		logger.Debug("Configuration loaded", zap.String("path", configPath), zap.String("rules", cfg.Rules.Manifest))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "playgraph.yaml", "Configuration file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Overall timeout (0 = none)")

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(closureCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(diffCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.Fallback("%v", err)
		os.Exit(1)
	}
}
