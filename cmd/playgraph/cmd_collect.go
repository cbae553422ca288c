package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"playgraph/internal/batch"
	"playgraph/internal/metrics"
	"playgraph/internal/playthrough"
	"playgraph/internal/store"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	collectMode      string
	collectDepth     int
	collectSeed      int64
	collectOutput    string
	collectFormat    string
	collectForce     bool
	collectWorkers   int
	collectEmitViews bool
	collectVerify    bool
	collectMetrics   string
	collectReport    bool
)

// collectCmd turns games into records
var collectCmd = &cobra.Command{
	Use:   "collect [game.yaml|dir]...",
	Short: "Collect graph-tracking records from game walkthroughs",
	Long: `Plays every game's walkthrough, exploring off it after each step, and
writes one record per transition to the configured sink.

Modes:
  - walkthrough: follow the walkthrough only
  - explore:     try every eligible command once from each walkthrough step
  - branch:      take a seeded random walk of --depth steps from each step

Example:
  playgraph collect games/ --mode explore --emit-views -o records.db --format sqlite`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().StringVar(&collectMode, "mode", "", "Collector mode: walkthrough, explore, branch")
	collectCmd.Flags().IntVar(&collectDepth, "depth", 0, "Branching depth for branch mode")
	collectCmd.Flags().Int64Var(&collectSeed, "seed", 0, "Random seed for branch mode")
	collectCmd.Flags().StringVarP(&collectOutput, "output", "o", "", "Output path")
	collectCmd.Flags().StringVar(&collectFormat, "format", "", "Output format: json, sqlite, badger")
	collectCmd.Flags().BoolVar(&collectForce, "force", false, "Overwrite existing output")
	collectCmd.Flags().IntVarP(&collectWorkers, "workers", "j", 0, "Games collected concurrently")
	collectCmd.Flags().BoolVar(&collectEmitViews, "emit-views", false, "Add graph_local and graph_full to records")
	collectCmd.Flags().BoolVar(&collectVerify, "verify", false, "Cross-check every closure with the Mangle engine")
	collectCmd.Flags().StringVar(&collectMetrics, "metrics-addr", "", "Serve Prometheus metrics on this address")
	collectCmd.Flags().BoolVar(&collectReport, "json", false, "Print the run report as JSON")
}

func applyCollectFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Collector.Mode = collectMode
	}
	if flags.Changed("depth") {
		cfg.Collector.BranchingDepth = collectDepth
	}
	if flags.Changed("seed") {
		cfg.Collector.Seed = collectSeed
	}
	if flags.Changed("output") {
		cfg.Output.Path = collectOutput
	}
	if flags.Changed("format") {
		cfg.Output.Format = collectFormat
	}
	if flags.Changed("workers") {
		cfg.Batch.Workers = collectWorkers
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Enabled = collectMetrics != ""
		cfg.Metrics.Address = collectMetrics
	}
	cfg.Output.Force = cfg.Output.Force || collectForce
	cfg.Collector.EmitViews = cfg.Collector.EmitViews || collectEmitViews
	return cfg.Validate()
}

func runCollect(cmd *cobra.Command, args []string) error {
	if err := applyCollectFlags(cmd); err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	games, err := loadGames(args)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		srv, err := metrics.Listen(cfg.Metrics.Address)
		if err != nil {
			return err
		}
		logger.Info("Serving metrics", zap.String("addr", srv.Addr()))
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	runID := uuid.NewString()
	sink, err := store.Open(storeConfig(cfg), runID)
	if err != nil {
		return err
	}
	collector := playthrough.NewCollector(nil, collectorOptions(cfg))
	runner := batch.NewRunner(collector, sink, batch.Options{
		Workers:     cfg.Batch.Workers,
		GameTimeout: cfg.GetGameTimeout(),
		RunID:       runID,
	})

	logger.Info("Collecting",
		zap.Int("games", len(games)),
		zap.String("mode", cfg.Collector.Mode),
		zap.String("output", cfg.Output.Path),
		zap.String("run_id", runner.RunID()))

	report, runErr := runner.Run(ctx, jobs(games, newTrackers(cfg, collectVerify)))
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close output: %w", err)
	}
	if report != nil {
		if err := printReport(cmd, report); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func printReport(cmd *cobra.Command, report *batch.Report) error {
	out := cmd.OutOrStdout()
	if collectReport {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	fmt.Fprintf(out, "run %s: %d/%d games, %d records in %v\n",
		report.RunID, report.Succeeded, report.Games, report.Records, report.Duration.Round(time.Millisecond))
	for _, f := range report.Failures {
		fmt.Fprintf(out, "  FAILED %s: %s\n", f.Game, f.Err)
	}
	return nil
}
