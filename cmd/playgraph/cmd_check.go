package main

import (
	"fmt"

	"playgraph/internal/playthrough"
	"playgraph/internal/record"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// checkCmd validates a rule base and games against it
var checkCmd = &cobra.Command{
	Use:   "check [game.yaml|dir]...",
	Short: "Validate the rule base and replay walkthroughs with closure cross-checking",
	Long: `Loads the rule manifest, then plays each game's walkthrough with every
closure cross-checked against the Mangle engine and every command list
checked to reproduce the next seen graph.

A game that names its own rule manifest is checked against that one.
With no games, only the configured rule base is validated.`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	rb, err := loadRules(cfg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "rule base %s: %d rules, %d predicates, %d inverse pairs\n",
		rb.Name, len(rb.Rules), len(rb.Predicates()), len(rb.Pairs))
	if len(args) == 0 {
		return nil
	}

	games, err := loadGames(args)
	if err != nil {
		return err
	}

	opts := collectorOptions(cfg)
	opts.Mode = playthrough.ModeWalkthrough
	collector := playthrough.NewCollector(nil, opts)
	ts := newTrackers(cfg, true)

	failed := 0
	for _, g := range games {
		tracker, err := ts.For(g)
		var records []record.Record
		if err == nil {
			records, err = collector.WithTracker(tracker).Collect(ctx, g.ID, g.NewEnv())
		}
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", g.ID, err)
			logger.Warn("Walkthrough check failed", zap.String("game", g.ID), zap.Error(err))
			continue
		}
		fmt.Fprintf(out, "ok   %s (%d steps)\n", g.ID, len(records))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d games failed", failed, len(games))
	}
	return nil
}
