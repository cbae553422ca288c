package main

import (
	"fmt"
	"strings"

	"playgraph/internal/diff"
	"playgraph/internal/playthrough"
	"playgraph/internal/world"

	"github.com/spf13/cobra"
)

var diffText bool

// diffCmd prints the graph commands along one walkthrough
var diffCmd = &cobra.Command{
	Use:   "diff [game.yaml]",
	Short: "Show the seen graph and its commands at every walkthrough step",
	Long: `Plays one game's walkthrough and prints, for every step, the action and
the add/delete commands that move the previous seen graph to the new one.

With --text, a line diff of the two seen graphs is printed as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().BoolVar(&diffText, "text", false, "Also print a line diff of the seen graphs")
}

func runDiff(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	g, err := world.LoadGame(args[0])
	if err != nil {
		return err
	}
	tracker, err := newTrackers(cfg, false).For(g)
	if err != nil {
		return err
	}

	opts := collectorOptions(cfg)
	opts.Mode = playthrough.ModeWalkthrough
	records, err := playthrough.NewCollector(tracker, opts).Collect(ctx, g.ID, g.NewEnv())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, r := range records {
		fmt.Fprintf(out, "== %s %s\n", r.Step, r.PreviousAction)
		fmt.Fprintln(out, strings.TrimSpace(r.Observation))
		for _, c := range r.TargetCommands {
			fmt.Fprintf(out, "  %s\n", c)
		}
		if diffText {
			fmt.Fprint(out, diff.FormatLines(diff.ViewLines(r.PreviousGraphSeen, r.GraphSeen)))
		}
	}
	return nil
}
