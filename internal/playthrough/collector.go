package playthrough

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"playgraph/internal/logging"
	"playgraph/internal/record"

	"golang.org/x/sync/errgroup"
)

// Mode selects how a collector explores off the walkthrough.
type Mode string

const (
	// ModeWalkthrough follows the walkthrough only.
	ModeWalkthrough Mode = "walkthrough"
	// ModeExplore tries every eligible command once from each walkthrough step.
	ModeExplore Mode = "explore"
	// ModeBranch takes a seeded random walk from each walkthrough step.
	ModeBranch Mode = "branch"
)

// CollectorOptions configures a Collector.
type CollectorOptions struct {
	Mode           Mode
	BranchingDepth int
	Seed           int64
	// Ignore drops commands whose first word is listed.
	Ignore []string
	// AlwaysAllow keeps these exact commands even if Ignore matches.
	AlwaysAllow []string
	// InventoryCommand is prepended to the walkthrough when missing.
	InventoryCommand string
	// EmitViews adds graph_local and graph_full to every record.
	EmitViews bool
	// Workers bounds the explore-mode forks stepped concurrently.
	Workers int
}

// DefaultCollectorOptions returns the TextWorld collection defaults.
func DefaultCollectorOptions() CollectorOptions {
	return CollectorOptions{
		Mode:             ModeBranch,
		BranchingDepth:   10,
		Seed:             20190521,
		Ignore:           []string{"look", "examine", "inventory"},
		AlwaysAllow:      []string{"examine cookbook"},
		InventoryCommand: "inventory",
		Workers:          1,
	}
}

// Collector turns one game into records.
type Collector struct {
	tracker *Tracker
	opts    CollectorOptions
}

// NewCollector builds a collector.
func NewCollector(tracker *Tracker, opts CollectorOptions) *Collector {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Collector{tracker: tracker, opts: opts}
}

// WithTracker returns a collector with the same options and another tracker.
func (c *Collector) WithTracker(tracker *Tracker) *Collector {
	return &Collector{tracker: tracker, opts: c.opts}
}

// Collect runs the walkthrough of one game, exploring after every step.
// Records of one game come back in step order.
func (c *Collector) Collect(ctx context.Context, game string, env Environment) ([]record.Record, error) {
	if c.tracker == nil {
		return nil, fmt.Errorf("game %s: no rule base", game)
	}
	main := NewBranch(game, c.tracker, env, c.opts.EmitViews)
	rec, err := main.Start(ctx)
	if err != nil {
		return nil, err
	}
	records := []record.Record{rec}

	walkthrough := c.Walkthrough(main.Observation().Walkthrough)
	rng := rand.New(rand.NewSource(c.opts.Seed))
	logging.Playthrough("collecting %s: %d walkthrough steps, mode %s", game, len(walkthrough), c.opts.Mode)

	for i, cmd := range walkthrough {
		if i > 0 {
			rec, err := main.Step(ctx, cmd)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
		if main.State() == Done {
			break
		}

		var branch []record.Record
		switch c.opts.Mode {
		case ModeExplore:
			branch, err = c.explore(ctx, main, walkthrough, i)
		case ModeBranch:
			branch, err = c.randomWalk(ctx, main, walkthrough, i, rng)
		}
		if err != nil {
			logging.PlaythroughWarn("%s: %s off walkthrough step %d failed: %v", game, c.opts.Mode, i, err)
			return nil, err
		}
		records = append(records, branch...)
	}

	logging.Playthrough("collected %s: %d records", game, len(records))
	return records, nil
}

// Walkthrough prefixes the walkthrough with the inventory command (when
// missing) and the restart sentinel.
func (c *Collector) Walkthrough(w []string) []string {
	out := []string{record.RestartCommand}
	if c.opts.InventoryCommand != "" && (len(w) == 0 || w[0] != c.opts.InventoryCommand) {
		out = append(out, c.opts.InventoryCommand)
	}
	return append(out, w...)
}

// Eligible filters admissible commands at walkthrough index i. Nothing is
// eligible after the last walkthrough step; the next walkthrough command is
// never eligible.
func (c *Collector) Eligible(admissible, walkthrough []string, i int) []string {
	if i+1 >= len(walkthrough) {
		return nil
	}
	var out []string
	for _, cmd := range admissible {
		if cmd == walkthrough[i+1] {
			continue
		}
		if contains(c.opts.AlwaysAllow, cmd) || !contains(c.opts.Ignore, firstWord(cmd)) {
			out = append(out, cmd)
		}
	}
	return out
}

// explore tries each eligible command on its own fork. Forks are independent,
// so up to Workers of them run at once; results keep command order.
func (c *Collector) explore(ctx context.Context, main *Branch, walkthrough []string, i int) ([]record.Record, error) {
	commands := c.Eligible(main.Observation().Admissible, walkthrough, i)
	if len(commands) == 0 {
		return nil, nil
	}

	forks := make([]*Branch, len(commands))
	for j := range commands {
		fork, err := main.Fork(j + 1)
		if err != nil {
			return nil, err
		}
		forks[j] = fork
	}

	results := make([]record.Record, len(commands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for j, cmd := range commands {
		j, cmd := j, cmd
		g.Go(func() error {
			rec, err := forks[j].Step(gctx, cmd)
			if err != nil {
				return fmt.Errorf("explore %q at step %d: %w", cmd, i, err)
			}
			results[j] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// randomWalk takes up to BranchingDepth random eligible commands on one fork.
// A step that ends the episode is not recorded.
func (c *Collector) randomWalk(ctx context.Context, main *Branch, walkthrough []string, i int, rng *rand.Rand) ([]record.Record, error) {
	if c.opts.BranchingDepth < 1 {
		return nil, nil
	}
	fork, err := main.Fork(1)
	if err != nil {
		return nil, err
	}

	var out []record.Record
	for j := 1; j <= c.opts.BranchingDepth; j++ {
		commands := c.Eligible(fork.Observation().Admissible, walkthrough, i)
		if len(commands) == 0 {
			fork.Finish(ErrBranchExhausted)
			return out, nil
		}
		cmd := commands[rng.Intn(len(commands))]
		rec, err := fork.Step(ctx, cmd)
		if err != nil {
			return nil, fmt.Errorf("branch %q at step (%d, %d): %w", cmd, i, j, err)
		}
		if fork.State() == Done {
			return out, nil
		}
		out = append(out, rec)
	}
	fork.Finish(ErrDepthReached)
	return out, nil
}

func firstWord(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
