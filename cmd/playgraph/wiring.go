package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"playgraph/internal/batch"
	"playgraph/internal/config"
	"playgraph/internal/inference"
	"playgraph/internal/playthrough"
	"playgraph/internal/rules"
	"playgraph/internal/serialize"
	"playgraph/internal/store"
	"playgraph/internal/world"

	"go.uber.org/zap"
)

// commandContext applies --timeout and cancels on SIGINT/SIGTERM.
func commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

func inferenceConfig(c *config.Config) inference.Config {
	return inference.Config{
		FactLimit:        c.Inference.FactLimit,
		MaxPasses:        c.Inference.MaxPasses,
		CommandPredicate: c.Inference.CommandPredicate,
	}
}

func loadRules(c *config.Config) (*rules.RuleBase, error) {
	return loadManifest(c.Rules.Manifest)
}

func loadManifest(path string) (*rules.RuleBase, error) {
	rb, err := rules.LoadManifest(path)
	if err != nil {
		return nil, err
	}
	logger.Info("Rule base loaded",
		zap.String("name", rb.Name),
		zap.String("manifest", path),
		zap.Int("rules", len(rb.Rules)),
		zap.Int("predicates", len(rb.Predicates())))
	return rb, nil
}

func newTracker(c *config.Config, rb *rules.RuleBase, verify bool) (*playthrough.Tracker, error) {
	return playthrough.NewTracker(rb, playthrough.TrackerOptions{
		Inference: inferenceConfig(c),
		Serialize: serialize.Options{
			ConstantNames: c.Rules.ConstantNames,
			Discard:       c.Rules.Discard,
		},
		Verify: verify || c.Rules.Verify,
	})
}

func collectorOptions(c *config.Config) playthrough.CollectorOptions {
	return playthrough.CollectorOptions{
		Mode:             playthrough.Mode(c.Collector.Mode),
		BranchingDepth:   c.Collector.BranchingDepth,
		Seed:             c.Collector.Seed,
		Ignore:           c.Collector.Ignore,
		AlwaysAllow:      c.Collector.AlwaysAllow,
		InventoryCommand: c.Collector.InventoryCommand,
		EmitViews:        c.Collector.EmitViews,
		Workers:          c.Collector.ExploreWorkers,
	}
}

func storeConfig(c *config.Config) store.Config {
	return store.Config{
		Format: store.Format(c.Output.Format),
		Path:   c.Output.Path,
		Driver: c.Output.Driver,
		Force:  c.Output.Force,
	}
}

// loadGames accepts game files and directories of game files.
func loadGames(paths []string) ([]*world.Game, error) {
	var games []*world.Game
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			gs, err := world.LoadGames(p)
			if err != nil {
				return nil, err
			}
			games = append(games, gs...)
			continue
		}
		g, err := world.LoadGame(p)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	if len(games) == 0 {
		return nil, fmt.Errorf("no games found in %v", paths)
	}
	return games, nil
}

// trackers builds one tracker per rule manifest, on first use.
type trackers struct {
	cfg    *config.Config
	verify bool

	mu    sync.Mutex
	built map[string]trackerResult
}

type trackerResult struct {
	tracker *playthrough.Tracker
	err     error
}

func newTrackers(c *config.Config, verify bool) *trackers {
	return &trackers{cfg: c, verify: verify, built: make(map[string]trackerResult)}
}

// For returns the tracker for a game. A game without its own manifest uses
// the configured one.
func (t *trackers) For(g *world.Game) (*playthrough.Tracker, error) {
	path := g.Rules
	if path == "" {
		path = t.cfg.Rules.Manifest
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.built[path]; ok {
		return r.tracker, r.err
	}
	var r trackerResult
	rb, err := loadManifest(path)
	if err == nil {
		r.tracker, err = newTracker(t.cfg, rb, t.verify)
	}
	r.err = err
	if err != nil {
		logger.Warn("Rule base failed to load", zap.String("manifest", path), zap.Error(err))
	}
	t.built[path] = r
	return r.tracker, r.err
}

func jobs(games []*world.Game, ts *trackers) []batch.Job {
	out := make([]batch.Job, len(games))
	for i, g := range games {
		g := g
		out[i] = batch.Job{
			Game:    g.ID,
			NewEnv:  func() (playthrough.Environment, error) { return g.NewEnv(), nil },
			Tracker: func() (*playthrough.Tracker, error) { return ts.For(g) },
		}
	}
	return out
}
