// Package world provides scripted game environments: a YAML state machine
// whose states carry the ground facts the environment reports and whose
// edges are the admissible commands.
package world

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"playgraph/internal/logging"
	"playgraph/internal/rules"
	"playgraph/internal/types"

	"gopkg.in/yaml.v3"
)

// ErrUnknownCommand is returned when a command is not admissible in the
// current state.
var ErrUnknownCommand = errors.New("unknown command")

// GameFile is the on-disk layout of a scripted game. Rules names the game's
// rule manifest relative to the file; empty means the configured one.
//
//	id: cooking-1
//	rules: ../rules.yaml
//	walkthrough: [open fridge, take milk from fridge]
//	start: kitchen
//	states:
//	  kitchen:
//	    observation: You are in a kitchen.
//	    facts: ["at(/P/player, /r/kitchen)", "closed(/c/fridge)"]
//	    commands:
//	      open fridge: {to: fridge_open, action: open, fact: "open(/c/fridge)"}
type GameFile struct {
	ID          string               `yaml:"id"`
	Rules       string               `yaml:"rules"`
	Walkthrough []string             `yaml:"walkthrough"`
	Start       string               `yaml:"start"`
	States      map[string]StateFile `yaml:"states"`
}

// StateFile is one state of a scripted game.
type StateFile struct {
	Observation string                 `yaml:"observation"`
	Facts       []string               `yaml:"facts"`
	Done        bool                   `yaml:"done"`
	Commands    map[string]CommandFile `yaml:"commands"`
}

// CommandFile is one transition.
type CommandFile struct {
	To     string `yaml:"to"`
	Action string `yaml:"action"`
	Fact   string `yaml:"fact"`
}

// Game is a parsed, validated scripted game. It is immutable and shared by
// every environment playing it.
type Game struct {
	ID          string
	Rules       string
	Walkthrough []string
	start       string
	states      map[string]*state
}

type state struct {
	id          string
	observation string
	facts       types.FactSet
	done        bool
	commands    map[string]transition
	admissible  []string
}

type transition struct {
	to     string
	action types.Action
}

// LoadGame reads and validates a game file.
func LoadGame(path string) (*Game, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read game %s: %w", path, err)
	}
	var gf GameFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("failed to parse game %s: %w", path, err)
	}
	if gf.ID == "" {
		gf.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if gf.Rules != "" && !filepath.IsAbs(gf.Rules) {
		gf.Rules = filepath.Join(filepath.Dir(path), gf.Rules)
	}
	g, err := NewGame(gf)
	if err != nil {
		return nil, fmt.Errorf("game %s: %w", path, err)
	}
	logging.WorldDebug("loaded game %s from %s: %d states", g.ID, path, len(g.states))
	return g, nil
}

// LoadGames loads every *.yaml and *.yml game in a directory, sorted by id.
func LoadGames(dir string) ([]*Game, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}

	games := make([]*Game, 0, len(paths))
	ids := make(map[string]string)
	for _, p := range paths {
		g, err := LoadGame(p)
		if err != nil {
			return nil, err
		}
		if other, dup := ids[g.ID]; dup {
			return nil, fmt.Errorf("game id %q defined by both %s and %s", g.ID, other, p)
		}
		ids[g.ID] = p
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	logging.World("loaded %d games from %s", len(games), dir)
	return games, nil
}

// NewGame validates a game description. Every transition must lead to a
// declared state and the walkthrough must be playable from the start state.
func NewGame(gf GameFile) (*Game, error) {
	if gf.ID == "" {
		return nil, fmt.Errorf("game has no id")
	}
	if _, ok := gf.States[gf.Start]; !ok {
		return nil, fmt.Errorf("start state %q is not defined", gf.Start)
	}

	g := &Game{
		ID:          gf.ID,
		Rules:       gf.Rules,
		Walkthrough: append([]string(nil), gf.Walkthrough...),
		start:       gf.Start,
		states:      make(map[string]*state, len(gf.States)),
	}
	for id, sf := range gf.States {
		facts, err := rules.ParseFacts(sf.Facts)
		if err != nil {
			return nil, fmt.Errorf("state %q: %w", id, err)
		}
		g.states[id] = &state{
			id:          id,
			observation: sf.Observation,
			facts:       facts,
			done:        sf.Done,
			commands:    make(map[string]transition, len(sf.Commands)),
		}
	}

	for id, sf := range gf.States {
		from := g.states[id]
		for cmd, cf := range sf.Commands {
			to, ok := g.states[cf.To]
			if !ok {
				return nil, fmt.Errorf("state %q: command %q leads to undefined state %q", id, cmd, cf.To)
			}
			action, err := newAction(cmd, cf, from.facts, to.facts)
			if err != nil {
				return nil, fmt.Errorf("state %q: command %q: %w", id, cmd, err)
			}
			from.commands[cmd] = transition{to: cf.To, action: action}
			from.admissible = append(from.admissible, cmd)
		}
		sort.Strings(from.admissible)
	}

	cur := g.states[g.start]
	for i, cmd := range g.Walkthrough {
		if cur.done {
			return nil, fmt.Errorf("walkthrough step %d %q follows the end of the game", i, cmd)
		}
		tr, ok := cur.commands[cmd]
		if !ok {
			return nil, fmt.Errorf("walkthrough step %d %q is not admissible in state %q", i, cmd, cur.id)
		}
		cur = g.states[tr.to]
	}
	return g, nil
}

// newAction derives an action's effects from the facts that differ between
// the two states.
func newAction(cmd string, cf CommandFile, from, to types.FactSet) (types.Action, error) {
	name := cf.Action
	if fields := strings.Fields(cmd); name == "" && len(fields) > 0 {
		name = fields[0]
	}
	action := types.Action{
		Name:    name,
		Removed: from.Difference(to).Facts(),
		Added:   to.Difference(from).Facts(),
	}
	if cf.Fact != "" {
		f, err := rules.ParseFact(cf.Fact)
		if err != nil {
			return types.Action{}, err
		}
		action.Fact = &f
	}
	return action, nil
}

// States returns the number of states.
func (g *Game) States() int {
	return len(g.states)
}

// NewEnv returns a fresh environment for the game.
func (g *Game) NewEnv() *Env {
	return &Env{game: g}
}
