// Package inference computes the forward-chaining closure of a ground fact
// set under a rule base.
//
// Rules are compiled once per rule base into slot-indexed patterns. Each pass
// evaluates every rule whose antecedent predicates changed in the previous
// pass, by backtracking over the antecedents in declaration order. Binding
// environments are copied on extension so a failed branch never leaks
// bindings into its siblings. Evaluation stops at the first pass that adds no
// fact.
package inference

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"playgraph/internal/logging"
	"playgraph/internal/rules"
	"playgraph/internal/types"
)

var (
	// ErrNonTermination reports that the working set outgrew every ground
	// instantiation the rule base could possibly produce.
	ErrNonTermination = errors.New("closure did not reach a fixpoint within the ground-instantiation bound")
	// ErrFactLimit reports that the working set exceeded Config.FactLimit.
	ErrFactLimit = errors.New("closure exceeded the configured fact limit")
)

// Config tunes closure evaluation.
type Config struct {
	// FactLimit caps the working set. Zero means unlimited.
	FactLimit int `yaml:"fact_limit" json:"fact_limit"`
	// MaxPasses caps the number of passes. Zero derives it from the ground bound.
	MaxPasses int `yaml:"max_passes" json:"max_passes"`
	// CommandPredicate, when set, injects CommandPredicate("<command>") before
	// evaluation so rules can condition on the raw command text.
	CommandPredicate string `yaml:"command_predicate" json:"command_predicate"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FactLimit:        100000,
		CommandPredicate: "command",
	}
}

// Input is everything one closure needs from the environment.
type Input struct {
	Facts      types.FactSet
	LastAction *types.Action
	Command    string
}

// Stats describes one closure run.
type Stats struct {
	Passes   int           `json:"passes"`
	Derived  int           `json:"derived"`
	Bindings int           `json:"bindings"`
	Bound    int           `json:"bound"`
	Duration time.Duration `json:"duration"`
}

// Engine evaluates a fixed rule base. It holds no per-call state and is safe
// for concurrent use.
type Engine struct {
	rb        *rules.RuleBase
	config    Config
	compiled  []compiledRule
	constants []types.Entity
}

// NewEngine compiles the rule base.
func NewEngine(rb *rules.RuleBase, cfg Config) (*Engine, error) {
	if rb == nil {
		return nil, fmt.Errorf("rule base is required")
	}
	e := &Engine{
		rb:        rb,
		config:    cfg,
		constants: rb.Constants(),
	}
	for _, r := range rb.Rules {
		cr, err := compile(r)
		if err != nil {
			return nil, err
		}
		e.compiled = append(e.compiled, cr)
	}
	logging.Inference("compiled %d rules for rule base %q", len(e.compiled), rb.Name)
	return e, nil
}

// RuleBase returns the rule base the engine was built from.
func (e *Engine) RuleBase() *rules.RuleBase {
	return e.rb
}

// Closure returns the fixpoint of in.Facts under the rule base.
// The last action's fact and the command fact take part in evaluation but
// are left out of the result unless they were raw facts too.
// in.Facts is never modified.
func (e *Engine) Closure(in Input) (_ types.FactSet, stats Stats, _ error) {
	timer := logging.StartTimer(logging.CategoryInference, "closure")
	defer func() { stats.Duration = timer.StopWithThreshold(500 * time.Millisecond) }()

	if in.Facts.IsEmpty() {
		return types.EmptySet(), stats, nil
	}

	working := in.Facts.Builder()
	injected := Injected(e.config, in)
	for _, f := range injected {
		working.Add(f)
	}

	idx := newIndex(working)
	bound := e.groundBound(idx)
	stats.Bound = bound
	maxPasses := bound + 1
	if e.config.MaxPasses > 0 && e.config.MaxPasses < maxPasses {
		maxPasses = e.config.MaxPasses
	}

	changed := idx.predicates()
	for {
		if stats.Passes >= maxPasses {
			return types.FactSet{}, stats, e.abort(fmt.Errorf("%w: %d passes without fixpoint", ErrNonTermination, stats.Passes))
		}
		stats.Passes++

		var fresh []types.Fact
		for i := range e.compiled {
			r := &e.compiled[i]
			if !r.touches(changed) {
				continue
			}
			r.solve(idx, func(env bindings) {
				stats.Bindings++
				f := r.instantiate(env)
				if working.Add(f) {
					fresh = append(fresh, f)
				}
			})
		}

		if len(fresh) == 0 {
			break
		}
		stats.Derived += len(fresh)
		if working.Len() > bound {
			return types.FactSet{}, stats, e.abort(fmt.Errorf("%w: %d facts exceed bound %d", ErrNonTermination, working.Len(), bound))
		}
		if e.config.FactLimit > 0 && working.Len() > e.config.FactLimit {
			return types.FactSet{}, stats, e.abort(fmt.Errorf("%w: %d > %d", ErrFactLimit, working.Len(), e.config.FactLimit))
		}
		changed = idx.extend(fresh)
	}

	out := Strip(working.Build(), in.Facts, injected)
	logging.InferenceDebug("closure: %d raw -> %d facts in %d passes (%d bindings)",
		in.Facts.Len(), out.Len(), stats.Passes, stats.Bindings)
	return out, stats, nil
}

func (e *Engine) abort(err error) error {
	logging.InferenceWarn("rule base %q: %v", e.rb.Name, err)
	return err
}

// Injected returns the facts seeded alongside the raw facts: the last
// action's own fact and the command fact.
func Injected(cfg Config, in Input) []types.Fact {
	var out []types.Fact
	if in.LastAction != nil && in.LastAction.Fact != nil {
		out = append(out, *in.LastAction.Fact)
	}
	if cfg.CommandPredicate != "" && in.Command != "" {
		out = append(out, types.NewFact(cfg.CommandPredicate, types.E(strings.ToLower(strings.TrimSpace(in.Command)), "")))
	}
	return out
}

// Strip removes injected facts from a closure unless they were raw.
func Strip(closure, raw types.FactSet, injected []types.Fact) types.FactSet {
	var drop []types.Fact
	for _, f := range injected {
		if !raw.Has(f) {
			drop = append(drop, f)
		}
	}
	if len(drop) == 0 {
		return closure
	}
	return closure.Without(drop...)
}

// groundBound is the number of distinct ground facts expressible over the
// known entities and predicates. Rules never invent entities, so no correct
// closure can exceed it.
// A predicate used at several arities counts once per arity.
func (e *Engine) groundBound(idx *index) int {
	type shape struct {
		predicate string
		arity     int
	}
	entities := make(map[types.Entity]struct{})
	shapes := make(map[shape]struct{})
	for pred, facts := range idx.byPred {
		for _, f := range facts {
			shapes[shape{pred, len(f.Args)}] = struct{}{}
			for _, a := range f.Args {
				entities[a] = struct{}{}
			}
		}
	}
	for _, c := range e.constants {
		entities[c] = struct{}{}
	}
	for _, r := range e.compiled {
		shapes[shape{r.head.predicate, len(r.head.args)}] = struct{}{}
	}

	n := float64(len(entities))
	total := 0.0
	for s := range shapes {
		total += math.Pow(n, float64(s.arity))
	}
	if total >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(total)
}

// =============================================================================
// FACT INDEX
// =============================================================================

// index groups the working set by predicate in deterministic order.
type index struct {
	byPred map[string][]types.Fact
}

func newIndex(b *types.Builder) *index {
	idx := &index{byPred: make(map[string][]types.Fact)}
	for _, f := range b.Facts() {
		idx.byPred[f.Predicate] = append(idx.byPred[f.Predicate], f)
	}
	return idx
}

func (idx *index) predicates() map[string]bool {
	out := make(map[string]bool, len(idx.byPred))
	for p := range idx.byPred {
		out[p] = true
	}
	return out
}

// extend appends facts derived in one pass and reports which predicates grew.
func (idx *index) extend(facts []types.Fact) map[string]bool {
	sort.Slice(facts, func(i, j int) bool { return facts[i].Key() < facts[j].Key() })
	changed := make(map[string]bool)
	for _, f := range facts {
		idx.byPred[f.Predicate] = append(idx.byPred[f.Predicate], f)
		changed[f.Predicate] = true
	}
	return changed
}
