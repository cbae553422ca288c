// Package mangle runs a rule base on the Google Mangle engine.
// It serves as a reference evaluator: the native closure in package
// inference must agree with it fact for fact.
package mangle

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"playgraph/internal/inference"
	"playgraph/internal/logging"
	"playgraph/internal/rules"
	"playgraph/internal/types"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
)

// ErrClosureMismatch reports that the native and reference closures differ.
var ErrClosureMismatch = errors.New("closure mismatch between native and reference evaluation")

// Evaluator wraps a compiled Mangle program for one rule base.
type Evaluator struct {
	rb          *rules.RuleBase
	config      inference.Config
	programInfo *analysis.ProgramInfo
	declared    []ast.PredicateSym
	constants   map[string]types.Entity
}

// NewEvaluator prepares the rule base's program for evaluation.
// cfg supplies the same injection settings the native engine uses.
func NewEvaluator(rb *rules.RuleBase, cfg inference.Config) (*Evaluator, error) {
	if rb == nil {
		return nil, fmt.Errorf("rule base is required")
	}

	programInfo := rb.Program()
	if programInfo == nil {
		var err error
		programInfo, err = analysis.AnalyzeOneUnit(rb.Unit(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to analyze rule program: %w", err)
		}
	}

	ev := &Evaluator{
		rb:          rb,
		config:      cfg,
		programInfo: programInfo,
		constants:   make(map[string]types.Entity),
	}
	for sym := range programInfo.Decls {
		if sym.Symbol == "Package" || sym.Symbol == "Use" {
			continue
		}
		ev.declared = append(ev.declared, sym)
	}
	sort.Slice(ev.declared, func(i, j int) bool { return ev.declared[i].Symbol < ev.declared[j].Symbol })
	for _, c := range rb.Constants() {
		ev.constants[c.ToConstant().String()] = c
	}
	return ev, nil
}

// Closure evaluates the program over in and returns every fact in the store
// afterwards, with injected facts stripped the same way the native engine
// strips them.
func (ev *Evaluator) Closure(in inference.Input) (types.FactSet, error) {
	if in.Facts.IsEmpty() {
		return types.EmptySet(), nil
	}
	timer := logging.StartTimer(logging.CategoryInference, "mangle reference closure")
	defer timer.Stop()

	injected := inference.Injected(ev.config, in)
	seeded := in.Facts.With(injected...)

	// Constants are rendered back to the entities they came from. A name
	// constant alone cannot tell a typed entity from an untyped one whose name
	// contains a slash.
	reverse := make(map[string]types.Entity, len(ev.constants))
	for k, v := range ev.constants {
		reverse[k] = v
	}

	baseStore := factstore.NewSimpleInMemoryStore()
	store := factstore.NewConcurrentFactStore(baseStore)
	for _, f := range seeded.Facts() {
		for _, a := range f.Args {
			reverse[a.ToConstant().String()] = a
		}
		store.Add(f.ToAtom())
	}

	stats, err := mengine.EvalProgramWithStats(ev.programInfo, store)
	if err != nil {
		return types.FactSet{}, fmt.Errorf("mangle evaluation failed: %w", err)
	}
	logging.InferenceDebug("mangle evaluation stats: %+v", stats)

	out := seeded.Builder()
	for _, sym := range ev.declared {
		err := store.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
			f, err := fromAtom(atom, reverse)
			if err != nil {
				return err
			}
			out.Add(f)
			return nil
		})
		if err != nil {
			return types.FactSet{}, fmt.Errorf("failed to read %s: %w", sym.Symbol, err)
		}
	}
	return inference.Strip(out.Build(), in.Facts, injected), nil
}

func fromAtom(atom ast.Atom, reverse map[string]types.Entity) (types.Fact, error) {
	args := make([]types.Entity, len(atom.Args))
	for i, arg := range atom.Args {
		c, ok := arg.(ast.Constant)
		if !ok {
			return types.Fact{}, fmt.Errorf("derived atom %s has non-constant argument %d", atom.String(), i)
		}
		if e, ok := reverse[c.String()]; ok {
			args[i] = e
			continue
		}
		e, err := types.EntityFromConstant(c)
		if err != nil {
			return types.Fact{}, err
		}
		args[i] = e
	}
	return types.Fact{Predicate: atom.Predicate.Symbol, Args: args}, nil
}

// Verify compares a native closure with the reference closure.
func Verify(native, reference types.FactSet) error {
	if native.Equal(reference) {
		return nil
	}
	missing := reference.Difference(native)
	extra := native.Difference(reference)
	return fmt.Errorf("%w: %d missing, %d extra%s", ErrClosureMismatch,
		missing.Len(), extra.Len(), summarize(missing, extra))
}

func summarize(missing, extra types.FactSet) string {
	const limit = 5
	var sb strings.Builder
	write := func(label string, s types.FactSet) {
		for i, f := range s.Facts() {
			if i == limit {
				sb.WriteString(fmt.Sprintf("; %s: ...", label))
				return
			}
			sb.WriteString(fmt.Sprintf("; %s: %s", label, f.String()))
		}
	}
	write("missing", missing)
	write("extra", extra)
	return sb.String()
}

// Check runs both evaluators on the same input and verifies agreement.
func Check(eng *inference.Engine, ev *Evaluator, in inference.Input) (types.FactSet, inference.Stats, error) {
	start := time.Now()
	native, stats, err := eng.Closure(in)
	if err != nil {
		return types.FactSet{}, stats, err
	}
	reference, err := ev.Closure(in)
	if err != nil {
		return types.FactSet{}, stats, err
	}
	if err := Verify(native, reference); err != nil {
		return types.FactSet{}, stats, err
	}
	logging.InferenceDebug("closure verified against mangle in %v (%d facts)", time.Since(start), native.Len())
	return native, stats, nil
}
