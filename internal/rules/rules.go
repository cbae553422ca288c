// Package rules models the static rule base a game ships with: inference
// rules over typed facts, the predicate declarations they are checked against,
// the inverse predicate pairs, and the visibility policy the views use.
//
// Rule programs are written in Mangle syntax and loaded once per game. A rule
// base is never mutated after Load returns.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"playgraph/internal/types"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/parse"
)

// AnonymousVar matches anything and binds nothing.
const AnonymousVar = "_"

// Term is one argument slot of a pattern: a variable or a constant entity.
type Term struct {
	Var   string       `json:"var,omitempty"`
	Const types.Entity `json:"const,omitempty"`
}

// V builds a variable term.
func V(name string) Term {
	return Term{Var: name}
}

// C builds a constant term.
func C(e types.Entity) Term {
	return Term{Const: e}
}

// IsVar reports whether the term is a variable.
func (t Term) IsVar() bool {
	return t.Var != ""
}

// IsAnonymous reports whether the term is the wildcard variable.
func (t Term) IsAnonymous() bool {
	return t.Var == AnonymousVar
}

func (t Term) String() string {
	if t.IsVar() {
		return t.Var
	}
	return t.Const.String()
}

// Pattern is a fact template whose arguments may be variables.
type Pattern struct {
	Predicate string `json:"predicate"`
	Args      []Term `json:"args"`
}

// P builds a pattern.
func P(predicate string, args ...Term) Pattern {
	return Pattern{Predicate: predicate, Args: args}
}

// Arity returns the number of arguments.
func (p Pattern) Arity() int {
	return len(p.Args)
}

// Variables returns the named (non-anonymous) variables in order of first use.
func (p Pattern) Variables() []string {
	var out []string
	seen := make(map[string]bool)
	for _, a := range p.Args {
		if a.IsVar() && !a.IsAnonymous() && !seen[a.Var] {
			seen[a.Var] = true
			out = append(out, a.Var)
		}
	}
	return out
}

func (p Pattern) String() string {
	args := make([]string, len(p.Args))
	for i, a := range p.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", p.Predicate, strings.Join(args, ", "))
}

// Rule derives its consequent for every variable binding that satisfies all
// antecedents at once.
type Rule struct {
	Name        string    `json:"name"`
	Antecedents []Pattern `json:"antecedents"`
	Consequent  Pattern   `json:"consequent"`
}

func (r Rule) String() string {
	body := make([]string, len(r.Antecedents))
	for i, a := range r.Antecedents {
		body[i] = a.String()
	}
	return fmt.Sprintf("%s :- %s.", r.Consequent.String(), strings.Join(body, ", "))
}

// InversePair declares that Left(a, b) and Right(b, a) describe the same
// relation. A pair with Left == Right declares a symmetric predicate.
type InversePair struct {
	Left  string `yaml:"left" json:"left"`
	Right string `yaml:"right" json:"right"`
}

// Symmetric reports whether the pair names a single symmetric predicate.
func (p InversePair) Symmetric() bool {
	return p.Left == p.Right
}

// Policy holds the visibility parameters owned by the rule base.
type Policy struct {
	// PlayerType is the entity type of the player (TextWorld: P).
	PlayerType string `yaml:"player_type" json:"player_type"`
	// InventoryType is the entity type of the inventory (TextWorld: I).
	InventoryType string `yaml:"inventory_type" json:"inventory_type"`
	// LocationPredicate places the player in a room: at(player, room).
	LocationPredicate string `yaml:"location_predicate" json:"location_predicate"`
	// Containment predicates are (inner, outer) and are followed transitively.
	Containment []string `yaml:"containment" json:"containment"`
	// Connections are (neighbour, here) and reveal the neighbour only.
	Connections []string `yaml:"connections" json:"connections"`
	// Opaque unary predicates hide the contents of a container.
	Opaque []string `yaml:"opaque" json:"opaque"`
	// Perceivable limits which predicates may enter the seen view. Empty means all.
	Perceivable []string `yaml:"perceivable" json:"perceivable"`
	// Global predicates are perceivable regardless of scope.
	Global []string `yaml:"global" json:"global"`
	// RetractObserved drops seen facts about in-scope entities that no longer
	// hold even when the action lists its effects.
	RetractObserved bool `yaml:"retract_observed" json:"retract_observed"`
}

// RuleBase is the loaded, validated rule set for one game.
type RuleBase struct {
	Name   string
	Rules  []Rule
	Policy Policy
	Pairs  []InversePair

	decls   map[string]int
	inverse map[string]string
	unit    parse.SourceUnit
	program *analysis.ProgramInfo
}

// Arity returns the declared arity of a predicate.
func (rb *RuleBase) Arity(predicate string) (int, bool) {
	n, ok := rb.decls[predicate]
	return n, ok
}

// Predicates returns the declared predicates, sorted.
func (rb *RuleBase) Predicates() []string {
	out := make([]string, 0, len(rb.decls))
	for p := range rb.decls {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Inverse returns the fact describing the same relation from the other
// direction, if f's predicate belongs to an inverse pair.
func (rb *RuleBase) Inverse(f types.Fact) (types.Fact, bool) {
	other, ok := rb.inverse[f.Predicate]
	if !ok || len(f.Args) != 2 {
		return types.Fact{}, false
	}
	return types.NewFact(other, f.Args[1], f.Args[0]), true
}

// Unit returns the parsed Mangle source unit.
func (rb *RuleBase) Unit() parse.SourceUnit {
	return rb.unit
}

// Program returns the Mangle analysis of the rule program.
func (rb *RuleBase) Program() *analysis.ProgramInfo {
	return rb.program
}

// Constants returns every entity named by a rule pattern.
func (rb *RuleBase) Constants() []types.Entity {
	seen := make(map[types.Entity]bool)
	var out []types.Entity
	add := func(p Pattern) {
		for _, a := range p.Args {
			if !a.IsVar() && !seen[a.Const] {
				seen[a.Const] = true
				out = append(out, a.Const)
			}
		}
	}
	for _, r := range rb.Rules {
		for _, a := range r.Antecedents {
			add(a)
		}
		add(r.Consequent)
	}
	return out
}
