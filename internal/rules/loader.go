package rules

import (
	"fmt"
	"strings"

	"playgraph/internal/logging"
	"playgraph/internal/types"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/parse"
)

// Options carries the non-program parts of a rule base.
type Options struct {
	Name   string
	Pairs  []InversePair
	Policy Policy
}

// Parse loads a rule program written in Mangle syntax.
//
// Every predicate must be declared with Decl. Every rule must be a positive
// conjunctive clause whose head variables all occur in its body. Facts and
// transforms are rejected: ground facts come from the environment, not the
// rule base.
func Parse(source string, opts Options) (*RuleBase, error) {
	unit, err := parse.Unit(strings.NewReader(source))
	if err != nil {
		return nil, configErr("", "", "failed to parse program: %v", err)
	}

	rb := &RuleBase{
		Name:    opts.Name,
		Policy:  opts.Policy,
		Pairs:   opts.Pairs,
		decls:   make(map[string]int),
		inverse: make(map[string]string),
		unit:    unit,
	}

	for _, decl := range unit.Decls {
		sym := decl.DeclaredAtom.Predicate
		if skipDecl(sym.Symbol) {
			continue
		}
		if prev, ok := rb.decls[sym.Symbol]; ok && prev != sym.Arity {
			return nil, configErr("", sym.Symbol, "declared with arity %d and %d", prev, sym.Arity)
		}
		rb.decls[sym.Symbol] = sym.Arity
	}

	for i, clause := range unit.Clauses {
		rule, err := rb.fromClause(clause, i)
		if err != nil {
			return nil, err
		}
		rb.Rules = append(rb.Rules, rule)
	}

	if err := rb.indexPairs(); err != nil {
		return nil, err
	}
	if err := rb.checkPolicy(); err != nil {
		return nil, err
	}

	program, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, configErr("", "", "program analysis failed: %v", err)
	}
	rb.program = program

	logging.RulesDebug("loaded rule base %q: %d rules, %d predicates, %d inverse pairs",
		rb.Name, len(rb.Rules), len(rb.decls), len(rb.Pairs))
	return rb, nil
}

func skipDecl(sym string) bool {
	return sym == "" || sym == "Package" || sym == "Use"
}

func (rb *RuleBase) fromClause(clause ast.Clause, index int) (Rule, error) {
	name := fmt.Sprintf("%s#%d", clause.Head.Predicate.Symbol, index)

	if clause.Transform != nil {
		return Rule{}, configErr(name, "", "transforms are not supported")
	}
	if len(clause.Premises) == 0 {
		return Rule{}, configErr(name, clause.Head.Predicate.Symbol, "rule has no antecedents")
	}

	head, err := rb.toPattern(name, clause.Head)
	if err != nil {
		return Rule{}, err
	}

	rule := Rule{Name: name, Consequent: head}
	bound := make(map[string]bool)
	for _, premise := range clause.Premises {
		atom, ok := premise.(ast.Atom)
		if !ok {
			return Rule{}, configErr(name, "", "unsupported premise %v: only positive atoms are allowed", premise)
		}
		pat, err := rb.toPattern(name, atom)
		if err != nil {
			return Rule{}, err
		}
		for _, v := range pat.Variables() {
			bound[v] = true
		}
		rule.Antecedents = append(rule.Antecedents, pat)
	}

	for _, a := range head.Args {
		if a.IsAnonymous() {
			return Rule{}, configErr(name, head.Predicate, "anonymous variable in consequent")
		}
		if a.IsVar() && !bound[a.Var] {
			return Rule{}, configErr(name, head.Predicate, "variable %s is not bound by any antecedent", a.Var)
		}
	}
	return rule, nil
}

func (rb *RuleBase) toPattern(rule string, atom ast.Atom) (Pattern, error) {
	sym := atom.Predicate.Symbol
	arity, ok := rb.decls[sym]
	if !ok {
		return Pattern{}, configErr(rule, sym, "predicate is not declared")
	}
	if arity != len(atom.Args) {
		return Pattern{}, configErr(rule, sym, "declared with arity %d but used with %d arguments", arity, len(atom.Args))
	}

	pat := Pattern{Predicate: sym, Args: make([]Term, len(atom.Args))}
	for i, arg := range atom.Args {
		switch v := arg.(type) {
		case ast.Variable:
			pat.Args[i] = V(v.Symbol)
		case ast.Constant:
			e, err := types.EntityFromConstant(v)
			if err != nil {
				return Pattern{}, configErr(rule, sym, "argument %d: %v", i, err)
			}
			pat.Args[i] = C(e)
		default:
			return Pattern{}, configErr(rule, sym, "argument %d: unsupported term %v", i, arg)
		}
	}
	return pat, nil
}

func (rb *RuleBase) indexPairs() error {
	for _, pair := range rb.Pairs {
		for _, p := range []string{pair.Left, pair.Right} {
			arity, ok := rb.decls[p]
			if !ok {
				return configErr("", p, "inverse pair names an undeclared predicate")
			}
			if arity != 2 {
				return configErr("", p, "inverse pairs need binary predicates, got arity %d", arity)
			}
		}
		if _, dup := rb.inverse[pair.Left]; dup {
			return configErr("", pair.Left, "predicate belongs to more than one inverse pair")
		}
		if _, dup := rb.inverse[pair.Right]; dup && !pair.Symmetric() {
			return configErr("", pair.Right, "predicate belongs to more than one inverse pair")
		}
		rb.inverse[pair.Left] = pair.Right
		rb.inverse[pair.Right] = pair.Left
	}

	perceivable := make(map[string]bool)
	for _, p := range rb.Policy.Perceivable {
		perceivable[p] = true
	}
	if len(perceivable) > 0 {
		for _, pair := range rb.Pairs {
			if perceivable[pair.Left] != perceivable[pair.Right] {
				return configErr("", pair.Left, "inverse partner %s must share perceivability", pair.Right)
			}
		}
	}
	return nil
}

func (rb *RuleBase) checkPolicy() error {
	expect := func(preds []string, want int, role string) error {
		for _, p := range preds {
			arity, ok := rb.decls[p]
			if !ok {
				return configErr("", p, "%s predicate is not declared", role)
			}
			if want >= 0 && arity != want {
				return configErr("", p, "%s predicate must have arity %d, got %d", role, want, arity)
			}
		}
		return nil
	}

	pol := rb.Policy
	if pol.LocationPredicate != "" {
		if err := expect([]string{pol.LocationPredicate}, 2, "location"); err != nil {
			return err
		}
	}
	if err := expect(pol.Containment, 2, "containment"); err != nil {
		return err
	}
	if err := expect(pol.Connections, 2, "connection"); err != nil {
		return err
	}
	if err := expect(pol.Opaque, 1, "opaque"); err != nil {
		return err
	}
	if err := expect(pol.Perceivable, -1, "perceivable"); err != nil {
		return err
	}
	return expect(pol.Global, -1, "global")
}

// ParseFact parses a ground fact in Mangle atom syntax, e.g.
// at(/P/player, /r/kitchen) or in("wooden spoon", /c/drawer).
func ParseFact(text string) (types.Fact, error) {
	clean := strings.TrimSpace(text)
	clean = strings.TrimSuffix(clean, ".")
	if clean == "" {
		return types.Fact{}, fmt.Errorf("empty fact")
	}

	atom, err := parse.Atom(clean)
	if err != nil {
		// Attempt again with a trailing period
		atom, err = parse.Atom(clean + ".")
		if err != nil {
			return types.Fact{}, fmt.Errorf("failed to parse fact %q: %w", text, err)
		}
	}

	args := make([]types.Entity, len(atom.Args))
	for i, arg := range atom.Args {
		c, ok := arg.(ast.Constant)
		if !ok {
			return types.Fact{}, fmt.Errorf("fact %q: argument %d is not ground", text, i)
		}
		e, err := types.EntityFromConstant(c)
		if err != nil {
			return types.Fact{}, fmt.Errorf("fact %q: argument %d: %w", text, i, err)
		}
		args[i] = e
	}
	return types.Fact{Predicate: atom.Predicate.Symbol, Args: args}, nil
}

// ParseFacts parses a list of facts, failing on the first malformed entry.
func ParseFacts(texts []string) (types.FactSet, error) {
	b := types.NewBuilder(len(texts))
	for _, t := range texts {
		f, err := ParseFact(t)
		if err != nil {
			return types.FactSet{}, err
		}
		b.Add(f)
	}
	return b.Build(), nil
}
