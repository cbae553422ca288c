package inference

import (
	"playgraph/internal/rules"
	"playgraph/internal/types"
)

const (
	slotConst = -1 // argument is a constant
	slotAny   = -2 // anonymous variable
)

// slotTerm is a compiled argument: a variable slot index or a constant.
type slotTerm struct {
	slot  int
	value types.Entity
}

type compiledPattern struct {
	predicate string
	args      []slotTerm
}

type compiledRule struct {
	name  string
	body  []compiledPattern
	head  compiledPattern
	slots int
	preds map[string]bool
}

type binding struct {
	value types.Entity
	ok    bool
}

// bindings maps variable slots to entities. A bindings value is never
// modified once handed to a deeper search level; extension copies.
type bindings []binding

func (env bindings) with(slot int, e types.Entity) bindings {
	next := make(bindings, len(env))
	copy(next, env)
	next[slot] = binding{value: e, ok: true}
	return next
}

func compile(r rules.Rule) (compiledRule, error) {
	slots := make(map[string]int)
	cr := compiledRule{name: r.Name, preds: make(map[string]bool)}

	convert := func(p rules.Pattern, head bool) (compiledPattern, error) {
		cp := compiledPattern{predicate: p.Predicate, args: make([]slotTerm, len(p.Args))}
		for i, a := range p.Args {
			switch {
			case !a.IsVar():
				cp.args[i] = slotTerm{slot: slotConst, value: a.Const}
			case a.IsAnonymous():
				if head {
					return cp, &rules.ConfigurationError{Rule: r.Name, Predicate: p.Predicate, Reason: "anonymous variable in consequent"}
				}
				cp.args[i] = slotTerm{slot: slotAny}
			default:
				idx, ok := slots[a.Var]
				if !ok {
					if head {
						return cp, &rules.ConfigurationError{Rule: r.Name, Predicate: p.Predicate,
							Reason: "variable " + a.Var + " is not bound by any antecedent"}
					}
					idx = len(slots)
					slots[a.Var] = idx
				}
				cp.args[i] = slotTerm{slot: idx}
			}
		}
		return cp, nil
	}

	for _, a := range r.Antecedents {
		cp, err := convert(a, false)
		if err != nil {
			return cr, err
		}
		cr.body = append(cr.body, cp)
		cr.preds[a.Predicate] = true
	}
	head, err := convert(r.Consequent, true)
	if err != nil {
		return cr, err
	}
	cr.head = head
	cr.slots = len(slots)
	return cr, nil
}

// touches reports whether any antecedent predicate is in changed.
func (r *compiledRule) touches(changed map[string]bool) bool {
	for p := range r.preds {
		if changed[p] {
			return true
		}
	}
	return false
}

// solve enumerates every binding that satisfies all antecedents, searching
// antecedents in declaration order and candidate facts in index order.
func (r *compiledRule) solve(idx *index, emit func(bindings)) {
	var step func(i int, env bindings)
	step = func(i int, env bindings) {
		if i == len(r.body) {
			emit(env)
			return
		}
		pat := &r.body[i]
		for _, f := range idx.byPred[pat.predicate] {
			if next, ok := pat.match(f, env); ok {
				step(i+1, next)
			}
		}
	}
	step(0, make(bindings, r.slots))
}

// match unifies the pattern with a ground fact under env.
func (p *compiledPattern) match(f types.Fact, env bindings) (bindings, bool) {
	if len(f.Args) != len(p.args) {
		return nil, false
	}
	out := env
	for i, t := range p.args {
		arg := f.Args[i]
		switch t.slot {
		case slotAny:
		case slotConst:
			if t.value != arg {
				return nil, false
			}
		default:
			if b := out[t.slot]; b.ok {
				if b.value != arg {
					return nil, false
				}
				continue
			}
			out = out.with(t.slot, arg)
		}
	}
	return out, true
}

func (r *compiledRule) instantiate(env bindings) types.Fact {
	args := make([]types.Entity, len(r.head.args))
	for i, t := range r.head.args {
		if t.slot == slotConst {
			args[i] = t.value
		} else {
			args[i] = env[t.slot].value
		}
	}
	return types.Fact{Predicate: r.head.predicate, Args: args}
}
