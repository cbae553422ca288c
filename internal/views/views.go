// Package views projects one step's facts into the three label views:
// full (oracle), local (what the player can observe right now) and seen (the
// branch's accumulated memory).
package views

import (
	"sort"

	"playgraph/internal/logging"
	"playgraph/internal/rules"
	"playgraph/internal/types"
)

// Scope is the set of entities observable by the player at one step.
type Scope map[types.Entity]struct{}

// Contains reports whether e is observable.
func (s Scope) Contains(e types.Entity) bool {
	_, ok := s[e]
	return ok
}

// Covers reports whether every argument of f is observable.
func (s Scope) Covers(f types.Fact) bool {
	for _, a := range f.Args {
		if !s.Contains(a) {
			return false
		}
	}
	return true
}

// About reports whether f describes an observable entity: its first
// argument is in scope. Facts without arguments are always about the scene.
func (s Scope) About(f types.Fact) bool {
	return len(f.Args) == 0 || s.Contains(f.Args[0])
}

// Entities returns the scope sorted by type then name.
func (s Scope) Entities() []types.Entity {
	out := make([]types.Entity, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Full is the oracle view: every ground-truth fact, unchanged.
func Full(full types.FactSet) types.FactSet {
	return full
}

// ComputeScope returns the entities the player can observe: the player, the
// inventory, the player's room, everything transitively contained in them
// (without entering opaque containers) and the rooms one connection away.
func ComputeScope(full types.FactSet, pol rules.Policy) Scope {
	scope := make(Scope)
	add := func(e types.Entity) bool {
		if scope.Contains(e) {
			return false
		}
		scope[e] = struct{}{}
		return true
	}

	for e := range full.Entities() {
		if pol.PlayerType != "" && e.Type == pol.PlayerType {
			add(e)
		}
		if pol.InventoryType != "" && e.Type == pol.InventoryType {
			add(e)
		}
	}
	if pol.LocationPredicate != "" {
		for _, f := range full.Facts() {
			if f.Predicate == pol.LocationPredicate && len(f.Args) == 2 && scope.Contains(f.Args[0]) {
				add(f.Args[1])
			}
		}
	}

	opaque := make(map[types.Entity]bool)
	containment := setOf(pol.Containment)
	connections := setOf(pol.Connections)
	opaquePreds := setOf(pol.Opaque)
	var contains, connects []types.Fact
	for _, f := range full.Facts() {
		switch {
		case opaquePreds[f.Predicate] && len(f.Args) == 1:
			opaque[f.Args[0]] = true
		case containment[f.Predicate] && len(f.Args) == 2:
			contains = append(contains, f)
		case connections[f.Predicate] && len(f.Args) == 2:
			connects = append(connects, f)
		}
	}

	for changed := true; changed; {
		changed = false
		for _, f := range contains {
			inner, outer := f.Args[0], f.Args[1]
			if scope.Contains(outer) && !opaque[outer] && add(inner) {
				changed = true
			}
		}
	}

	var neighbours []types.Entity
	for _, f := range connects {
		if scope.Contains(f.Args[1]) {
			neighbours = append(neighbours, f.Args[0])
		}
	}
	for _, n := range neighbours {
		add(n)
	}

	logging.ViewsDebug("scope: %d entities", len(scope))
	return scope
}

// Local returns the facts whose arguments are all observable. It is
// recomputed from scratch every step.
func Local(full types.FactSet, scope Scope) types.FactSet {
	return full.Filter(scope.Covers)
}

// Perceivable reports whether a closure fact may enter the seen view.
func Perceivable(f types.Fact, scope Scope, pol rules.Policy) bool {
	if len(pol.Perceivable) > 0 && !contains(pol.Perceivable, f.Predicate) {
		return false
	}
	if contains(pol.Global, f.Predicate) {
		return true
	}
	return scope.Covers(f)
}

// SeenInput carries everything one seen-view update needs.
type SeenInput struct {
	Previous types.FactSet
	Closure  types.FactSet
	Scope    Scope
	Action   *types.Action
	Rules    *rules.RuleBase
}

// Seen advances the seen accumulator by one step:
//
//	(Previous − retracted) ∪ (Closure ∩ perceivable)
//
// closed under inverse pairs. retracted holds the facts the last action
// consumed and previously seen facts about observable entities that no
// longer hold. The latter applies when RetractObserved is set or when the
// action carries no effect lists. A fact is about an observable entity when
// its first argument is in scope. Previous is never modified, so a forked
// branch may keep using it.
func Seen(in SeenInput) types.FactSet {
	pol := in.Rules.Policy

	retracted := types.NewBuilder(0)
	retract := func(f types.Fact) {
		retracted.Add(f)
		if inv, ok := in.Rules.Inverse(f); ok {
			retracted.Add(inv)
		}
	}
	if in.Action != nil {
		for _, f := range in.Action.Removed {
			retract(f)
		}
	}
	if pol.RetractObserved || !hasEffects(in.Action) {
		for _, f := range in.Previous.Facts() {
			if in.Scope.About(f) && !in.Closure.Has(f) {
				retract(f)
			}
		}
	}
	gone := retracted.Build()

	kept := in.Previous.Difference(gone)
	perceived := in.Closure.Filter(func(f types.Fact) bool {
		return Perceivable(f, in.Scope, pol)
	})
	seen := Complete(kept.Union(perceived), in.Rules)

	logging.ViewsDebug("seen: %d previous, %d retracted, %d perceived -> %d",
		in.Previous.Len(), in.Previous.Len()-kept.Len(), perceived.Len(), seen.Len())
	return seen
}

func hasEffects(a *types.Action) bool {
	return a != nil && (len(a.Removed) > 0 || len(a.Added) > 0)
}

// Complete adds the inverse partner of every fact that has one.
func Complete(s types.FactSet, rb *rules.RuleBase) types.FactSet {
	var missing []types.Fact
	for _, f := range s.Facts() {
		if inv, ok := rb.Inverse(f); ok && !s.Has(inv) {
			missing = append(missing, inv)
		}
	}
	return s.With(missing...)
}

func setOf(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[s] = true
	}
	return out
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
