package types

import "sort"

// FactSet is an immutable, unordered set of facts. Duplicates collapse.
//
// No method mutates the receiver, so a FactSet may be shared freely between
// playthrough branches: forking is passing the same value on. Use a Builder to
// construct new sets.
type FactSet struct {
	m map[string]Fact
}

// EmptySet returns the empty fact set.
func EmptySet() FactSet {
	return FactSet{}
}

// NewFactSet builds a set from the given facts.
func NewFactSet(facts ...Fact) FactSet {
	b := NewBuilder(len(facts))
	for _, f := range facts {
		b.Add(f)
	}
	return b.Build()
}

// Len returns the number of facts.
func (s FactSet) Len() int {
	return len(s.m)
}

// IsEmpty reports whether the set has no facts.
func (s FactSet) IsEmpty() bool {
	return len(s.m) == 0
}

// Has reports membership.
func (s FactSet) Has(f Fact) bool {
	_, ok := s.m[f.Key()]
	return ok
}

// HasKey reports membership by precomputed key.
func (s FactSet) HasKey(key string) bool {
	_, ok := s.m[key]
	return ok
}

// Facts returns the facts ordered by key, which makes iteration deterministic.
func (s FactSet) Facts() []Fact {
	keys := s.sortedKeys()
	out := make([]Fact, len(keys))
	for i, k := range keys {
		out[i] = s.m[k]
	}
	return out
}

// ByPredicate groups the facts by predicate, each group ordered by key.
func (s FactSet) ByPredicate() map[string][]Fact {
	out := make(map[string][]Fact)
	for _, f := range s.Facts() {
		out[f.Predicate] = append(out[f.Predicate], f)
	}
	return out
}

// Entities returns every entity appearing as an argument.
func (s FactSet) Entities() map[Entity]struct{} {
	out := make(map[Entity]struct{})
	for _, f := range s.m {
		for _, a := range f.Args {
			out[a] = struct{}{}
		}
	}
	return out
}

// Equal reports whether both sets hold the same facts.
func (s FactSet) Equal(other FactSet) bool {
	if len(s.m) != len(other.m) {
		return false
	}
	for k := range s.m {
		if _, ok := other.m[k]; !ok {
			return false
		}
	}
	return true
}

// SubsetOf reports whether every fact of s is in other.
func (s FactSet) SubsetOf(other FactSet) bool {
	for k := range s.m {
		if _, ok := other.m[k]; !ok {
			return false
		}
	}
	return true
}

// Union returns s ∪ other.
func (s FactSet) Union(other FactSet) FactSet {
	if other.IsEmpty() {
		return s
	}
	if s.IsEmpty() {
		return other
	}
	b := s.Builder()
	for k, f := range other.m {
		b.m[k] = f
	}
	return b.Build()
}

// Difference returns s − other.
func (s FactSet) Difference(other FactSet) FactSet {
	return s.Filter(func(f Fact) bool { return !other.Has(f) })
}

// Intersect returns s ∩ other.
func (s FactSet) Intersect(other FactSet) FactSet {
	return s.Filter(other.Has)
}

// Filter returns the facts satisfying keep.
func (s FactSet) Filter(keep func(Fact) bool) FactSet {
	b := NewBuilder(0)
	for k, f := range s.m {
		if keep(f) {
			b.m[k] = f
		}
	}
	return b.Build()
}

// With returns s plus the given facts.
func (s FactSet) With(facts ...Fact) FactSet {
	if len(facts) == 0 {
		return s
	}
	b := s.Builder()
	for _, f := range facts {
		b.Add(f)
	}
	return b.Build()
}

// Without returns s minus the given facts.
func (s FactSet) Without(facts ...Fact) FactSet {
	if len(facts) == 0 {
		return s
	}
	b := s.Builder()
	for _, f := range facts {
		b.Remove(f)
	}
	return b.Build()
}

// Builder returns a builder seeded with a copy of s.
func (s FactSet) Builder() *Builder {
	b := NewBuilder(len(s.m))
	for k, f := range s.m {
		b.m[k] = f
	}
	return b
}

func (s FactSet) sortedKeys() []string {
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Builder accumulates facts for a new FactSet. A Builder must not be used
// after Build.
type Builder struct {
	m map[string]Fact
}

// NewBuilder returns an empty builder with the given capacity hint.
func NewBuilder(capacity int) *Builder {
	return &Builder{m: make(map[string]Fact, capacity)}
}

// Add inserts f and reports whether it was absent.
func (b *Builder) Add(f Fact) bool {
	k := f.Key()
	if _, ok := b.m[k]; ok {
		return false
	}
	b.m[k] = NewFact(f.Predicate, f.Args...)
	return true
}

// Remove deletes f and reports whether it was present.
func (b *Builder) Remove(f Fact) bool {
	k := f.Key()
	if _, ok := b.m[k]; !ok {
		return false
	}
	delete(b.m, k)
	return true
}

// Has reports membership.
func (b *Builder) Has(f Fact) bool {
	_, ok := b.m[f.Key()]
	return ok
}

// Len returns the number of facts added so far.
func (b *Builder) Len() int {
	return len(b.m)
}

// Build freezes the builder into a FactSet.
func (b *Builder) Build() FactSet {
	m := b.m
	b.m = nil
	if len(m) == 0 {
		return FactSet{}
	}
	return FactSet{m: m}
}

// Facts returns the facts added so far, ordered by key.
func (b *Builder) Facts() []Fact {
	keys := make([]string, 0, len(b.m))
	for k := range b.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Fact, len(keys))
	for i, k := range keys {
		out[i] = b.m[k]
	}
	return out
}
