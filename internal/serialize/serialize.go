// Package serialize renders facts in the canonical textual form used by
// every persisted view and graph command: pred(arg1, arg2), lower-cased.
package serialize

import (
	"sort"
	"strings"

	"playgraph/internal/types"
)

// Options configures entity rendering.
type Options struct {
	// ConstantNames renders every entity of a type under one display name
	// (e.g. P -> player, I -> inventory). An empty display name drops every
	// fact mentioning such an entity.
	ConstantNames map[string]string `yaml:"constant_names" json:"constant_names"`
	// Discard lists predicates that never appear in serialized output.
	Discard []string `yaml:"discard" json:"discard"`
}

// DefaultOptions names the player and inventory the way TextWorld games do.
func DefaultOptions() Options {
	return Options{
		ConstantNames: map[string]string{
			"P": "player",
			"I": "inventory",
		},
	}
}

// Serializer is immutable and safe for concurrent use.
type Serializer struct {
	names   map[string]string
	discard map[string]bool
}

// New builds a serializer.
func New(opts Options) *Serializer {
	s := &Serializer{
		names:   make(map[string]string, len(opts.ConstantNames)),
		discard: make(map[string]bool, len(opts.Discard)),
	}
	for typ, name := range opts.ConstantNames {
		s.names[typ] = name
	}
	for _, p := range opts.Discard {
		s.discard[p] = true
	}
	return s
}

// Discarded reports whether facts of the predicate are never serialized.
func (s *Serializer) Discarded(predicate string) bool {
	return s.discard[predicate]
}

// Entity renders one entity, or reports false if it is hidden.
func (s *Serializer) Entity(e types.Entity) (string, bool) {
	if name, ok := s.names[e.Type]; ok && e.Type != "" {
		if name == "" {
			return "", false
		}
		return strings.ToLower(name), true
	}
	return strings.ToLower(strings.TrimSpace(e.Name)), true
}

// Serialize renders a fact, or reports false if the fact is not serialized.
func (s *Serializer) Serialize(f types.Fact) (string, bool) {
	if s.discard[f.Predicate] {
		return "", false
	}
	var sb strings.Builder
	sb.WriteString(strings.ToLower(f.Predicate))
	sb.WriteByte('(')
	for i, a := range f.Args {
		name, ok := s.Entity(a)
		if !ok {
			return "", false
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(name)
	}
	sb.WriteByte(')')
	return sb.String(), true
}

// SerializeSet renders a set as a sorted, duplicate-free list. Distinct facts
// may share an encoding; they appear once.
func (s *Serializer) SerializeSet(set types.FactSet) []string {
	seen := make(map[string]bool, set.Len())
	out := make([]string, 0, set.Len())
	for _, f := range set.Facts() {
		str, ok := s.Serialize(f)
		if !ok || seen[str] {
			continue
		}
		seen[str] = true
		out = append(out, str)
	}
	sort.Strings(out)
	return out
}
