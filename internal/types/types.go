// Package types provides the value types shared by every playgraph package:
// entities, ground facts, environment actions and immutable fact sets.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"fmt"
	"strings"

	"github.com/google/mangle/ast"
)

// =============================================================================
// ENTITIES
// =============================================================================

// Entity identifies a game object, location or abstract concept.
// Equality is by the (Name, Type) pair.
type Entity struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

// E is shorthand for a typed entity.
func E(name, typ string) Entity {
	return Entity{Name: name, Type: typ}
}

// String renders the entity as name or name:type.
func (e Entity) String() string {
	if e.Type == "" {
		return e.Name
	}
	return e.Name + ":" + e.Type
}

// ToConstant converts the entity to a Mangle constant.
// Typed entities become /type/name name constants, untyped ones /name.
// Names that are not valid name constants fall back to string constants.
func (e Entity) ToConstant() ast.Constant {
	candidate := "/" + e.Name
	if e.Type != "" {
		candidate = "/" + e.Type + "/" + e.Name
	}
	if isValidMangleNameConstant(candidate) {
		if c, err := ast.Name(candidate); err == nil {
			return c
		}
	}
	if e.Type == "" {
		return ast.String(e.Name)
	}
	return ast.String(e.Type + "/" + e.Name)
}

// EntityFromConstant is the inverse of ToConstant for name constants and
// untyped string constants.
func EntityFromConstant(c ast.Constant) (Entity, error) {
	switch c.Type {
	case ast.NameType:
		sym := strings.TrimPrefix(c.Symbol, "/")
		if sym == "" {
			return Entity{}, fmt.Errorf("empty name constant")
		}
		if idx := strings.Index(sym, "/"); idx > 0 {
			return Entity{Type: sym[:idx], Name: sym[idx+1:]}, nil
		}
		return Entity{Name: sym}, nil
	case ast.StringType:
		if c.Symbol == "" {
			return Entity{}, fmt.Errorf("empty string constant")
		}
		return Entity{Name: c.Symbol}, nil
	default:
		return Entity{}, fmt.Errorf("constant %s cannot name an entity", c.String())
	}
}

func isValidMangleNameConstant(v string) bool {
	if !strings.HasPrefix(v, "/") || len(v) < 2 {
		return false
	}
	// Whitespace is never valid in Mangle name constants
	if strings.ContainsAny(v, " \t\n\r\"") {
		return false
	}
	if strings.Contains(v, "//") || strings.HasSuffix(v, "/") {
		return false
	}
	_, err := ast.Name(v)
	return err == nil
}

// =============================================================================
// FACTS
// =============================================================================

// Fact is a ground proposition: a predicate applied to an ordered, fixed-arity
// list of entities. Facts are values; Args must not be mutated after construction.
type Fact struct {
	Predicate string   `json:"predicate" yaml:"predicate"`
	Args      []Entity `json:"args" yaml:"args"`
}

// NewFact builds a fact, copying args so callers may reuse their slice.
func NewFact(predicate string, args ...Entity) Fact {
	cp := make([]Entity, len(args))
	copy(cp, args)
	return Fact{Predicate: predicate, Args: cp}
}

// Arity returns the number of arguments.
func (f Fact) Arity() int {
	return len(f.Args)
}

// Key returns an injective structural key used for set membership and ordering.
// The separators are control characters that never appear in names.
func (f Fact) Key() string {
	var sb strings.Builder
	sb.Grow(len(f.Predicate) + 16*len(f.Args))
	sb.WriteString(f.Predicate)
	for _, a := range f.Args {
		sb.WriteByte(0x1f)
		sb.WriteString(a.Name)
		sb.WriteByte(0x1e)
		sb.WriteString(a.Type)
	}
	return sb.String()
}

// Equal reports structural equality.
func (f Fact) Equal(other Fact) bool {
	if f.Predicate != other.Predicate || len(f.Args) != len(other.Args) {
		return false
	}
	for i := range f.Args {
		if f.Args[i] != other.Args[i] {
			return false
		}
	}
	return true
}

// String returns the Datalog-style representation of the fact.
func (f Fact) String() string {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", f.Predicate, strings.Join(args, ", "))
}

// ToAtom converts a Fact to a Mangle AST Atom for direct store insertion.
func (f Fact) ToAtom() ast.Atom {
	terms := make([]ast.BaseTerm, len(f.Args))
	for i, a := range f.Args {
		terms[i] = a.ToConstant()
	}
	return ast.NewAtom(f.Predicate, terms...)
}

// =============================================================================
// ACTIONS
// =============================================================================

// Action is the environment's account of the command it just executed:
// the action's own fact form (e.g. take(apple)) and its effects.
type Action struct {
	Name    string `json:"name" yaml:"name"`
	Fact    *Fact  `json:"fact,omitempty" yaml:"fact,omitempty"`
	Removed []Fact `json:"removed,omitempty" yaml:"removed,omitempty"`
	Added   []Fact `json:"added,omitempty" yaml:"added,omitempty"`
}

// Retracts reports whether the action consumed the given fact.
func (a *Action) Retracts(f Fact) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Removed {
		if r.Equal(f) {
			return true
		}
	}
	return false
}
