// Package diff computes the graph-edit commands that move a serialized view
// from one step to the next.
//
// Facts are diffed as sets, then rendered through the canonical serializer.
// When both members of an inverse pair change together, only the member with
// the lexicographically smaller encoding is emitted; the command records its
// partner so Apply can restore it, and ApplyStrings rebuilds it from the
// string form alone.
package diff

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"playgraph/internal/logging"
	"playgraph/internal/rules"
	"playgraph/internal/serialize"
	"playgraph/internal/types"
)

// Op is a graph-edit operation.
type Op string

const (
	OpAdd    Op = "add"
	OpDelete Op = "delete"
)

// ErrRoundTrip reports that applying the commands to the previous view does
// not reproduce the current view.
var ErrRoundTrip = errors.New("graph commands do not reproduce the current view")

// Command is one graph edit.
type Command struct {
	Op        Op
	Canonical string
	Fact      types.Fact
	// Implied holds the encoding of a collapsed inverse partner.
	Implied string
}

// String renders the command as "<op> <canonical>".
func (c Command) String() string {
	return string(c.Op) + " " + c.Canonical
}

// ParseCommand parses the string form of a command. The fact is not recovered.
func ParseCommand(s string) (Command, error) {
	op, canonical, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok || canonical == "" {
		return Command{}, fmt.Errorf("malformed graph command %q", s)
	}
	switch Op(op) {
	case OpAdd, OpDelete:
		return Command{Op: Op(op), Canonical: strings.TrimSpace(canonical)}, nil
	default:
		return Command{}, fmt.Errorf("unknown graph operation %q in %q", op, s)
	}
}

// Strings renders commands in order.
func Strings(cmds []Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.String()
	}
	return out
}

// Diff returns added = cur − prev and removed = prev − cur.
func Diff(prev, cur types.FactSet) (added, removed types.FactSet) {
	return cur.Difference(prev), prev.Difference(cur)
}

// Differ synthesizes commands under one serializer and rule base.
type Differ struct {
	ser *serialize.Serializer
	rb  *rules.RuleBase
	// inverse maps a serialized predicate to its serialized partner.
	inverse map[string]string
}

// NewDiffer builds a differ. rb supplies the inverse pairs; nil disables
// collapsing.
func NewDiffer(ser *serialize.Serializer, rb *rules.RuleBase) *Differ {
	d := &Differ{ser: ser, rb: rb, inverse: make(map[string]string)}
	if rb == nil {
		return d
	}
	for _, p := range rb.Pairs {
		if !ser.Discarded(p.Right) {
			d.inverse[strings.ToLower(p.Left)] = strings.ToLower(p.Right)
		}
		if !ser.Discarded(p.Left) {
			d.inverse[strings.ToLower(p.Right)] = strings.ToLower(p.Left)
		}
	}
	return d
}

// Synthesize emits one command per changed fact, collapses inverse pairs and
// sorts by (operation, canonical string).
func (d *Differ) Synthesize(added, removed types.FactSet) []Command {
	cmds := append(d.collapse(OpAdd, d.candidates(added, nil)), d.collapse(OpDelete, d.candidates(removed, nil))...)
	sortCommands(cmds)
	return cmds
}

// Commands diffs prev against cur and synthesizes the commands. Facts whose
// encoding already exists in the target view on the other side are skipped,
// so the commands always transform SerializeSet(prev) into SerializeSet(cur).
func (d *Differ) Commands(prev, cur types.FactSet) []Command {
	added, removed := Diff(prev, cur)
	before := toSet(d.ser.SerializeSet(prev))
	after := toSet(d.ser.SerializeSet(cur))

	cmds := append(d.collapse(OpAdd, d.candidates(added, before)), d.collapse(OpDelete, d.candidates(removed, after))...)
	sortCommands(cmds)
	logging.DiffDebug("diff: +%d -%d facts -> %d commands", added.Len(), removed.Len(), len(cmds))
	return cmds
}

type candidate struct {
	fact      types.Fact
	canonical string
}

// candidates serializes a fact set, dropping hidden facts, duplicate
// encodings and encodings present in skip.
func (d *Differ) candidates(s types.FactSet, skip map[string]bool) []candidate {
	seen := make(map[string]bool)
	var out []candidate
	for _, f := range s.Facts() {
		str, ok := d.ser.Serialize(f)
		if !ok || seen[str] || skip[str] {
			continue
		}
		seen[str] = true
		out = append(out, candidate{fact: f, canonical: str})
	}
	return out
}

// collapse drops the member of an inverse pair whose partner is also among
// the candidates and has the smaller encoding.
func (d *Differ) collapse(op Op, cands []candidate) []Command {
	byKey := make(map[string]string, len(cands))
	for _, c := range cands {
		byKey[c.fact.Key()] = c.canonical
	}

	cmds := make([]Command, 0, len(cands))
	for _, c := range cands {
		cmd := Command{Op: op, Canonical: c.canonical, Fact: c.fact}
		if d.rb != nil {
			if inv, ok := d.rb.Inverse(c.fact); ok {
				if partner, present := byKey[inv.Key()]; present && partner != c.canonical {
					if partner < c.canonical {
						continue
					}
					cmd.Implied = partner
				}
			}
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

// Apply edits a serialized view. Collapsed partners are restored.
func Apply(view []string, cmds []Command) []string {
	set := toSet(view)
	for _, c := range cmds {
		switch c.Op {
		case OpAdd:
			set[c.Canonical] = true
			if c.Implied != "" {
				set[c.Implied] = true
			}
		case OpDelete:
			delete(set, c.Canonical)
			if c.Implied != "" {
				delete(set, c.Implied)
			}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Partner returns the encoding of the inverse partner of a serialized binary
// fact, "pred(a, b)" -> "inv(b, a)".
func (d *Differ) Partner(canonical string) (string, bool) {
	pred, rest, ok := strings.Cut(canonical, "(")
	if !ok || !strings.HasSuffix(rest, ")") {
		return "", false
	}
	inv, ok := d.inverse[pred]
	if !ok {
		return "", false
	}
	args := strings.Split(strings.TrimSuffix(rest, ")"), ", ")
	if len(args) != 2 {
		return "", false
	}
	return inv + "(" + args[1] + ", " + args[0] + ")", true
}

// ApplyStrings edits a serialized view with commands in their string form.
// Every add or delete of one member of an inverse pair also adds or deletes
// its partner, which restores partners dropped by collapsing.
func (d *Differ) ApplyStrings(view, cmds []string) ([]string, error) {
	parsed := make([]Command, 0, len(cmds))
	for _, s := range cmds {
		c, err := ParseCommand(s)
		if err != nil {
			return nil, err
		}
		if p, ok := d.Partner(c.Canonical); ok && p != c.Canonical {
			c.Implied = p
		}
		parsed = append(parsed, c)
	}
	return Apply(view, parsed), nil
}

// Invert swaps every add and delete.
func Invert(cmds []Command) []Command {
	out := make([]Command, len(cmds))
	for i, c := range cmds {
		out[i] = c
		if c.Op == OpAdd {
			out[i].Op = OpDelete
		} else {
			out[i].Op = OpAdd
		}
	}
	sortCommands(out)
	return out
}

// CheckRoundTrip verifies that the string form of cmds transforms prev's
// serialized view into cur's.
func (d *Differ) CheckRoundTrip(prev, cur types.FactSet, cmds []Command) error {
	got, err := d.ApplyStrings(d.ser.SerializeSet(prev), Strings(cmds))
	if err != nil {
		return err
	}
	want := d.ser.SerializeSet(cur)
	if equalStrings(got, want) {
		return nil
	}
	gotSet, wantSet := toSet(got), toSet(want)
	var missing, extra []string
	for _, s := range want {
		if !gotSet[s] {
			missing = append(missing, s)
		}
	}
	for _, s := range got {
		if !wantSet[s] {
			extra = append(extra, s)
		}
	}
	return fmt.Errorf("%w: missing %v, extra %v", ErrRoundTrip, missing, extra)
}

func sortCommands(cmds []Command) {
	sort.SliceStable(cmds, func(i, j int) bool {
		if cmds[i].Op != cmds[j].Op {
			return cmds[i].Op < cmds[j].Op
		}
		return cmds[i].Canonical < cmds[j].Canonical
	})
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[s] = true
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
