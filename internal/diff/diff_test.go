package diff

import (
	"errors"
	"testing"

	"playgraph/internal/rules"
	"playgraph/internal/serialize"
	"playgraph/internal/types"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	player  = types.E("P", "P")
	kitchen = types.E("kitchen", "r")
	hallway = types.E("hallway", "r")
	garden  = types.E("garden", "r")
	apple   = types.E("apple", "f")
	inv     = types.E("I", "I")
)

func newDiffer(t *testing.T) *Differ {
	t.Helper()
	rb, err := rules.Parse(`
Decl at(X, Y).
Decl in(X, Y).
Decl north_of(X, Y).
Decl south_of(X, Y).
Decl adjacent(X, Y).
`, rules.Options{Pairs: []rules.InversePair{
		{Left: "north_of", Right: "south_of"},
		{Left: "adjacent", Right: "adjacent"},
	}})
	require.NoError(t, err)
	return NewDiffer(serialize.New(serialize.DefaultOptions()), rb)
}

func TestCommandsMovePlayer(t *testing.T) {
	d := newDiffer(t)

	step0 := types.NewFactSet(types.NewFact("at", player, kitchen))
	cmds := d.Commands(types.EmptySet(), step0)
	assert.Equal(t, []string{"add at(player, kitchen)"}, Strings(cmds))

	step1 := types.NewFactSet(types.NewFact("at", player, hallway))
	added, removed := Diff(step0, step1)
	assert.True(t, added.Equal(step1))
	assert.True(t, removed.Equal(step0))

	cmds = d.Commands(step0, step1)
	want := []string{"add at(player, hallway)", "delete at(player, kitchen)"}
	if diff := cmp.Diff(want, Strings(cmds)); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, d.CheckRoundTrip(step0, step1, cmds))
	assert.Equal(t, []string{"at(player, hallway)"}, Apply([]string{"at(player, kitchen)"}, cmds))
}

func TestNoChangeNoCommands(t *testing.T) {
	d := newDiffer(t)
	s := types.NewFactSet(types.NewFact("at", player, kitchen), types.NewFact("in", apple, inv))

	added, removed := Diff(s, s)
	assert.True(t, added.IsEmpty())
	assert.True(t, removed.IsEmpty())
	assert.Empty(t, d.Commands(s, s))
	assert.Empty(t, d.Synthesize(added, removed))
}

func TestInversePairCollapsing(t *testing.T) {
	d := newDiffer(t)
	cur := types.NewFactSet(
		types.NewFact("north_of", hallway, kitchen),
		types.NewFact("south_of", kitchen, hallway),
		types.NewFact("adjacent", garden, hallway),
		types.NewFact("adjacent", hallway, garden),
	)

	cmds := d.Commands(types.EmptySet(), cur)
	want := []string{
		"add adjacent(garden, hallway)",
		"add north_of(hallway, kitchen)",
	}
	if diff := cmp.Diff(want, Strings(cmds)); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "south_of(kitchen, hallway)", cmds[1].Implied)
	require.NoError(t, d.CheckRoundTrip(types.EmptySet(), cur, cmds))

	// Deleting the pair again collapses the same way.
	back := d.Commands(cur, types.EmptySet())
	assert.Equal(t, []string{"delete adjacent(garden, hallway)", "delete north_of(hallway, kitchen)"}, Strings(back))
	require.NoError(t, d.CheckRoundTrip(cur, types.EmptySet(), back))
}

func TestLonePartnerIsNotCollapsed(t *testing.T) {
	d := newDiffer(t)
	prev := types.NewFactSet(types.NewFact("south_of", kitchen, hallway))
	cur := prev.With(types.NewFact("north_of", hallway, kitchen))

	cmds := d.Commands(prev, cur)
	require.Len(t, cmds, 1)
	assert.Equal(t, "add north_of(hallway, kitchen)", cmds[0].String())
	assert.Empty(t, cmds[0].Implied)
}

func TestInverseLaw(t *testing.T) {
	d := newDiffer(t)
	a := types.NewFactSet(
		types.NewFact("at", player, kitchen),
		types.NewFact("in", apple, inv),
		types.NewFact("north_of", hallway, kitchen),
		types.NewFact("south_of", kitchen, hallway),
	)
	b := types.NewFactSet(
		types.NewFact("at", player, hallway),
		types.NewFact("in", apple, inv),
		types.NewFact("adjacent", garden, hallway),
		types.NewFact("adjacent", hallway, garden),
	)

	forward := Invert(d.Synthesize(Diff(a, b)))
	backward := d.Synthesize(Diff(b, a))
	if diff := cmp.Diff(Strings(backward), Strings(forward)); diff != "" {
		t.Errorf("inverse law violated (-backward +inverted forward):\n%s", diff)
	}

	require.NoError(t, d.CheckRoundTrip(a, b, d.Commands(a, b)))
	require.NoError(t, d.CheckRoundTrip(b, a, d.Commands(b, a)))
}

func TestCommandsReconcileSharedEncodings(t *testing.T) {
	d := newDiffer(t)
	// Both facts serialize to "at(player, kitchen)".
	prev := types.NewFactSet(types.NewFact("at", player, kitchen))
	cur := types.NewFactSet(types.NewFact("at", player, types.E("kitchen", "")))

	naive := d.Synthesize(Diff(prev, cur))
	err := d.CheckRoundTrip(prev, cur, naive)
	assert.True(t, errors.Is(err, ErrRoundTrip), "got %v", err)

	cmds := d.Commands(prev, cur)
	assert.Empty(t, cmds)
	assert.NoError(t, d.CheckRoundTrip(prev, cur, cmds))
}

func TestApplyStringsRestoresCollapsedPartner(t *testing.T) {
	d := newDiffer(t)
	pantry := types.E("pantry", "r")
	cur := types.NewFactSet(
		types.NewFact("north_of", pantry, kitchen),
		types.NewFact("south_of", kitchen, pantry),
	)

	persisted := Strings(d.Commands(types.EmptySet(), cur))
	require.Equal(t, []string{"add north_of(pantry, kitchen)"}, persisted)

	got, err := d.ApplyStrings(nil, persisted)
	require.NoError(t, err)
	assert.Equal(t, []string{"north_of(pantry, kitchen)", "south_of(kitchen, pantry)"}, got)

	got, err = d.ApplyStrings(got, []string{"delete north_of(pantry, kitchen)"})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = d.ApplyStrings(nil, []string{"move north_of(pantry, kitchen)"})
	assert.Error(t, err)
}

func TestPartner(t *testing.T) {
	d := newDiffer(t)
	cases := map[string]string{
		"north_of(hallway, kitchen)": "south_of(kitchen, hallway)",
		"south_of(kitchen, hallway)": "north_of(hallway, kitchen)",
		"adjacent(garden, hallway)":  "adjacent(hallway, garden)",
		"at(player, kitchen)":        "",
		"north_of(hallway)":          "",
		"north_of":                   "",
	}
	for in, want := range cases {
		got, ok := d.Partner(in)
		assert.Equal(t, want != "", ok, in)
		assert.Equal(t, want, got, in)
	}

	hidden := NewDiffer(serialize.New(serialize.Options{Discard: []string{"south_of"}}), d.rb)
	_, ok := hidden.Partner("north_of(hallway, kitchen)")
	assert.False(t, ok, "discarded partners are never rebuilt")
}

func TestParseCommand(t *testing.T) {
	c, err := ParseCommand("add at(player, kitchen)")
	require.NoError(t, err)
	assert.Equal(t, OpAdd, c.Op)
	assert.Equal(t, "at(player, kitchen)", c.Canonical)

	c, err = ParseCommand("  delete in(red apple, inventory) ")
	require.NoError(t, err)
	assert.Equal(t, OpDelete, c.Op)
	assert.Equal(t, "in(red apple, inventory)", c.Canonical)

	for _, bad := range []string{"", "add", "move at(a, b)"} {
		_, err := ParseCommand(bad)
		assert.Error(t, err, bad)
	}
}

func TestViewLines(t *testing.T) {
	prev := []string{"at(player, kitchen)", "in(apple, inventory)"}
	cur := []string{"at(player, hallway)", "in(apple, inventory)"}

	lines := ViewLines(prev, cur)
	var added, removed, same []string
	for _, l := range lines {
		switch l.Type {
		case LineAdded:
			added = append(added, l.Content)
		case LineRemoved:
			removed = append(removed, l.Content)
		default:
			same = append(same, l.Content)
		}
	}
	assert.Equal(t, []string{"at(player, hallway)"}, added)
	assert.Equal(t, []string{"at(player, kitchen)"}, removed)
	assert.Equal(t, []string{"in(apple, inventory)"}, same)
	assert.Contains(t, FormatLines(lines), "+ at(player, hallway)\n")
}
