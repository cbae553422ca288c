package views

import (
	"testing"

	"playgraph/internal/rules"
	"playgraph/internal/types"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const houseProgram = `
Decl at(X, Y).
Decl in(X, Y).
Decl on(X, Y).
Decl closed(X).
Decl north_of(X, Y).
Decl south_of(X, Y).
Decl weather(X).

south_of(Y, X) :- north_of(X, Y).
north_of(Y, X) :- south_of(X, Y).
`

var (
	player  = types.E("player", "P")
	inv     = types.E("I", "I")
	kitchen = types.E("kitchen", "r")
	hallway = types.E("hallway", "r")
	garden  = types.E("garden", "r")
	fridge  = types.E("fridge", "c")
	milk    = types.E("milk", "f")
	table   = types.E("table", "s")
	knife   = types.E("knife", "o")
	apple   = types.E("apple", "f")
	carrot  = types.E("carrot", "f")
	sunny   = types.E("sunny", "")
)

// housePolicy is an assumed visibility policy: containment and one-hop
// connections from the player's room, closed containers opaque, weather
// global. Real games supply their own in the rule manifest.
func housePolicy() rules.Policy {
	return rules.Policy{
		PlayerType:        "P",
		InventoryType:     "I",
		LocationPredicate: "at",
		Containment:       []string{"at", "in", "on"},
		Connections:       []string{"north_of", "south_of"},
		Opaque:            []string{"closed"},
		Global:            []string{"weather"},
	}
}

func houseRules(t *testing.T, pol rules.Policy) *rules.RuleBase {
	t.Helper()
	rb, err := rules.Parse(houseProgram, rules.Options{
		Name:   "house",
		Pairs:  []rules.InversePair{{Left: "north_of", Right: "south_of"}},
		Policy: pol,
	})
	require.NoError(t, err)
	return rb
}

// house returns the world with the player in the given room, closed under
// the inverse rule the way the inference engine would close it.
func house(room types.Entity) types.FactSet {
	return types.NewFactSet(
		types.NewFact("at", player, room),
		types.NewFact("north_of", hallway, kitchen),
		types.NewFact("south_of", kitchen, hallway),
		types.NewFact("north_of", garden, hallway),
		types.NewFact("south_of", hallway, garden),
		types.NewFact("at", fridge, kitchen),
		types.NewFact("closed", fridge),
		types.NewFact("in", milk, fridge),
		types.NewFact("at", table, kitchen),
		types.NewFact("on", knife, table),
		types.NewFact("in", apple, inv),
		types.NewFact("at", carrot, garden),
		types.NewFact("weather", sunny),
	)
}

func rendered(s types.FactSet) []string {
	var out []string
	for _, f := range s.Facts() {
		out = append(out, f.String())
	}
	return out
}

func TestFullIsIdentity(t *testing.T) {
	full := house(kitchen)
	assert.True(t, Full(full).Equal(full))
}

func TestComputeScope(t *testing.T) {
	scope := ComputeScope(house(kitchen), housePolicy())

	want := []types.Entity{inv, player, fridge, apple, knife, hallway, kitchen, table}
	if diff := cmp.Diff(want, scope.Entities()); diff != "" {
		t.Errorf("scope mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, scope.Contains(milk), "closed fridge hides its contents")
	assert.False(t, scope.Contains(garden), "connections reveal one hop only")
}

func TestLocal(t *testing.T) {
	full := house(kitchen)
	local := Local(full, ComputeScope(full, housePolicy()))

	want := []string{
		"at(fridge:c, kitchen:r)",
		"at(player:P, kitchen:r)",
		"at(table:s, kitchen:r)",
		"closed(fridge:c)",
		"in(apple:f, I:I)",
		"north_of(hallway:r, kitchen:r)",
		"on(knife:o, table:s)",
		"south_of(kitchen:r, hallway:r)",
	}
	if diff := cmp.Diff(want, rendered(local)); diff != "" {
		t.Errorf("local view mismatch (-want +got):\n%s", diff)
	}

	// Local is recomputed, never accumulated.
	moved := house(hallway)
	local = Local(moved, ComputeScope(moved, housePolicy()))
	assert.False(t, local.Has(types.NewFact("at", table, kitchen)))
	assert.True(t, local.Has(types.NewFact("north_of", garden, hallway)))
}

func TestPerceivable(t *testing.T) {
	full := house(kitchen)
	scope := ComputeScope(full, housePolicy())
	pol := housePolicy()

	assert.True(t, Perceivable(types.NewFact("weather", sunny), scope, pol), "global predicates ignore scope")
	assert.False(t, Perceivable(types.NewFact("in", milk, fridge), scope, pol))
	assert.True(t, Perceivable(types.NewFact("on", knife, table), scope, pol))

	pol.Perceivable = []string{"at"}
	assert.False(t, Perceivable(types.NewFact("on", knife, table), scope, pol))
	assert.True(t, Perceivable(types.NewFact("at", table, kitchen), scope, pol))
}

func step(rb *rules.RuleBase, prev, closure types.FactSet, action *types.Action) types.FactSet {
	return Seen(SeenInput{
		Previous: prev,
		Closure:  closure,
		Scope:    ComputeScope(closure, rb.Policy),
		Action:   action,
		Rules:    rb,
	})
}

func TestSeenAccumulates(t *testing.T) {
	rb := houseRules(t, housePolicy())

	seen0 := step(rb, types.EmptySet(), house(kitchen), nil)
	assert.True(t, seen0.Has(types.NewFact("at", player, kitchen)))
	assert.True(t, seen0.Has(types.NewFact("weather", sunny)))
	assert.False(t, seen0.Has(types.NewFact("in", milk, fridge)))
	assert.False(t, seen0.Has(types.NewFact("at", carrot, garden)))

	goNorth := &types.Action{
		Name:    "go north",
		Removed: []types.Fact{types.NewFact("at", player, kitchen)},
		Added:   []types.Fact{types.NewFact("at", player, hallway)},
	}
	seen1 := step(rb, seen0, house(hallway), goNorth)

	assert.True(t, seen1.Has(types.NewFact("at", player, hallway)))
	assert.False(t, seen1.Has(types.NewFact("at", player, kitchen)), "consumed by the action")
	assert.True(t, seen1.Has(types.NewFact("on", knife, table)), "memory of the kitchen persists")
	assert.True(t, seen1.Has(types.NewFact("north_of", garden, hallway)))

	retracted := types.NewFactSet(goNorth.Removed...)
	assert.True(t, seen0.Difference(retracted).SubsetOf(seen1), "seen only grows outside action retractions")
}

func TestSeenRetractObserved(t *testing.T) {
	pol := housePolicy()
	pol.RetractObserved = true
	rb := houseRules(t, pol)

	seen0 := step(rb, types.EmptySet(), house(kitchen), nil)
	require.True(t, seen0.Has(types.NewFact("closed", fridge)))

	opened := house(kitchen).Without(types.NewFact("closed", fridge))
	seen1 := step(rb, seen0, opened, &types.Action{Name: "open fridge"})

	assert.False(t, seen1.Has(types.NewFact("closed", fridge)))
	assert.True(t, seen1.Has(types.NewFact("in", milk, fridge)), "an open fridge shows its contents")

	// Facts about entities out of scope are kept.
	seen2 := step(rb, seen1, house(hallway).Without(types.NewFact("at", table, kitchen)), nil)
	assert.True(t, seen2.Has(types.NewFact("at", table, kitchen)))
}

func TestSeenBranchIsolation(t *testing.T) {
	rb := houseRules(t, housePolicy())
	fork := step(rb, types.EmptySet(), house(kitchen), nil)
	before := rendered(fork)

	left := step(rb, fork, house(hallway), &types.Action{
		Removed: []types.Fact{types.NewFact("at", player, kitchen)},
	})
	right := step(rb, fork, house(kitchen).With(types.NewFact("in", knife, inv)), nil)

	assert.Equal(t, before, rendered(fork), "forked accumulator must not change")
	assert.False(t, left.Has(types.NewFact("in", knife, inv)))
	assert.True(t, right.Has(types.NewFact("in", knife, inv)))
	assert.False(t, right.Has(types.NewFact("at", player, hallway)))
}

func TestSeenRetractsInversePartner(t *testing.T) {
	rb := houseRules(t, housePolicy())
	seen0 := step(rb, types.EmptySet(), house(kitchen), nil)
	require.True(t, seen0.Has(types.NewFact("south_of", kitchen, hallway)))

	collapse := &types.Action{Removed: []types.Fact{types.NewFact("north_of", hallway, kitchen)}}
	closure := house(kitchen).Without(
		types.NewFact("north_of", hallway, kitchen),
		types.NewFact("south_of", kitchen, hallway),
	)
	seen1 := step(rb, seen0, closure, collapse)
	assert.False(t, seen1.Has(types.NewFact("north_of", hallway, kitchen)))
	assert.False(t, seen1.Has(types.NewFact("south_of", kitchen, hallway)))
}

func TestComplete(t *testing.T) {
	rb := houseRules(t, housePolicy())
	s := types.NewFactSet(types.NewFact("north_of", hallway, kitchen), types.NewFact("at", player, kitchen))

	got := Complete(s, rb)
	assert.Equal(t, 3, got.Len())
	assert.True(t, got.Has(types.NewFact("south_of", kitchen, hallway)))
	assert.Equal(t, 2, s.Len())
}

func TestSeenRetractsObservedWithoutEffects(t *testing.T) {
	rb := houseRules(t, housePolicy())
	seen0 := step(rb, types.EmptySet(), house(kitchen), nil)
	require.True(t, seen0.Has(types.NewFact("on", knife, table)))

	// The kitchen is out of scope from the hallway, but the player is not.
	seen1 := step(rb, seen0, house(hallway), &types.Action{Name: "go"})
	assert.True(t, seen1.Has(types.NewFact("at", player, hallway)))
	assert.False(t, seen1.Has(types.NewFact("at", player, kitchen)), "the player left the kitchen")
	assert.True(t, seen1.Has(types.NewFact("on", knife, table)), "memory of the kitchen persists")

	// Facts about in-scope entities are dropped once they no longer hold.
	taken := house(hallway).Without(types.NewFact("in", apple, inv)).With(types.NewFact("at", apple, hallway))
	seen2 := step(rb, seen1, taken, &types.Action{Name: "drop apple"})
	assert.False(t, seen2.Has(types.NewFact("in", apple, inv)))
	assert.True(t, seen2.Has(types.NewFact("at", apple, hallway)))
}

func TestSeenEffectsSuppressObservedRetraction(t *testing.T) {
	rb := houseRules(t, housePolicy())
	seen0 := step(rb, types.EmptySet(), house(kitchen), nil)

	// With effect lists present, only the listed facts are retracted.
	stale := house(kitchen).Without(types.NewFact("on", knife, table))
	seen1 := step(rb, seen0, stale, &types.Action{
		Name:  "wave",
		Added: []types.Fact{types.NewFact("weather", sunny)},
	})
	assert.True(t, seen1.Has(types.NewFact("on", knife, table)))
}
