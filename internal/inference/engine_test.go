package inference

import (
	"errors"
	"testing"

	"playgraph/internal/rules"
	"playgraph/internal/types"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEngine(t *testing.T, program string, cfg Config) *Engine {
	t.Helper()
	rb, err := rules.Parse(program, rules.Options{Name: t.Name()})
	require.NoError(t, err)
	eng, err := NewEngine(rb, cfg)
	require.NoError(t, err)
	return eng
}

func rendered(s types.FactSet) []string {
	var out []string
	for _, f := range s.Facts() {
		out = append(out, f.String())
	}
	return out
}

var (
	player  = types.E("player", "P")
	kitchen = types.E("kitchen", "r")
	hallway = types.E("hallway", "r")
)

const pathProgram = `
Decl edge(X, Y).
Decl reach(X, Y).
Decl loop(X).
Decl has_edge(X).

reach(X, Y) :- edge(X, Y).
reach(X, Z) :- reach(X, Y), edge(Y, Z).
loop(X) :- edge(X, X).
has_edge(X) :- edge(X, _).
`

func chain(names ...string) types.FactSet {
	b := types.NewBuilder(len(names))
	for i := 0; i+1 < len(names); i++ {
		b.Add(types.NewFact("edge", types.E(names[i], ""), types.E(names[i+1], "")))
	}
	return b.Build()
}

func TestClosureReachableExample(t *testing.T) {
	eng := mustEngine(t, `
Decl in(X, Y).
Decl at(X, Y).
Decl connects(X, Y).
Decl reachable(X, Y).
reachable(X, R2) :- in(X, R), connects(R, R2).
`, DefaultConfig())

	step0 := types.NewFactSet(types.NewFact("at", player, kitchen))
	got, stats, err := eng.Closure(Input{Facts: step0})
	require.NoError(t, err)
	assert.True(t, got.Equal(step0), "no rule applies, closure must equal raw facts")
	assert.Equal(t, 1, stats.Passes)

	step1 := types.NewFactSet(types.NewFact("at", player, hallway))
	got, _, err = eng.Closure(Input{Facts: step1, Command: "go north"})
	require.NoError(t, err)
	assert.True(t, got.Equal(step1))
}

func TestClosureTransitive(t *testing.T) {
	eng := mustEngine(t, pathProgram, Config{})

	got, stats, err := eng.Closure(Input{Facts: chain("a", "b", "c", "d")})
	require.NoError(t, err)

	want := []string{
		"edge(a, b)", "edge(b, c)", "edge(c, d)",
		"has_edge(a)", "has_edge(b)", "has_edge(c)",
		"reach(a, b)", "reach(a, c)", "reach(a, d)",
		"reach(b, c)", "reach(b, d)",
		"reach(c, d)",
	}
	if diff := cmp.Diff(want, rendered(got)); diff != "" {
		t.Errorf("closure mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4, stats.Passes)
	assert.Equal(t, 9, stats.Derived)
}

func TestClosureCycleTerminates(t *testing.T) {
	eng := mustEngine(t, pathProgram, Config{})

	cycle := chain("a", "b", "c", "a")
	got, _, err := eng.Closure(Input{Facts: cycle})
	require.NoError(t, err)

	for _, x := range []string{"a", "b", "c"} {
		for _, y := range []string{"a", "b", "c"} {
			assert.True(t, got.Has(types.NewFact("reach", types.E(x, ""), types.E(y, ""))), "reach(%s, %s)", x, y)
		}
	}
	assert.False(t, got.Has(types.NewFact("loop", types.E("a", ""))), "loop needs edge(a, a)")
}

func TestClosureRepeatedVariable(t *testing.T) {
	eng := mustEngine(t, pathProgram, Config{})

	facts := chain("a", "b").With(types.NewFact("edge", types.E("c", ""), types.E("c", "")))
	got, _, err := eng.Closure(Input{Facts: facts})
	require.NoError(t, err)

	assert.True(t, got.Has(types.NewFact("loop", types.E("c", ""))))
	assert.False(t, got.Has(types.NewFact("loop", types.E("a", ""))))
}

func TestClosureIdempotent(t *testing.T) {
	eng := mustEngine(t, pathProgram, Config{})

	once, _, err := eng.Closure(Input{Facts: chain("a", "b", "c", "d", "b")})
	require.NoError(t, err)
	twice, _, err := eng.Closure(Input{Facts: once})
	require.NoError(t, err)

	if diff := cmp.Diff(rendered(once), rendered(twice)); diff != "" {
		t.Errorf("closure is not idempotent (-once +twice):\n%s", diff)
	}
}

func TestClosureEmptyInput(t *testing.T) {
	eng := mustEngine(t, pathProgram, DefaultConfig())

	got, stats, err := eng.Closure(Input{
		Facts:      types.EmptySet(),
		LastAction: &types.Action{Name: "wait"},
		Command:    "wait",
	})
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
	assert.Zero(t, stats.Passes)
}

func TestClosureDoesNotMutateInput(t *testing.T) {
	eng := mustEngine(t, pathProgram, Config{})

	raw := chain("a", "b", "c")
	_, _, err := eng.Closure(Input{Facts: raw})
	require.NoError(t, err)
	assert.Equal(t, 2, raw.Len())
}

func TestClosureInjectsActionAndCommand(t *testing.T) {
	eng := mustEngine(t, `
Decl at(X, Y).
Decl take(X).
Decl command(C).
Decl holding(X).
Decl opened(X).
holding(X) :- take(X), at(X, /r/kitchen).
opened(/c/fridge) :- command("open fridge").
`, DefaultConfig())

	apple := types.E("apple", "f")
	take := types.NewFact("take", apple)
	raw := types.NewFactSet(types.NewFact("at", apple, kitchen))

	got, _, err := eng.Closure(Input{
		Facts:      raw,
		LastAction: &types.Action{Name: "take apple", Fact: &take},
		Command:    "Open Fridge ",
	})
	require.NoError(t, err)

	assert.True(t, got.Has(types.NewFact("holding", apple)))
	assert.True(t, got.Has(types.NewFact("opened", types.E("fridge", "c"))))
	assert.False(t, got.Has(take), "injected action fact must not leak into the closure")
	assert.False(t, got.Has(types.NewFact("command", types.E("open fridge", ""))))

	// A raw fact that happens to equal the action fact stays.
	got, _, err = eng.Closure(Input{Facts: raw.With(take), LastAction: &types.Action{Fact: &take}})
	require.NoError(t, err)
	assert.True(t, got.Has(take))
}

func TestClosureConstantsMatchOnType(t *testing.T) {
	eng := mustEngine(t, `
Decl at(X, Y).
Decl in_kitchen(X).
in_kitchen(X) :- at(X, /r/kitchen).
`, Config{})

	untyped := types.NewFactSet(types.NewFact("at", player, types.E("kitchen", "")))
	got, _, err := eng.Closure(Input{Facts: untyped})
	require.NoError(t, err)
	assert.False(t, got.Has(types.NewFact("in_kitchen", player)))

	typed := types.NewFactSet(types.NewFact("at", player, kitchen))
	got, _, err = eng.Closure(Input{Facts: typed})
	require.NoError(t, err)
	assert.True(t, got.Has(types.NewFact("in_kitchen", player)))
}

func TestClosureDeterministic(t *testing.T) {
	eng := mustEngine(t, pathProgram, Config{})

	a := chain("a", "b", "c", "d")
	b := types.NewFactSet(a.Facts()[2], a.Facts()[0], a.Facts()[1])

	first, s1, err := eng.Closure(Input{Facts: a})
	require.NoError(t, err)
	// Unrelated work in between must not matter.
	_, _, err = eng.Closure(Input{Facts: chain("x", "y", "z")})
	require.NoError(t, err)
	second, s2, err := eng.Closure(Input{Facts: b})
	require.NoError(t, err)

	assert.Equal(t, rendered(first), rendered(second))
	assert.Equal(t, s1.Passes, s2.Passes)
	assert.Equal(t, s1.Bindings, s2.Bindings)
}

func TestClosureLimits(t *testing.T) {
	t.Run("fact limit", func(t *testing.T) {
		eng := mustEngine(t, pathProgram, Config{FactLimit: 4})
		_, _, err := eng.Closure(Input{Facts: chain("a", "b", "c", "d")})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFactLimit), "got %v", err)
	})

	t.Run("pass limit", func(t *testing.T) {
		eng := mustEngine(t, pathProgram, Config{MaxPasses: 1})
		_, _, err := eng.Closure(Input{Facts: chain("a", "b", "c")})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNonTermination), "got %v", err)
	})
}

func TestGroundBound(t *testing.T) {
	eng := mustEngine(t, pathProgram, Config{})

	_, stats, err := eng.Closure(Input{Facts: chain("a", "b", "c")})
	require.NoError(t, err)
	// 3 entities; edge/reach binary, loop/has_edge unary: 9 + 9 + 3 + 3.
	assert.Equal(t, 24, stats.Bound)
}

func TestGroundBoundMixedArity(t *testing.T) {
	eng := mustEngine(t, `
Decl tag(X, Y).
Decl linked(X).

linked(X) :- tag(X, _).
`, Config{})
	a, b, c := types.E("a", ""), types.E("b", ""), types.E("c", "")
	facts := types.NewFactSet(
		types.NewFact("tag", a),
		types.NewFact("tag", a, b),
		types.NewFact("tag", a, c),
		types.NewFact("tag", b, c),
		types.NewFact("tag", b, a),
		types.NewFact("tag", c, a),
	)

	closure, stats, err := eng.Closure(Input{Facts: facts})
	require.NoError(t, err)
	// tag counts at both arities: 3 + 9, plus linked: 3.
	assert.Equal(t, 15, stats.Bound)
	assert.Equal(t, 9, closure.Len())
	assert.True(t, closure.Has(types.NewFact("linked", c)))
}

func TestCompileRejectsUnboundHead(t *testing.T) {
	_, err := compile(rules.Rule{
		Name:        "bad",
		Antecedents: []rules.Pattern{rules.P("edge", rules.V("X"), rules.V("_"))},
		Consequent:  rules.P("reach", rules.V("X"), rules.V("Y")),
	})
	var cfgErr *rules.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "bad", cfgErr.Rule)
}
