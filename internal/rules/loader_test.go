package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"playgraph/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reachableProgram = `
Decl in(X, Y).
Decl connects(X, Y).
Decl reachable(X, Y).

reachable(X, R2) :- in(X, R), connects(R, R2).
`

func TestParseReachableRule(t *testing.T) {
	rb, err := Parse(reachableProgram, Options{Name: "reach"})
	require.NoError(t, err)
	require.Len(t, rb.Rules, 1)

	rule := rb.Rules[0]
	assert.Equal(t, "reachable", rule.Consequent.Predicate)
	require.Len(t, rule.Antecedents, 2)
	assert.Equal(t, "in", rule.Antecedents[0].Predicate)
	assert.Equal(t, "connects", rule.Antecedents[1].Predicate)
	assert.Equal(t, []string{"X", "R"}, rule.Antecedents[0].Variables())

	arity, ok := rb.Arity("reachable")
	assert.True(t, ok)
	assert.Equal(t, 2, arity)
	assert.Equal(t, []string{"connects", "in", "reachable"}, rb.Predicates())
	assert.NotNil(t, rb.Program())
}

func TestParseConstantsBecomeEntities(t *testing.T) {
	program := `
Decl at(X, Y).
Decl in_kitchen(X).
in_kitchen(X) :- at(X, /r/kitchen).
`
	rb, err := Parse(program, Options{})
	require.NoError(t, err)

	arg := rb.Rules[0].Antecedents[0].Args[1]
	assert.False(t, arg.IsVar())
	assert.Equal(t, types.E("kitchen", "r"), arg.Const)
	assert.Equal(t, []types.Entity{types.E("kitchen", "r")}, rb.Constants())
}

func TestParseRejectsMalformedRules(t *testing.T) {
	tests := []struct {
		name    string
		program string
		reason  string
	}{
		{
			name: "undeclared predicate",
			program: `
Decl in(X, Y).
reachable(X, Y) :- in(X, Y).`,
			reason: "predicate is not declared",
		},
		{
			name: "arity mismatch",
			program: `
Decl in(X, Y).
Decl holds(X).
holds(X) :- in(X).`,
			reason: "declared with arity 2 but used with 1 arguments",
		},
		{
			name: "unbound head variable",
			program: `
Decl in(X, Y).
Decl pair(X, Y).
pair(X, Z) :- in(X, Y).`,
			reason: "variable Z is not bound by any antecedent",
		},
		{
			name: "ground fact in program",
			program: `
Decl in(X, Y).
in(/apple, /fridge).`,
			reason: "rule has no antecedents",
		},
		{
			name: "negation",
			program: `
Decl in(X, Y).
Decl out(X).
Decl thing(X).
out(X) :- thing(X), !in(X, _).`,
			reason: "only positive atoms are allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.program, Options{})
			require.Error(t, err)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "want *ConfigurationError, got %T", err)
			assert.Contains(t, cfgErr.Reason, tt.reason)
		})
	}
}

func TestInversePairs(t *testing.T) {
	program := `
Decl north_of(X, Y).
Decl south_of(X, Y).
Decl adjacent(X, Y).
south_of(Y, X) :- north_of(X, Y).
`
	rb, err := Parse(program, Options{Pairs: []InversePair{
		{Left: "north_of", Right: "south_of"},
		{Left: "adjacent", Right: "adjacent"},
	}})
	require.NoError(t, err)

	hall, kitchen := types.E("hallway", "r"), types.E("kitchen", "r")
	inv, ok := rb.Inverse(types.NewFact("north_of", hall, kitchen))
	require.True(t, ok)
	assert.True(t, inv.Equal(types.NewFact("south_of", kitchen, hall)))

	sym, ok := rb.Inverse(types.NewFact("adjacent", hall, kitchen))
	require.True(t, ok)
	assert.True(t, sym.Equal(types.NewFact("adjacent", kitchen, hall)))

	_, ok = rb.Inverse(types.NewFact("unknown", hall, kitchen))
	assert.False(t, ok)
}

func TestInversePairValidation(t *testing.T) {
	program := `
Decl north_of(X, Y).
Decl closed(X).
Decl south_of(X, Y).
south_of(Y, X) :- north_of(X, Y).
`
	_, err := Parse(program, Options{Pairs: []InversePair{{Left: "closed", Right: "north_of"}}})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "closed", cfgErr.Predicate)

	_, err = Parse(program, Options{
		Pairs:  []InversePair{{Left: "north_of", Right: "south_of"}},
		Policy: Policy{Perceivable: []string{"north_of"}},
	})
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "share perceivability")
}

func TestPolicyValidation(t *testing.T) {
	_, err := Parse(reachableProgram, Options{Policy: Policy{Containment: []string{"inside"}}})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "inside", cfgErr.Predicate)

	_, err = Parse(reachableProgram, Options{Policy: Policy{Opaque: []string{"in"}}})
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "arity 1")
}

func TestParseFact(t *testing.T) {
	f, err := ParseFact(`at(/P/player, /r/kitchen).`)
	require.NoError(t, err)
	assert.True(t, f.Equal(types.NewFact("at", types.E("player", "P"), types.E("kitchen", "r"))))

	f, err = ParseFact(`in("wooden spoon", /drawer)`)
	require.NoError(t, err)
	assert.True(t, f.Equal(types.NewFact("in", types.E("wooden spoon", ""), types.E("drawer", ""))))

	_, err = ParseFact(`in(X, /drawer)`)
	assert.Error(t, err)

	_, err = ParseFact("   ")
	assert.Error(t, err)
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.mg"), []byte(reachableProgram), 0644))
	manifest := `
name: reach
program: rules.mg
inverse_pairs: []
policy:
  player_type: P
  location_predicate: in
  containment: [in]
  connections: [connects]
`
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0644))

	rb, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "reach", rb.Name)
	assert.Equal(t, "P", rb.Policy.PlayerType)
	assert.Equal(t, []string{"connects"}, rb.Policy.Connections)
	assert.Len(t, rb.Rules, 1)
}

func TestLoadManifestErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadManifest(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: x\ninverse_pairs: [[a, b, c]]\nsource: \"Decl a(X, Y).\"\n"), 0644))
	_, err = LoadManifest(bad)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("name: x\n"), 0644))
	_, err = LoadManifest(empty)
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "no program")
}
