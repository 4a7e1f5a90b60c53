package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lemma/internal/ir"
)

func mustProgram(t *testing.T, rules map[string]string, order ...string) *ir.Program {
	t.Helper()
	var rs []ir.Rule
	for _, name := range order {
		r, err := ParseRule(name, rules[name], testNS)
		require.NoError(t, err)
		rs = append(rs, r)
	}
	return ir.NewProgram("test", "", testNS, rs...)
}

func TestAnalyzeRecursionEmpty(t *testing.T) {
	assert.Empty(t, AnalyzeRecursion(ir.NewProgram("empty", "", nil)))
}

func TestAnalyzeRecursionDAG(t *testing.T) {
	prog := mustProgram(t, map[string]string{
		"a": "(?x ex:p ?y) -> (?x ex:q ?y)",
		"b": "(?x ex:q ?y) -> (?x ex:r ?y)",
	}, "a", "b")

	assert.Empty(t, AnalyzeRecursion(prog))
}

func TestAnalyzeRecursionSelfLoop(t *testing.T) {
	prog := mustProgram(t, map[string]string{
		"transitive": "(?a ex:t ?b), (?b ex:t ?c) -> (?a ex:t ?c)",
	}, "transitive")

	warnings := AnalyzeRecursion(prog)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"transitive", "transitive"}, warnings[0].Path)
	assert.Equal(t, "info", warnings[0].Level)
}

func TestAnalyzeRecursionMutual(t *testing.T) {
	prog := mustProgram(t, map[string]string{
		"up":    "(?x ex:down ?y) -> (?y ex:up ?x)",
		"down":  "(?x ex:up ?y) -> (?y ex:down ?x)",
		"other": "(?x ex:z ?y) -> (?x ex:w ?y)",
	}, "up", "down", "other")

	warnings := AnalyzeRecursion(prog)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"up", "down", "up"}, warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "up -> down -> up")
}

func TestAnalyzeRecursionVariablePredicate(t *testing.T) {
	// A head with a variable predicate can feed any body pattern.
	prog := mustProgram(t, map[string]string{
		"inverse": "(?p ex:inverse ?q), (?a ?p ?b) -> (?b ?q ?a)",
	}, "inverse")

	warnings := AnalyzeRecursion(prog)
	require.Len(t, warnings, 1)
	assert.Equal(t, "info", warnings[0].Level)
}
