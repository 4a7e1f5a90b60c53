package compiler

import (
	"testing"

	"github.com/cayleygraph/quad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lemma/internal/ir"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateValidProgram(t *testing.T) {
	r, err := ParseRule("sym", "(?a ex:s ?b) -> (?b ex:s ?a)", testNS)
	require.NoError(t, err)
	prog := ir.NewProgram("ok", "", testNS, r)

	assert.Empty(t, Validate(prog))
}

func TestValidateCollectsAllErrors(t *testing.T) {
	p := ir.IRI("http://example.org/p")
	unsafe := ir.NewRule("unsafe", "", ir.NewPattern(ir.Variable("a"), p, ir.Variable("z")),
		ir.NewPattern(ir.Variable("a"), p, ir.Variable("b")))
	noBody := ir.NewRule("nobody", "", ir.NewPattern(ir.IRI("x"), p, ir.IRI("y")))
	dup := ir.NewRule("unsafe", "", ir.NewPattern(ir.Variable("a"), p, ir.Variable("a")),
		ir.NewPattern(ir.Variable("a"), p, ir.Variable("b")))
	literalSubject := ir.NewRule("lit", "", ir.NewPattern(ir.Literal(quad.String("s")), p, ir.Variable("a")),
		ir.NewPattern(ir.Variable("a"), p, ir.Variable("b")))
	incomplete := ir.NewRule("incomplete", "", ir.Pattern{Subject: ir.Variable("a")},
		ir.NewPattern(ir.Variable("a"), p, ir.Variable("b")))

	prog := &ir.Program{
		Name:       "",
		Namespaces: map[string]string{"": "http://x/"},
		Rules:      []ir.Rule{unsafe, noBody, dup, literalSubject, incomplete, {}},
	}

	got := codes(Validate(prog))
	assert.Contains(t, got, ErrProgramNameEmpty)
	assert.Contains(t, got, ErrInvalidNamespace)
	assert.Contains(t, got, ErrUnsafeRule)
	assert.Contains(t, got, ErrRuleNoBody)
	assert.Contains(t, got, ErrDuplicateRule)
	assert.Contains(t, got, ErrLiteralPosition)
	assert.Contains(t, got, ErrIncompletePattern)
	assert.Contains(t, got, ErrRuleNameEmpty)
}

func TestCheckRule(t *testing.T) {
	p := ir.IRI("http://example.org/p")
	unsafe := ir.NewRule("unsafe", "", ir.NewPattern(ir.Variable("a"), p, ir.Variable("z")),
		ir.NewPattern(ir.Variable("a"), p, ir.Variable("b")))

	err := CheckRule(unsafe)
	var ue *UnsafeRuleError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "unsafe", ue.Rule)
	assert.Equal(t, []string{"z"}, ue.Variables)
	assert.Contains(t, err.Error(), "?z")

	safe := ir.NewRule("safe", "", ir.NewPattern(ir.Variable("b"), p, ir.Variable("a")),
		ir.NewPattern(ir.Variable("a"), p, ir.Variable("b")))
	assert.NoError(t, CheckRule(safe))
}
