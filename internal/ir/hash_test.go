package ir

import (
	"testing"

	"github.com/cayleygraph/quad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func symmetricPatterns() (Pattern, []Pattern) {
	sym := IRI("http://example.org/symmetric")
	head := NewPattern(Variable("b"), sym, Variable("a"))
	body := []Pattern{NewPattern(Variable("a"), sym, Variable("b"))}
	return head, body
}

func TestRuleIDDeterminism(t *testing.T) {
	head, body := symmetricPatterns()

	id1, err := RuleID("symmetric", head, body)
	require.NoError(t, err)
	id2, err := RuleID("symmetric", head, body)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)
}

func TestRuleIDChangesWithInput(t *testing.T) {
	head, body := symmetricPatterns()
	base := MustRuleID("symmetric", head, body)

	assert.NotEqual(t, base, MustRuleID("other", head, body), "name is part of identity")

	swapped := NewPattern(Variable("a"), head.Predicate, Variable("b"))
	assert.NotEqual(t, base, MustRuleID("symmetric", swapped, body), "head is part of identity")

	ctxBody := []Pattern{body[0].WithContext(IRI("http://example.org/g"))}
	assert.NotEqual(t, base, MustRuleID("symmetric", head, ctxBody), "body context is part of identity")
}

func TestNewRuleIgnoresDescriptionInID(t *testing.T) {
	head, body := symmetricPatterns()
	a := NewRule("symmetric", "first wording", head, body...)
	b := NewRule("symmetric", "second wording", head, body...)
	assert.Equal(t, a.ID, b.ID)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{"x":1}`)
	assert.NotEqual(t, hashWithDomain(DomainRule, data), hashWithDomain(DomainProgram, data))
	assert.NotEqual(t, hashWithDomain(DomainRule, data), hashWithDomain(DomainJustification, data))
}

func TestProgramIDDependsOnRuleOrder(t *testing.T) {
	ns := map[string]string{"ex": "http://example.org/"}
	a, err := ProgramID("p", ns, []string{"r1", "r2"})
	require.NoError(t, err)
	b, err := ProgramID("p", ns, []string{"r2", "r1"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestJustificationSignatureIgnoresSupportOrder(t *testing.T) {
	head, body := symmetricPatterns()
	rule := NewRule("symmetric", "", head, body...)
	t1 := NewFact(NewFactKey(quad.IRI("a"), quad.IRI("p"), quad.IRI("b"), nil))
	t2 := NewFact(NewFactKey(quad.IRI("b"), quad.IRI("p"), quad.IRI("c"), nil))
	derived := NewFact(NewFactKey(quad.IRI("a"), quad.IRI("q"), quad.IRI("c"), nil))

	j1 := Justification{Triple: derived, SupportingTriples: []Fact{t1, t2}, SupportingRules: []Rule{rule}}
	j2 := Justification{ID: "other", Triple: derived, SupportingTriples: []Fact{t2, t1, t2}, SupportingRules: []Rule{rule, rule}}

	assert.Equal(t, j1.Signature(), j2.Signature())
	assert.True(t, j1.Equal(j2))

	j3 := Justification{Triple: derived, SupportingTriples: []Fact{t1}, SupportingRules: []Rule{rule}}
	assert.NotEqual(t, j1.Signature(), j3.Signature())
	assert.False(t, j1.Equal(j3))
}
