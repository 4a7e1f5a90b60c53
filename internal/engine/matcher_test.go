package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/cayleygraph/quad"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lemma/internal/ir"
)

func collect(t *testing.T, body []ir.Pattern, seed *Seed, lookup FactLookup) []Solution {
	t.Helper()
	var out []Solution
	for sol, err := range Match(context.Background(), body, seed, lookup) {
		require.NoError(t, err)
		out = append(out, sol)
	}
	return out
}

func TestMatch_SinglePattern(t *testing.T) {
	lookup := &memLookup{facts: []ir.Fact{
		fact("a", "knows", "b"),
		fact("b", "knows", "c"),
		fact("a", "likes", "c"),
	}}

	sols := collect(t, []ir.Pattern{ir.NewPattern(v("x"), exf("knows"), v("y"))}, nil, lookup)

	require.Len(t, sols, 2)
	assert.Equal(t, Bindings{"x": ex("a"), "y": ex("b")}, sols[0].Bindings)
	assert.Equal(t, Bindings{"x": ex("b"), "y": ex("c")}, sols[1].Bindings)
}

func TestMatch_ConjunctionJoinsOnSharedVariable(t *testing.T) {
	lookup := &memLookup{facts: []ir.Fact{
		fact("a", "p", "b"),
		fact("b", "p", "c"),
		fact("c", "p", "d"),
	}}
	rule := transitiveRule("p")

	sols := collect(t, rule.Body, nil, lookup)

	got := make([]Bindings, len(sols))
	for i, s := range sols {
		got[i] = s.Bindings
	}
	want := []Bindings{
		{"a": ex("a"), "b": ex("b"), "c": ex("c")},
		{"a": ex("b"), "b": ex("c"), "c": ex("d")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("bindings mismatch (-want +got):\n%s", diff)
	}
}

func TestMatch_FactsInBodyOrder(t *testing.T) {
	lookup := &memLookup{facts: []ir.Fact{
		fact("a", "p", "b"),
		fact("b", "p", "c"),
	}}
	rule := transitiveRule("p")

	sols := collect(t, rule.Body, &Seed{Fact: fact("b", "p", "c"), Position: 1}, lookup)

	require.Len(t, sols, 1)
	assert.Equal(t, key("a", "p", "b"), sols[0].Facts[0].Key())
	assert.Equal(t, key("b", "p", "c"), sols[0].Facts[1].Key())
}

func TestMatch_SeedRestrictsSolutions(t *testing.T) {
	lookup := &memLookup{facts: []ir.Fact{
		fact("a", "p", "b"),
		fact("b", "p", "c"),
		fact("c", "p", "d"),
	}}
	rule := transitiveRule("p")
	seed := fact("c", "p", "d")

	atZero := collect(t, rule.Body, &Seed{Fact: seed, Position: 0}, lookup)
	atOne := collect(t, rule.Body, &Seed{Fact: seed, Position: 1}, lookup)

	assert.Empty(t, atZero, "nothing follows d")
	require.Len(t, atOne, 1)
	assert.Equal(t, Bindings{"a": ex("b"), "b": ex("c"), "c": ex("d")}, atOne[0].Bindings)
}

func TestMatch_SeedNotMatchingPattern(t *testing.T) {
	lookup := &memLookup{facts: []ir.Fact{fact("a", "p", "b")}}
	body := []ir.Pattern{ir.NewPattern(v("x"), exf("q"), v("y"))}

	sols := collect(t, body, &Seed{Fact: fact("a", "p", "b"), Position: 0}, lookup)

	assert.Empty(t, sols)
	assert.Zero(t, lookup.calls, "a single seeded pattern needs no lookups")
}

func TestMatch_RepeatedVariableEnforcesEquality(t *testing.T) {
	lookup := &memLookup{facts: []ir.Fact{
		fact("a", "p", "a"),
		fact("a", "p", "b"),
	}}
	body := []ir.Pattern{ir.NewPattern(v("x"), exf("p"), v("x"))}

	sols := collect(t, body, nil, lookup)

	require.Len(t, sols, 1)
	assert.Equal(t, Bindings{"x": ex("a")}, sols[0].Bindings)
}

func TestMatch_ContextVariable(t *testing.T) {
	g := quad.IRI("urn:graph:1")
	inGraph := ir.NewFact(ir.NewFactKey(ex("a"), ex("p"), ex("b"), g))
	lookup := &memLookup{facts: []ir.Fact{inGraph, fact("c", "p", "d")}}
	body := []ir.Pattern{ir.NewPattern(v("s"), exf("p"), v("o")).WithContext(v("g"))}

	sols := collect(t, body, nil, lookup)

	require.Len(t, sols, 2)
	assert.Equal(t, g, sols[0].Bindings["g"])
	got, ok := sols[1].Bindings["g"]
	assert.True(t, ok, "default graph binds to nil")
	assert.Nil(t, got)
}

func TestMatch_EmptyBody(t *testing.T) {
	lookup := &memLookup{facts: []ir.Fact{fact("a", "p", "b")}}
	assert.Empty(t, collect(t, nil, nil, lookup))
}

func TestMatch_SeedPositionOutOfRange(t *testing.T) {
	lookup := &memLookup{}
	body := []ir.Pattern{ir.NewPattern(v("x"), exf("p"), v("y"))}

	var errs []error
	for _, err := range Match(context.Background(), body, &Seed{Fact: fact("a", "p", "b"), Position: 3}, lookup) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.Error(t, errs[0])
}

func TestMatch_LookupErrorIsStorageError(t *testing.T) {
	lookup := &memLookup{err: errors.New("disk on fire")}
	body := []ir.Pattern{ir.NewPattern(v("x"), exf("p"), v("y"))}

	var errs []error
	for _, err := range Match(context.Background(), body, nil, lookup) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.True(t, IsStorageError(errs[0]))
}

func TestMatch_Restartable(t *testing.T) {
	lookup := &memLookup{facts: []ir.Fact{fact("a", "p", "b"), fact("b", "p", "c")}}
	seq := Match(context.Background(), transitiveRule("p").Body, nil, lookup)

	count := func() int {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 1, count())
	assert.Equal(t, 1, count())
}

func TestMatch_StopsEarly(t *testing.T) {
	lookup := &memLookup{facts: []ir.Fact{
		fact("a", "p", "b"),
		fact("b", "p", "c"),
		fact("c", "p", "d"),
	}}
	body := []ir.Pattern{ir.NewPattern(v("x"), exf("p"), v("y"))}

	n := 0
	for range Match(context.Background(), body, nil, lookup) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestMatch_CanceledContext(t *testing.T) {
	lookup := &memLookup{facts: []ir.Fact{fact("a", "p", "b")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var errs []error
	for _, err := range Match(ctx, transitiveRule("p").Body, nil, lookup) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
}

func TestUnify(t *testing.T) {
	p := ir.NewPattern(v("x"), exf("p"), v("y"))

	t.Run("binds fresh variables", func(t *testing.T) {
		b, ok := Unify(p, fact("a", "p", "b"), nil)
		require.True(t, ok)
		assert.Equal(t, Bindings{"x": ex("a"), "y": ex("b")}, b)
	})

	t.Run("does not modify input", func(t *testing.T) {
		in := Bindings{"z": ex("z")}
		b, ok := Unify(p, fact("a", "p", "b"), in)
		require.True(t, ok)
		assert.Len(t, in, 1)
		assert.Len(t, b, 3)
	})

	t.Run("conflicting binding fails", func(t *testing.T) {
		_, ok := Unify(p, fact("a", "p", "b"), Bindings{"x": ex("c")})
		assert.False(t, ok)
	})

	t.Run("constant mismatch fails", func(t *testing.T) {
		_, ok := Unify(p, fact("a", "q", "b"), nil)
		assert.False(t, ok)
	})

	t.Run("literal object", func(t *testing.T) {
		lit := ir.NewPattern(v("x"), exf("age"), ir.Literal(quad.Int(42)))
		f := ir.NewFact(ir.NewFactKey(ex("a"), ex("age"), quad.Int(42), nil))
		_, ok := Unify(lit, f, nil)
		assert.True(t, ok)
	})
}

func TestInstantiate(t *testing.T) {
	head := ir.NewPattern(v("b"), exf("p"), v("a"))

	t.Run("default context", func(t *testing.T) {
		k, err := Instantiate(head, Bindings{"a": ex("a"), "b": ex("b")}, DefaultInferredContext)
		require.NoError(t, err)
		assert.Equal(t, ikey("b", "p", "a"), k)
	})

	t.Run("nil inferred context writes default graph", func(t *testing.T) {
		k, err := Instantiate(head, Bindings{"a": ex("a"), "b": ex("b")}, nil)
		require.NoError(t, err)
		assert.Equal(t, key("b", "p", "a"), k)
	})

	t.Run("head context wins", func(t *testing.T) {
		g := quad.IRI("urn:graph:1")
		k, err := Instantiate(head.WithContext(ir.IRI("urn:graph:1")), Bindings{"a": ex("a"), "b": ex("b")}, DefaultInferredContext)
		require.NoError(t, err)
		assert.Equal(t, g, k.Context)
	})

	t.Run("unbound variable", func(t *testing.T) {
		_, err := Instantiate(head, Bindings{"a": ex("a")}, DefaultInferredContext)
		assert.ErrorIs(t, err, ErrInvalidHead)
	})

	t.Run("literal subject", func(t *testing.T) {
		_, err := Instantiate(head, Bindings{"a": ex("a"), "b": quad.String("lit")}, DefaultInferredContext)
		assert.ErrorIs(t, err, ErrInvalidHead)
	})

	t.Run("literal predicate", func(t *testing.T) {
		h := ir.NewPattern(v("s"), v("p"), v("o"))
		_, err := Instantiate(h, Bindings{"s": ex("a"), "p": quad.String("p"), "o": ex("b")}, DefaultInferredContext)
		assert.ErrorIs(t, err, ErrInvalidHead)
	})
}
