package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lemma/internal/ir"
)

func seedDerivation(t *testing.T, s *Store) (ab, bc, ac ir.Fact) {
	t.Helper()
	rows := insertCommitted(t, s, fact("a", "p", "b"), fact("b", "p", "c"), inferred("a", "p", "c"))
	return rows[0], rows[1], rows[2]
}

func TestStoreJustification_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	ab, bc, ac := seedDerivation(t, s)
	rule := testRule()

	tx, err := s.BeginReasoner(ctx)
	require.NoError(t, err)
	defer tx.Close()

	// supports resolved by key, triple by id
	stored, err := tx.StoreJustification(ctx, ir.Justification{
		Triple:            ac,
		SupportingTriples: []ir.Fact{fact("a", "p", "b"), fact("b", "p", "c")},
		SupportingRules:   []ir.Rule{rule},
	})
	require.NoError(t, err)
	assert.True(t, stored)

	js, err := tx.ListJustificationsForTriple(ctx, ac)
	require.NoError(t, err)
	require.Len(t, js, 1)
	j := js[0]
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, ac.ID, j.Triple.ID)
	assert.Equal(t, []ir.Fact{ab, bc}, j.SupportingTriples)
	require.Len(t, j.SupportingRules, 1)
	assert.Equal(t, rule.ID, j.SupportingRules[0].ID)
	assert.Equal(t, rule.Body, j.SupportingRules[0].Body)
	assert.Equal(t, rule.Head, j.SupportingRules[0].Head)

	byA, err := tx.ListJustificationsSupportedBy(ctx, ab)
	require.NoError(t, err)
	require.Len(t, byA, 1)
	assert.Equal(t, j.ID, byA[0].ID)

	byAC, err := tx.ListJustificationsSupportedBy(ctx, ac)
	require.NoError(t, err)
	assert.Empty(t, byAC)
	require.NoError(t, tx.Commit())
}

func TestStoreJustification_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	ab, bc, ac := seedDerivation(t, s)

	tx, err := s.BeginReasoner(ctx)
	require.NoError(t, err)
	defer tx.Close()

	j := ir.Justification{Triple: ac, SupportingTriples: []ir.Fact{ab, bc}, SupportingRules: []ir.Rule{testRule()}}
	first, err := tx.StoreJustification(ctx, j)
	require.NoError(t, err)
	assert.True(t, first)

	// support order does not matter
	j.SupportingTriples = []ir.Fact{bc, ab}
	second, err := tx.StoreJustification(ctx, j)
	require.NoError(t, err)
	assert.False(t, second)

	js, err := tx.ListJustificationsForTriple(ctx, ac)
	require.NoError(t, err)
	assert.Len(t, js, 1)
}

func TestStoreJustification_UnknownSupport(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	_, _, ac := seedDerivation(t, s)

	tx, err := s.BeginReasoner(ctx)
	require.NoError(t, err)
	defer tx.Close()

	_, err = tx.StoreJustification(ctx, ir.Justification{
		Triple:            ac,
		SupportingTriples: []ir.Fact{fact("x", "p", "y")},
		SupportingRules:   []ir.Rule{testRule()},
	})
	assert.ErrorIs(t, err, ErrFactNotFound)
}

func TestDeleteJustification_CascadesLinks(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	ab, bc, ac := seedDerivation(t, s)

	tx, err := s.BeginReasoner(ctx)
	require.NoError(t, err)
	defer tx.Close()

	_, err = tx.StoreJustification(ctx, ir.Justification{Triple: ac, SupportingTriples: []ir.Fact{ab, bc}, SupportingRules: []ir.Rule{testRule()}})
	require.NoError(t, err)
	js, err := tx.ListJustificationsForTriple(ctx, ac)
	require.NoError(t, err)
	require.Len(t, js, 1)

	require.NoError(t, tx.DeleteJustification(ctx, js[0].ID))

	var n int
	require.NoError(t, tx.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM justification_supports").Scan(&n))
	assert.Zero(t, n)

	left, err := tx.ListJustificationsSupportedBy(ctx, ab)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestDeleteAllJustifications(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	ab, bc, ac := seedDerivation(t, s)

	tx, err := s.BeginReasoner(ctx)
	require.NoError(t, err)
	defer tx.Close()

	_, err = tx.StoreJustification(ctx, ir.Justification{Triple: ac, SupportingTriples: []ir.Fact{ab, bc}, SupportingRules: []ir.Rule{testRule()}})
	require.NoError(t, err)
	require.NoError(t, tx.DeleteAllJustifications(ctx))

	js, err := tx.ListJustificationsForTriple(ctx, ac)
	require.NoError(t, err)
	assert.Empty(t, js)
}

func TestListJustifications_DeletedTripleStillListed(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	ab, bc, ac := seedDerivation(t, s)

	tx, err := s.BeginReasoner(ctx)
	require.NoError(t, err)
	defer tx.Close()

	_, err = tx.StoreJustification(ctx, ir.Justification{Triple: ac, SupportingTriples: []ir.Fact{ab, bc}, SupportingRules: []ir.Rule{testRule()}})
	require.NoError(t, err)
	_, err = tx.DeleteFacts(ctx, []ir.Fact{ac})
	require.NoError(t, err)

	js, err := tx.ListJustificationsForTriple(ctx, ac)
	require.NoError(t, err)
	require.Len(t, js, 1)
	assert.True(t, js[0].Triple.Deleted)

	// by key there is no live row anymore
	none, err := tx.ListJustificationsForTriple(ctx, inferred("a", "p", "c"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListJustifications_OrderedAndRulesSorted(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, WithIDGenerator(NewFixedGenerator("f1", "f2", "f3", "j2", "j1")))
	ab, bc, ac := seedDerivation(t, s)

	v := ir.Variable
	other := ir.NewRule("direct", "", ir.NewPattern(v("a"), ir.IRI("p"), v("c")),
		ir.NewPattern(v("a"), ir.IRI("p"), v("b")))
	rules := []ir.Rule{testRule(), other}

	tx, err := s.BeginReasoner(ctx)
	require.NoError(t, err)
	defer tx.Close()

	_, err = tx.StoreJustification(ctx, ir.Justification{Triple: ac, SupportingTriples: []ir.Fact{ab, bc}, SupportingRules: rules})
	require.NoError(t, err)
	_, err = tx.StoreJustification(ctx, ir.Justification{Triple: ac, SupportingTriples: []ir.Fact{ab}, SupportingRules: []ir.Rule{other}})
	require.NoError(t, err)

	js, err := tx.ListJustificationsForTriple(ctx, ac)
	require.NoError(t, err)
	require.Len(t, js, 2)
	assert.Equal(t, "j1", js[0].ID)
	assert.Equal(t, "j2", js[1].ID)

	ids := []string{js[1].SupportingRules[0].ID, js[1].SupportingRules[1].ID}
	assert.True(t, ids[0] < ids[1], "rules ordered by id: %v", ids)

	byA, err := tx.ListJustificationsSupportedBy(ctx, ab)
	require.NoError(t, err)
	assert.Len(t, byA, 2)
}
