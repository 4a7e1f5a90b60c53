package querysql

import (
	"testing"

	"github.com/cayleygraph/quad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lemma/internal/ir"
)

func TestCompile_WildcardLookup(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(FactQuery{})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT "+FactColumns+" FROM facts WHERE deleted = 0 ORDER BY seq ASC, id COLLATE BINARY ASC",
		sql)
	assert.Empty(t, params)
}

func TestCompile_BoundPositionsAreParameterized(t *testing.T) {
	q := FactQuery{Lookup: ir.Lookup{
		Subject: quad.IRI("http://example.org/a"),
		Object:  quad.String("'; DROP TABLE facts; --"),
	}}

	sql, params, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)

	assert.Contains(t, sql, "WHERE deleted = 0 AND subject = ? AND object = ?")
	assert.NotContains(t, sql, "DROP")
	assert.Equal(t, []any{"I:http://example.org/a", "S:'; DROP TABLE facts; --"}, params)
}

func TestCompile_Provenance(t *testing.T) {
	c := NewSQLCompiler()

	sql, _, err := c.Compile(FactQuery{Provenance: BaseOnly})
	require.NoError(t, err)
	assert.Contains(t, sql, "inferred = 0")

	sql, _, err = c.Compile(FactQuery{Provenance: InferredOnly})
	require.NoError(t, err)
	assert.Contains(t, sql, "inferred = 1")

	_, _, err = c.Compile(FactQuery{Provenance: Provenance(9)})
	assert.Error(t, err)
}

func TestCompile_IncludeDeleted(t *testing.T) {
	sql, _, err := NewSQLCompiler().Compile(FactQuery{
		IncludeDeleted: true,
		Lookup:         ir.Lookup{Context: quad.IRI("g")},
	})
	require.NoError(t, err)
	assert.NotContains(t, sql, "deleted = 0")
	assert.Contains(t, sql, "WHERE context = ?")
}

func TestCompile_OrderByMandatory(t *testing.T) {
	queries := []FactQuery{
		{},
		{Provenance: InferredOnly},
		{IncludeDeleted: true},
		{Lookup: ir.ExactLookup(ir.NewFactKey(quad.IRI("s"), quad.IRI("p"), quad.IRI("o"), quad.IRI("g")))},
	}
	for _, q := range queries {
		sql, _, err := NewSQLCompiler().Compile(q)
		require.NoError(t, err)
		assert.Contains(t, sql, "ORDER BY seq ASC, id COLLATE BINARY ASC")
	}
}

func TestCompilePredicate_RejectsBadColumns(t *testing.T) {
	c := NewSQLCompiler()
	_, _, err := c.compilePredicate(Equals{Column: "subject; --", Value: 1})
	assert.Error(t, err)

	sql, params, err := c.compilePredicate(And{})
	require.NoError(t, err)
	assert.Equal(t, "1 = 1", sql)
	assert.Nil(t, params)
}
