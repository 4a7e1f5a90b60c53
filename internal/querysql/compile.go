// Package querysql compiles fact lookups to parameterized SQLite queries.
//
// Every query carries an ORDER BY with a binary-collated tiebreaker so that
// listing results, and therefore join and materialization order, is
// deterministic. Values are always bound as parameters, never interpolated.
package querysql

import (
	"fmt"
	"strings"

	"github.com/cayleygraph/quad"

	"github.com/roach88/lemma/internal/ir"
)

// FactColumns is the column list every fact query selects, in scan order.
const FactColumns = "id, subject, predicate, object, context, creator, created_at, deleted_at, inferred, deleted"

// Predicate is a WHERE clause fragment.
type Predicate interface {
	predicate()
}

// Equals compares a column to a bound parameter.
type Equals struct {
	Column string
	Value  any
}

// And is a conjunction. An empty And is true.
type And struct {
	Predicates []Predicate
}

// Raw is a fixed SQL condition without parameters.
type Raw string

func (Equals) predicate() {}
func (And) predicate()    {}
func (Raw) predicate()    {}

// Provenance restricts a fact query by how facts were produced.
type Provenance int

const (
	// AnyProvenance matches base and inferred facts.
	AnyProvenance Provenance = iota
	// BaseOnly matches facts asserted directly.
	BaseOnly
	// InferredOnly matches facts derived by rules.
	InferredOnly
)

// FactQuery describes a listing of live facts.
type FactQuery struct {
	Lookup     ir.Lookup
	Provenance Provenance
	// IncludeDeleted also returns soft-deleted rows.
	IncludeDeleted bool
}

// SQLCompiler compiles fact queries for the facts table.
type SQLCompiler struct {
	Table string
}

// NewSQLCompiler creates a compiler for the default facts table.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Table: "facts"}
}

// Compile returns the SQL text and its parameters.
func (c *SQLCompiler) Compile(q FactQuery) (string, []any, error) {
	var preds []Predicate
	if !q.IncludeDeleted {
		preds = append(preds, Raw("deleted = 0"))
	}
	switch q.Provenance {
	case AnyProvenance:
	case BaseOnly:
		preds = append(preds, Raw("inferred = 0"))
	case InferredOnly:
		preds = append(preds, Raw("inferred = 1"))
	default:
		return "", nil, fmt.Errorf("unsupported provenance: %d", q.Provenance)
	}
	positions := []struct {
		column string
		node   quad.Value
	}{
		{"subject", q.Lookup.Subject},
		{"predicate", q.Lookup.Predicate},
		{"object", q.Lookup.Object},
		{"context", q.Lookup.Context},
	}
	for _, p := range positions {
		if p.node == nil {
			continue
		}
		preds = append(preds, Equals{Column: p.column, Value: ir.EncodeNode(p.node)})
	}

	where, params, err := c.compilePredicate(And{Predicates: preds})
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		FactColumns, c.Table, where, c.stableOrderKey())
	return sql, params, nil
}

// stableOrderKey returns the ORDER BY clause body. Every query must use it.
func (c *SQLCompiler) stableOrderKey() string {
	return "seq ASC, id COLLATE BINARY ASC"
}

func (c *SQLCompiler) compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case Equals:
		if !validColumn(pred.Column) {
			return "", nil, fmt.Errorf("invalid column %q", pred.Column)
		}
		return pred.Column + " = ?", []any{pred.Value}, nil
	case Raw:
		return string(pred), nil, nil
	case And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, sub := range pred.Predicates {
			sql, subParams, err := c.compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func validColumn(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
