package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cayleygraph/quad"

	"github.com/roach88/lemma/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedNow returns a clock function pinned to a single instant.
func fixedNow() func() time.Time {
	at := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	return func() time.Time { return at }
}

// key builds a default-graph key from IRI local names.
func key(s, p, o string) ir.FactKey {
	return ir.NewFactKey(quad.IRI(s), quad.IRI(p), quad.IRI(o), nil)
}

// fact builds a base fact from IRI local names.
func fact(s, p, o string) ir.Fact {
	return ir.NewFact(key(s, p, o))
}

// inferred builds an inferred fact from IRI local names.
func inferred(s, p, o string) ir.Fact {
	f := fact(s, p, o)
	f.Inferred = true
	return f
}

// insertCommitted inserts facts in their own transaction and returns the rows.
func insertCommitted(t *testing.T, s *Store, facts ...ir.Fact) []ir.Fact {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	defer tx.Close()
	rows, err := tx.InsertFacts(ctx, facts)
	if err != nil {
		t.Fatalf("InsertFacts() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	return rows
}

// testRule is "(?a p ?b), (?b p ?c) -> (?a p ?c)".
func testRule() ir.Rule {
	v := ir.Variable
	p := ir.IRI("p")
	return ir.NewRule("trans", "transitive p",
		ir.NewPattern(v("a"), p, v("c")),
		ir.NewPattern(v("a"), p, v("b")),
		ir.NewPattern(v("b"), p, v("c")),
	)
}
