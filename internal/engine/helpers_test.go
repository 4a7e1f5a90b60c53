package engine

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/cayleygraph/quad"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lemma/internal/ir"
	"github.com/roach88/lemma/internal/store"
	"github.com/roach88/lemma/internal/testutil"
)

const exNS = "http://example.org/"

func ex(name string) quad.IRI { return quad.IRI(exNS + name) }

// key builds a default-graph key from example.org local names.
func key(s, p, o string) ir.FactKey {
	return ir.NewFactKey(ex(s), ex(p), ex(o), nil)
}

// ikey builds a key in the default inferred graph.
func ikey(s, p, o string) ir.FactKey {
	return ir.NewFactKey(ex(s), ex(p), ex(o), DefaultInferredContext)
}

func fact(s, p, o string) ir.Fact { return ir.NewFact(key(s, p, o)) }

func v(name string) ir.Field  { return ir.Variable(name) }
func exf(name string) ir.Field { return ir.IRI(exNS + name) }

// transitiveRule is "(?a p ?b), (?b p ?c) -> (?a p ?c)".
func transitiveRule(p string) ir.Rule {
	return ir.NewRule(p+"-transitive", "",
		ir.NewPattern(v("a"), exf(p), v("c")),
		ir.NewPattern(v("a"), exf(p), v("b")),
		ir.NewPattern(v("b"), exf(p), v("c")),
	)
}

// symmetricRule is "(?a p ?b) -> (?b p ?a)".
func symmetricRule(p string) ir.Rule {
	return ir.NewRule(p+"-symmetric", "",
		ir.NewPattern(v("b"), exf(p), v("a")),
		ir.NewPattern(v("a"), exf(p), v("b")),
	)
}

// liftRule is "(?a from ?b) -> (?a to ?b)".
func liftRule(name, from, to string) ir.Rule {
	return ir.NewRule(name, "",
		ir.NewPattern(v("a"), exf(to), v("b")),
		ir.NewPattern(v("a"), exf(from), v("b")),
	)
}

func program(rules ...ir.Rule) *ir.Program {
	return ir.NewProgram("test", "", nil, rules...)
}

// openStore creates a store in a temporary directory.
func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "lemma.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// fixture wires a reasoner to a store's commit hook.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *store.Store
	r     *Reasoner
}

func newFixture(t *testing.T, p *ir.Program, opts ...Option) *fixture {
	t.Helper()
	s := openStore(t)
	r, err := New(StoreConnector(s), p, opts...)
	require.NoError(t, err)
	s.OnCommit(func(d ir.TransactionData) { r.AfterCommit(d) })
	t.Cleanup(func() { r.Shutdown(true) })
	return &fixture{t: t, ctx: context.Background(), store: s, r: r}
}

// assert inserts base facts in one user transaction and waits for reasoning.
func (f *fixture) assert(facts ...ir.Fact) []ir.Fact {
	f.t.Helper()
	tx, err := f.store.Begin(f.ctx)
	require.NoError(f.t, err)
	defer tx.Close()
	rows, err := tx.InsertFacts(f.ctx, facts)
	require.NoError(f.t, err)
	require.NoError(f.t, tx.Commit())
	waitIdle(f.t, f.r)
	return rows
}

// retract deletes live facts by key in one user transaction and waits for
// reasoning.
func (f *fixture) retract(keys ...ir.FactKey) []ir.Fact {
	f.t.Helper()
	tx, err := f.store.Begin(f.ctx)
	require.NoError(f.t, err)
	defer tx.Close()
	facts := make([]ir.Fact, len(keys))
	for i, k := range keys {
		facts[i] = ir.NewFact(k)
	}
	rows, err := tx.DeleteFacts(f.ctx, facts)
	require.NoError(f.t, err)
	require.NoError(f.t, tx.Commit())
	waitIdle(f.t, f.r)
	return rows
}

func waitIdle(t *testing.T, r *Reasoner) {
	t.Helper()
	testutil.WaitIdle(t, r)
}

// live returns the live facts in store order.
func (f *fixture) live() []ir.Fact {
	f.t.Helper()
	var out []ir.Fact
	require.NoError(f.t, f.store.Read(f.ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListFacts(f.ctx, ir.Lookup{})
		return err
	}))
	return out
}

// inferredKeys returns the sorted keys of live inferred facts.
func (f *fixture) inferredKeys() []ir.FactKey {
	f.t.Helper()
	var keys []ir.FactKey
	for _, fact := range f.live() {
		if fact.Inferred {
			keys = append(keys, fact.Key())
		}
	}
	return sortedKeys(keys...)
}

// justifications returns the stored justifications of the live fact with
// key k.
func (f *fixture) justifications(k ir.FactKey) []ir.Justification {
	f.t.Helper()
	var out []ir.Justification
	require.NoError(f.t, f.store.Read(f.ctx, func(tx *store.Tx) error {
		rows, err := tx.ListFacts(f.ctx, ir.ExactLookup(k))
		if err != nil {
			return err
		}
		require.Len(f.t, rows, 1, "live fact %s", k)
		out, err = tx.ListJustificationsForTriple(f.ctx, rows[0])
		return err
	}))
	return out
}

// signatures returns the sorted signatures of js.
func signatures(js []ir.Justification) []string {
	out := make([]string, len(js))
	for i, j := range js {
		out[i] = j.Signature()
	}
	slices.Sort(out)
	return out
}

func sortedKeys(keys ...ir.FactKey) []ir.FactKey {
	out := append([]ir.FactKey{}, keys...)
	slices.SortFunc(out, ir.CompareFactKeys)
	return out
}

// memLookup is an in-memory FactLookup and JustificationSource.
type memLookup struct {
	facts []ir.Fact
	justs map[ir.FactKey][]ir.Justification
	err   error
	calls int
}

func (m *memLookup) ListFacts(_ context.Context, l ir.Lookup) ([]ir.Fact, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []ir.Fact
	for _, f := range m.facts {
		if l.Matches(f.Key()) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memLookup) ListJustificationsForTriple(_ context.Context, f ir.Fact) ([]ir.Justification, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.justs[f.Key()], nil
}
