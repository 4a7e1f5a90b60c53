package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/lemma/internal/ir"
	"github.com/roach88/lemma/internal/querysql"
)

// Sentinel errors returned by Tx methods.
var (
	ErrTxDone          = errors.New("transaction already committed or rolled back")
	ErrFactNotFound    = errors.New("fact not found")
	ErrProgramExists   = errors.New("program already exists")
	ErrProgramNotFound = errors.New("program not found")
)

// Tx is a store transaction. It is not safe for concurrent use.
//
// A Tx tracks the facts it inserted and deleted. For user transactions that
// delta is published to OnCommit listeners once Commit succeeds.
type Tx struct {
	store   *Store
	tx      *sql.Tx
	seq     int64
	creator string
	publish bool

	added   []ir.Fact
	removed []ir.Fact

	// rules caches rules loaded by id for justification reads.
	rules map[string]ir.Rule
	done  bool
}

// Seq returns the transaction's sequence number.
func (t *Tx) Seq() int64 {
	return t.seq
}

// Delta returns the facts inserted and deleted so far.
func (t *Tx) Delta() ir.TransactionData {
	return ir.TransactionData{
		Seq:     t.seq,
		Added:   append([]ir.Fact(nil), t.added...),
		Removed: append([]ir.Fact(nil), t.removed...),
	}
}

// Commit commits the transaction and publishes its delta.
func (t *Tx) Commit() error {
	return t.CommitThen(nil)
}

// CommitThen commits the transaction and hands its delta to fn after the
// OnCommit listeners. User commits, their listeners and fn run in commit
// order; fn must not commit another transaction.
func (t *Tx) CommitThen(fn CommitListener) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if t.publish {
		t.store.commitMu.Lock()
		defer t.store.commitMu.Unlock()
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	data := t.Delta()
	t.store.logger.Debug("transaction committed",
		zap.Int64("seq", data.Seq),
		zap.Int("added", len(data.Added)),
		zap.Int("removed", len(data.Removed)),
		zap.Bool("publish", t.publish),
	)
	if t.publish && !data.IsEmpty() {
		t.store.notify(data)
	}
	if fn != nil {
		fn(data)
	}
	return nil
}

// Close rolls the transaction back unless it was committed. Safe to defer.
func (t *Tx) Close() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// ListFacts returns live facts matching the lookup, ordered by seq then id.
func (t *Tx) ListFacts(ctx context.Context, lookup ir.Lookup) ([]ir.Fact, error) {
	return t.queryFacts(ctx, querysql.FactQuery{Lookup: lookup})
}

// ListBaseFacts returns all live asserted facts.
func (t *Tx) ListBaseFacts(ctx context.Context) ([]ir.Fact, error) {
	return t.queryFacts(ctx, querysql.FactQuery{Provenance: querysql.BaseOnly})
}

// ListInferredFacts returns all live derived facts.
func (t *Tx) ListInferredFacts(ctx context.Context) ([]ir.Fact, error) {
	return t.queryFacts(ctx, querysql.FactQuery{Provenance: querysql.InferredOnly})
}

func (t *Tx) queryFacts(ctx context.Context, q querysql.FactQuery) ([]ir.Fact, error) {
	query, params, err := querysql.NewSQLCompiler().Compile(q)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	rows, err := t.tx.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	return collectFacts(rows)
}

// GetFact returns a fact row by id, live or deleted.
// Returns ErrFactNotFound if no row has that id.
func (t *Tx) GetFact(ctx context.Context, id string) (ir.Fact, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+querysql.FactColumns+` FROM facts WHERE id = ?`, id)
	f, err := scanFact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Fact{}, fmt.Errorf("%w: %s", ErrFactNotFound, id)
	}
	return f, err
}

// findLive returns the live row for an exact quadruple. A nil context is the
// default graph.
func (t *Tx) findLive(ctx context.Context, k ir.FactKey) (ir.Fact, bool, error) {
	enc := k.Encoded()
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+querysql.FactColumns+`
		FROM facts
		WHERE deleted = 0 AND subject = ? AND predicate = ? AND object = ? AND context = ?
	`, enc[0], enc[1], enc[2], enc[3])
	f, err := scanFact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Fact{}, false, nil
	}
	if err != nil {
		return ir.Fact{}, false, err
	}
	return f, true, nil
}

// InsertFacts inserts facts that are not already live.
// Uses ON CONFLICT DO NOTHING against the live-quadruple index, so inserting
// an existing fact is silently ignored. In a user transaction, asserting a
// fact that is live only as an inferred fact turns that row into a base fact
// and reports it as inserted.
//
// Returns the facts actually inserted, with ID, Creator and CreatedAt filled.
// An empty Creator defaults to the transaction's creator.
func (t *Tx) InsertFacts(ctx context.Context, facts []ir.Fact) ([]ir.Fact, error) {
	if t.done {
		return nil, ErrTxDone
	}
	inserted := []ir.Fact{}
	for _, f := range facts {
		f.Subject, f.Predicate, f.Object, f.Context = ir.NormalizeNode(f.Subject), ir.NormalizeNode(f.Predicate), ir.NormalizeNode(f.Object), ir.NormalizeNode(f.Context)
		f.ID = t.store.ids.Generate()
		if f.Creator == "" {
			f.Creator = t.creator
		}
		f.CreatedAt = t.store.now().UTC()
		f.DeletedAt = nil
		f.Deleted = false

		enc := f.Key().Encoded()
		res, err := t.tx.ExecContext(ctx, `
			INSERT INTO facts
			(id, subject, predicate, object, context, creator, created_at, inferred, deleted, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
			ON CONFLICT DO NOTHING
		`,
			f.ID, enc[0], enc[1], enc[2], enc[3],
			f.Creator,
			f.CreatedAt.UnixNano(),
			boolInt(f.Inferred),
			t.seq,
		)
		if err != nil {
			return nil, fmt.Errorf("insert fact %s: %w", f, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("insert fact %s: %w", f, err)
		}
		if n == 0 {
			promoted, ok, err := t.promote(ctx, f)
			if err != nil {
				return nil, err
			}
			if ok {
				inserted = append(inserted, promoted)
				t.added = append(t.added, promoted)
			}
			continue
		}
		inserted = append(inserted, f)
		t.added = append(t.added, f)
	}
	return inserted, nil
}

// promote marks the live inferred row for f as asserted. Only user
// transactions promote; the reasoner never turns its own facts into base
// facts.
func (t *Tx) promote(ctx context.Context, f ir.Fact) (ir.Fact, bool, error) {
	if !t.publish || f.Inferred {
		return ir.Fact{}, false, nil
	}
	live, ok, err := t.findLive(ctx, f.Key())
	if err != nil {
		return ir.Fact{}, false, fmt.Errorf("insert fact %s: %w", f, err)
	}
	if !ok || !live.Inferred {
		return ir.Fact{}, false, nil
	}
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE facts SET inferred = 0, creator = ? WHERE id = ? AND deleted = 0
	`, f.Creator, live.ID); err != nil {
		return ir.Fact{}, false, fmt.Errorf("assert inferred fact %s: %w", live.ID, err)
	}
	live.Inferred = false
	live.Creator = f.Creator
	return live, true, nil
}

// DeleteFacts soft-deletes live facts. A fact with an ID is deleted by id;
// otherwise the live row with the same quadruple is deleted (nil context is
// the default graph). Facts that are not live are ignored.
//
// Returns the rows actually deleted, with Deleted and DeletedAt set.
func (t *Tx) DeleteFacts(ctx context.Context, facts []ir.Fact) ([]ir.Fact, error) {
	if t.done {
		return nil, ErrTxDone
	}
	deleted := []ir.Fact{}
	for _, f := range facts {
		var row ir.Fact
		if f.ID != "" {
			got, err := t.GetFact(ctx, f.ID)
			if errors.Is(err, ErrFactNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("delete fact: %w", err)
			}
			if got.Deleted {
				continue
			}
			row = got
		} else {
			got, ok, err := t.findLive(ctx, f.Key())
			if err != nil {
				return nil, fmt.Errorf("delete fact %s: %w", f, err)
			}
			if !ok {
				continue
			}
			row = got
		}

		at := t.store.now().UTC()
		if _, err := t.tx.ExecContext(ctx, `
			UPDATE facts SET deleted = 1, deleted_at = ? WHERE id = ? AND deleted = 0
		`, at.UnixNano(), row.ID); err != nil {
			return nil, fmt.Errorf("delete fact %s: %w", row.ID, err)
		}
		row.Deleted = true
		row.DeletedAt = &at
		deleted = append(deleted, row)

		// A row inserted and deleted inside this transaction was never
		// visible to anyone else.
		if i := indexOfID(t.added, row.ID); i >= 0 {
			t.added = append(t.added[:i], t.added[i+1:]...)
			continue
		}
		t.removed = append(t.removed, row)
	}
	return deleted, nil
}

func indexOfID(facts []ir.Fact, id string) int {
	for i, f := range facts {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
