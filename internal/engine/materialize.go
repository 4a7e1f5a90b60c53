package engine

import (
	"context"
	"errors"

	"github.com/cayleygraph/quad"
	"go.uber.org/zap"

	"github.com/roach88/lemma/internal/ir"
)

// DefaultInferredContext is the graph inferred facts are written to when a
// rule head has no context.
const DefaultInferredContext = quad.IRI("urn:lemma:inferred")

// Delta is the net effect of one materialization step.
type Delta struct {
	// Inferred holds facts inserted by the reasoner, in insertion order.
	Inferred []ir.Fact
	// Retracted holds facts deleted by the reasoner, in deletion order.
	Retracted []ir.Fact
	// Justifications holds newly stored justifications.
	Justifications []ir.Justification
	// Rounds is the number of chaining rounds run.
	Rounds int
}

func (d *Delta) merge(other Delta) {
	d.Inferred = append(d.Inferred, other.Inferred...)
	d.Retracted = append(d.Retracted, other.Retracted...)
	d.Justifications = append(d.Justifications, other.Justifications...)
	d.Rounds += other.Rounds
}

// Materializer applies a program to a connection: forward chaining on
// additions, truth maintenance on removals.
//
// A Materializer holds no per-transaction state and is safe to reuse, but
// each call must have exclusive use of its Conn.
type Materializer struct {
	inferredContext quad.Value
	maxRounds       int
	logger          *zap.Logger
}

// NewMaterializer creates a materializer. A nil inferredContext writes
// context-free heads to the default graph.
func NewMaterializer(inferredContext quad.Value, maxRounds int, logger *zap.Logger) *Materializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Materializer{
		inferredContext: ir.NormalizeNode(inferredContext),
		maxRounds:       maxRounds,
		logger:          logger,
	}
}

// Apply processes one committed transaction: removals first, then additions.
// Removed facts that remain justified come back as inferred facts and seed
// chaining together with the added facts.
func (m *Materializer) Apply(ctx context.Context, conn Conn, program *ir.Program, data ir.TransactionData) (Delta, error) {
	var delta Delta
	var reinserted []ir.Fact
	if len(data.Removed) > 0 {
		d, back, err := m.OnRemove(ctx, conn, data.Removed)
		if err != nil {
			return Delta{}, err
		}
		delta.merge(d)
		reinserted = back
	}

	seeds := append(append([]ir.Fact(nil), data.Added...), reinserted...)
	if len(seeds) > 0 {
		d, err := m.OnAdd(ctx, conn, program, seeds)
		if err != nil {
			return Delta{}, err
		}
		delta.merge(d)
	}
	return delta, nil
}

// OnAdd runs the program incrementally, seeded by added facts.
//
// Every rule is joined once per (body position, new fact) pair, so only
// matches that use at least one new fact are evaluated. Heads that do not
// exist yet are inserted as inferred facts and seed the next round; heads
// that exist receive an additional justification. Chaining stops when a
// round infers nothing new.
func (m *Materializer) OnAdd(ctx context.Context, conn Conn, program *ir.Program, added []ir.Fact) (Delta, error) {
	var delta Delta
	frontier, err := m.liveSeeds(ctx, conn, added)
	if err != nil {
		return Delta{}, err
	}

	limiter := newRoundLimiter(m.maxRounds)
	for len(frontier) > 0 {
		if err := limiter.Next(); err != nil {
			return Delta{}, err
		}
		var next []ir.Fact
		for _, rule := range program.Rules {
			for pos := range rule.Body {
				for _, seed := range frontier {
					for sol, err := range Match(ctx, rule.Body, &Seed{Fact: seed, Position: pos}, conn) {
						if err != nil {
							return Delta{}, err
						}
						fact, j, isNew, err := m.fire(ctx, conn, rule, sol)
						if err != nil {
							return Delta{}, err
						}
						if isNew {
							next = append(next, fact)
							delta.Inferred = append(delta.Inferred, fact)
						}
						if j != nil {
							delta.Justifications = append(delta.Justifications, *j)
						}
					}
				}
			}
		}
		m.logger.Debug("chaining round complete",
			zap.Int("round", limiter.Current()),
			zap.Int("seeds", len(frontier)),
			zap.Int("inferred", len(next)),
		)
		frontier = next
	}
	delta.Rounds = limiter.Current()
	return delta, nil
}

// fire records one rule instance. Returns the head fact, the stored
// justification (nil when it already existed or would be self-supporting)
// and whether the head fact was newly inserted.
func (m *Materializer) fire(ctx context.Context, conn Conn, rule ir.Rule, sol Solution) (ir.Fact, *ir.Justification, bool, error) {
	key, err := Instantiate(rule.Head, sol.Bindings, m.inferredContext)
	if errors.Is(err, ErrInvalidHead) {
		m.logger.Debug("skipping head", zap.String("rule", rule.Name), zap.Error(err))
		return ir.Fact{}, nil, false, nil
	}
	if err != nil {
		return ir.Fact{}, nil, false, err
	}
	fact, found, err := m.findExisting(ctx, conn, rule.Head, key)
	if err != nil {
		return ir.Fact{}, nil, false, err
	}
	isNew := false
	if found {
		for _, s := range sol.Facts {
			if s.ID == fact.ID {
				// The head is one of its own supports.
				return ir.Fact{}, nil, false, nil
			}
		}
	} else {
		f := ir.NewFact(key)
		f.Inferred = true
		inserted, err := conn.InsertFacts(ctx, []ir.Fact{f})
		if err != nil {
			return ir.Fact{}, nil, false, storageErr("insert inferred fact", err)
		}
		if len(inserted) != 1 {
			return ir.Fact{}, nil, false, NewStorageError("insert inferred fact", errors.New("fact was not inserted: "+key.String()))
		}
		fact, isNew = inserted[0], true
	}

	j := ir.Justification{
		Triple:            fact,
		SupportingTriples: sol.Facts,
		SupportingRules:   []ir.Rule{rule},
	}
	stored, err := conn.StoreJustification(ctx, j)
	if err != nil {
		return ir.Fact{}, nil, false, storageErr("store justification", err)
	}
	if !stored {
		return fact, nil, isNew, nil
	}
	return fact, &j, isNew, nil
}

// findExisting looks for a live fact equal to key. When the head has no
// context, a fact with the same triple in any graph counts as existing.
func (m *Materializer) findExisting(ctx context.Context, conn Conn, head ir.Pattern, key ir.FactKey) (ir.Fact, bool, error) {
	facts, err := conn.ListFacts(ctx, ir.ExactLookup(key))
	if err != nil {
		return ir.Fact{}, false, storageErr("list facts", err)
	}
	if head.Context.IsZero() {
		// Prefer an exact match so repeated derivations attach to the same row.
		for _, f := range facts {
			if f.Key() == key {
				return f, true, nil
			}
		}
		anyGraph, err := conn.ListFacts(ctx, ir.Lookup{Subject: key.Subject, Predicate: key.Predicate, Object: key.Object})
		if err != nil {
			return ir.Fact{}, false, storageErr("list facts", err)
		}
		if len(anyGraph) > 0 {
			return anyGraph[0], true, nil
		}
		return ir.Fact{}, false, nil
	}
	for _, f := range facts {
		if f.Key() == key {
			return f, true, nil
		}
	}
	return ir.Fact{}, false, nil
}

// liveSeeds returns the stored rows for added facts that are still live.
// A fact deleted by a later transaction before this one was processed does
// not seed anything; its removal is handled when that transaction runs.
func (m *Materializer) liveSeeds(ctx context.Context, conn Conn, added []ir.Fact) ([]ir.Fact, error) {
	seeds := make([]ir.Fact, 0, len(added))
	seen := make(map[string]bool, len(added))
	for _, f := range added {
		rows, err := conn.ListFacts(ctx, ir.ExactLookup(f.Key()))
		if err != nil {
			return nil, storageErr("list facts", err)
		}
		for _, row := range rows {
			if row.Key() != f.Key() || (f.ID != "" && row.ID != f.ID) {
				continue
			}
			if !seen[row.ID] {
				seen[row.ID] = true
				seeds = append(seeds, row)
			}
		}
	}
	return seeds, nil
}

// ReRun rebuilds the closure from scratch: every inferred fact and every
// justification is deleted, then all live base facts seed OnAdd.
func (m *Materializer) ReRun(ctx context.Context, conn Conn, program *ir.Program) (Delta, error) {
	inferred, err := conn.ListInferredFacts(ctx)
	if err != nil {
		return Delta{}, storageErr("list inferred facts", err)
	}
	if err := conn.DeleteAllJustifications(ctx); err != nil {
		return Delta{}, storageErr("delete justifications", err)
	}
	retracted, err := conn.DeleteFacts(ctx, inferred)
	if err != nil {
		return Delta{}, storageErr("delete inferred facts", err)
	}

	base, err := conn.ListBaseFacts(ctx)
	if err != nil {
		return Delta{}, storageErr("list base facts", err)
	}
	delta, err := m.OnAdd(ctx, conn, program, base)
	if err != nil {
		return Delta{}, err
	}
	delta.Retracted = append(retracted, delta.Retracted...)
	m.logger.Info("re-materialized program",
		zap.String("program", program.Name),
		zap.Int("base_facts", len(base)),
		zap.Int("retracted", len(retracted)),
		zap.Int("inferred", len(delta.Inferred)),
		zap.Int("rounds", delta.Rounds),
	)
	return delta, nil
}
