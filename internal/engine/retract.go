package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/lemma/internal/ir"
)

// OnRemove maintains the closure after facts were deleted.
//
// Every justification supported by a deleted fact is destroyed. The facts
// those justifications derived are re-examined: an inferred fact whose
// remaining justifications no longer resolve to base facts is retracted, and
// its retraction cascades the same way. Base facts are never retracted by
// the reasoner.
//
// A deleted fact that still has a well-founded justification afterwards is
// inserted again as an inferred fact with fresh justifications. Those rows
// are returned so the caller can chain from them.
func (m *Materializer) OnRemove(ctx context.Context, conn Conn, removed []ir.Fact) (Delta, []ir.Fact, error) {
	var delta Delta
	r := &retraction{m: m, conn: conn, resolver: NewResolver(conn, m.logger)}

	for _, f := range removed {
		if f.ID == "" {
			continue
		}
		if err := r.detach(ctx, f); err != nil {
			return Delta{}, nil, err
		}
	}

	for len(r.queue) > 0 {
		cand := r.queue[0]
		r.queue = r.queue[1:]
		delete(r.queued, cand.ID)

		supported, err := r.wellFounded(ctx, cand)
		if err != nil {
			return Delta{}, nil, err
		}
		if supported {
			continue
		}
		gone, err := conn.DeleteFacts(ctx, []ir.Fact{cand})
		if err != nil {
			return Delta{}, nil, storageErr("retract fact", err)
		}
		if len(gone) == 0 {
			continue
		}
		m.logger.Debug("retracted fact", zap.Stringer("fact", cand.Key()))
		delta.Retracted = append(delta.Retracted, gone...)
		if err := r.dropOwn(ctx, gone[0]); err != nil {
			return Delta{}, nil, err
		}
		if err := r.detach(ctx, gone[0]); err != nil {
			return Delta{}, nil, err
		}
	}

	var back []ir.Fact
	for _, f := range removed {
		if f.ID == "" {
			continue
		}
		row, ok, err := r.reinsert(ctx, f)
		if err != nil {
			return Delta{}, nil, err
		}
		if ok {
			back = append(back, row)
			delta.Inferred = append(delta.Inferred, row)
		}
	}
	return delta, back, nil
}

type retraction struct {
	m        *Materializer
	conn     Conn
	resolver *Resolver
	queue    []ir.Fact
	queued   map[string]bool
}

// detach destroys every justification supported by f and queues the facts
// they derived.
func (r *retraction) detach(ctx context.Context, f ir.Fact) error {
	js, err := r.conn.ListJustificationsSupportedBy(ctx, f)
	if err != nil {
		return storageErr("list supported justifications", err)
	}
	for _, j := range js {
		if err := r.conn.DeleteJustification(ctx, j.ID); err != nil {
			return storageErr("delete justification", err)
		}
		r.enqueue(j.Triple)
	}
	return nil
}

// dropOwn destroys the justifications of a retracted fact.
func (r *retraction) dropOwn(ctx context.Context, f ir.Fact) error {
	js, err := r.conn.ListJustificationsForTriple(ctx, f)
	if err != nil {
		return storageErr("list justifications", err)
	}
	for _, j := range js {
		if err := r.conn.DeleteJustification(ctx, j.ID); err != nil {
			return storageErr("delete justification", err)
		}
	}
	return nil
}

func (r *retraction) enqueue(f ir.Fact) {
	if !f.Inferred || f.Deleted {
		return
	}
	if r.queued == nil {
		r.queued = make(map[string]bool)
	}
	if r.queued[f.ID] {
		return
	}
	r.queued[f.ID] = true
	r.queue = append(r.queue, f)
}

// wellFounded reports whether f still has a justification that resolves to
// base facts. A resolution cycle counts as unsupported.
func (r *retraction) wellFounded(ctx context.Context, f ir.Fact) (bool, error) {
	js, err := r.conn.ListJustificationsForTriple(ctx, f)
	if err != nil {
		return false, storageErr("list justifications", err)
	}
	if len(js) == 0 {
		return false, nil
	}
	resolved, err := r.resolver.BaseJustifications(ctx, js)
	if IsCycleError(err) {
		r.m.logger.Debug("resolution cycle, treating fact as unsupported",
			zap.Stringer("fact", f.Key()), zap.Error(err))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(resolved) > 0, nil
}

// reinsert brings back a deleted fact that is still justified. The old
// justifications are replaced by equivalent ones on the new row. Reports
// whether a row was inserted.
func (r *retraction) reinsert(ctx context.Context, f ir.Fact) (ir.Fact, bool, error) {
	js, err := r.conn.ListJustificationsForTriple(ctx, f)
	if err != nil {
		return ir.Fact{}, false, storageErr("list justifications", err)
	}
	if len(js) == 0 {
		return ir.Fact{}, false, nil
	}

	supported := false
	if resolved, err := r.resolver.BaseJustifications(ctx, js); err == nil {
		supported = len(resolved) > 0
	} else if !IsCycleError(err) {
		return ir.Fact{}, false, err
	}

	for _, j := range js {
		if err := r.conn.DeleteJustification(ctx, j.ID); err != nil {
			return ir.Fact{}, false, storageErr("delete justification", err)
		}
	}
	if !supported {
		return ir.Fact{}, false, nil
	}

	k := f.Key()
	if rules := js[0].SupportingRules; !f.Inferred && len(rules) > 0 && rules[0].Head.Context.IsZero() {
		// A context-free head derives into the inferred graph.
		k.Context = r.m.inferredContext
	}
	nf := ir.NewFact(k)
	nf.Inferred = true
	inserted, err := r.conn.InsertFacts(ctx, []ir.Fact{nf})
	if err != nil {
		return ir.Fact{}, false, storageErr("reinsert fact", err)
	}
	isNew := len(inserted) == 1
	var row ir.Fact
	if isNew {
		row = inserted[0]
	} else {
		// Already live, e.g. asserted again in the same transaction.
		live, err := r.conn.ListFacts(ctx, ir.ExactLookup(k))
		if err != nil {
			return ir.Fact{}, false, storageErr("list facts", err)
		}
		if len(live) == 0 {
			return ir.Fact{}, false, nil
		}
		row = live[0]
	}
	for _, j := range js {
		fresh := ir.Justification{
			Triple:            row,
			SupportingTriples: j.SupportingTriples,
			SupportingRules:   j.SupportingRules,
		}
		if _, err := r.conn.StoreJustification(ctx, fresh); err != nil {
			return ir.Fact{}, false, storageErr("store justification", err)
		}
	}
	r.m.logger.Debug("deleted fact still justified, kept as inferred",
		zap.Stringer("fact", row.Key()), zap.Int("justifications", len(js)))
	return row, isNew, nil
}
