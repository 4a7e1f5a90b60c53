package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/lemma/internal/ir"
)

// Resolver expands justifications down to base facts.
//
// An inferred support is replaced by each of its own justifications,
// recursively, so one justification resolves to the cartesian product of
// its inferred supports' alternatives. Each resolved justification keeps
// the original triple; its supports are the union of the base supports
// along one choice of alternatives and its rules the union of the rules
// used.
//
// Resolution is iterative with an explicit stack. A support already being
// expanded on the current path is a cycle and contributes no alternatives.
type Resolver struct {
	src    JustificationSource
	logger *zap.Logger
}

// NewResolver creates a resolver reading justifications from src.
func NewResolver(src JustificationSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{src: src, logger: logger}
}

// alternative is one way of grounding a fact in base facts.
type alternative struct {
	supports []ir.Fact
	rules    []ir.Rule
}

func (a alternative) union(b alternative) alternative {
	out := alternative{
		supports: make([]ir.Fact, 0, len(a.supports)+len(b.supports)),
		rules:    make([]ir.Rule, 0, len(a.rules)+len(b.rules)),
	}
	seenF := make(map[ir.FactKey]bool, cap(out.supports))
	for _, f := range append(append([]ir.Fact(nil), a.supports...), b.supports...) {
		if k := f.Key(); !seenF[k] {
			seenF[k] = true
			out.supports = append(out.supports, f)
		}
	}
	seenR := make(map[string]bool, cap(out.rules))
	for _, r := range append(append([]ir.Rule(nil), a.rules...), b.rules...) {
		if !seenR[r.ID] {
			seenR[r.ID] = true
			out.rules = append(out.rules, r)
		}
	}
	return out
}

// signature identifies an alternative by its support keys and rule ids.
func (a alternative) signature() string {
	return ir.Justification{SupportingTriples: a.supports, SupportingRules: a.rules}.Signature()
}

// product combines every partial alternative with every choice in alts.
func product(partial, alts []alternative) []alternative {
	var out []alternative
	seen := make(map[string]bool)
	for _, p := range partial {
		for _, a := range alts {
			u := p.union(a)
			if sig := u.signature(); !seen[sig] {
				seen[sig] = true
				out = append(out, u)
			}
		}
	}
	return out
}

// seedAlternative splits j into its base supports (kept) and inferred
// supports (to be expanded).
func seedAlternative(j ir.Justification) (alternative, []ir.Fact) {
	var base, inferred []ir.Fact
	for _, f := range j.SupportingTriples {
		if f.Inferred {
			inferred = append(inferred, f)
		} else {
			base = append(base, f)
		}
	}
	return alternative{}.union(alternative{supports: base, rules: j.SupportingRules}), inferred
}

// frame is the expansion state of one inferred fact on the stack.
type frame struct {
	key     ir.FactKey
	justs   []ir.Justification
	ji      int
	pending []ir.Fact
	pi      int
	partial []alternative
	out     []alternative
	tainted bool
}

// start prepares the current justification, or marks the frame finished.
func (fr *frame) start() {
	fr.pending, fr.pi, fr.partial = nil, 0, nil
	if fr.ji >= len(fr.justs) {
		return
	}
	seed, inferred := seedAlternative(fr.justs[fr.ji])
	fr.partial = []alternative{seed}
	fr.pending = inferred
}

// accept folds the alternatives of the current pending support into the
// partial product.
func (fr *frame) accept(alts []alternative, tainted bool) {
	if tainted {
		fr.tainted = true
	}
	fr.partial = product(fr.partial, alts)
	fr.pi++
	if len(fr.partial) == 0 {
		fr.pi = len(fr.pending)
	}
}

// state is shared across the inputs of one BaseJustifications call.
type state struct {
	memo      map[ir.FactKey][]alternative
	expanding map[ir.FactKey]bool
	cycle     *ir.FactKey
}

// BaseJustifications resolves js to justifications supported only by base
// facts. Duplicates (same triple, supports and rules) are removed; resolved
// justifications carry no ID.
//
// If nothing resolves and a cycle was encountered, the error is a
// CYCLE_DETECTED RuntimeError. Storage failures are returned as
// STORAGE_ERROR.
func (r *Resolver) BaseJustifications(ctx context.Context, js []ir.Justification) ([]ir.Justification, error) {
	st := &state{
		memo:      make(map[ir.FactKey][]alternative),
		expanding: make(map[ir.FactKey]bool),
	}

	var out []ir.Justification
	seen := make(map[string]bool)
	for _, j := range js {
		root := j.Triple.Key()
		st.expanding[root] = true
		seed, inferred := seedAlternative(j)
		partial := []alternative{seed}
		for _, s := range inferred {
			alts, _, err := r.resolveFact(ctx, s, st)
			if err != nil {
				delete(st.expanding, root)
				return nil, err
			}
			partial = product(partial, alts)
			if len(partial) == 0 {
				break
			}
		}
		delete(st.expanding, root)

		for _, a := range partial {
			rj := ir.Justification{Triple: j.Triple, SupportingTriples: a.supports, SupportingRules: a.rules}
			if sig := rj.Signature(); !seen[sig] {
				seen[sig] = true
				out = append(out, rj)
			}
		}
	}

	if len(out) == 0 && st.cycle != nil {
		return nil, NewCycleError(*st.cycle)
	}
	if out == nil {
		out = []ir.Justification{}
	}
	return out, nil
}

// resolveFact returns the base alternatives of an inferred fact. tainted
// reports that a cycle cut some path, in which case the result depends on
// the current path and is not memoized.
func (r *Resolver) resolveFact(ctx context.Context, f ir.Fact, st *state) ([]alternative, bool, error) {
	k := f.Key()
	if alts, ok := st.memo[k]; ok {
		return alts, false, nil
	}
	if st.expanding[k] {
		st.noteCycle(k)
		return nil, true, nil
	}

	var stack []*frame
	push := func(f ir.Fact) error {
		js, err := r.src.ListJustificationsForTriple(ctx, f)
		if err != nil {
			return storageErr("list justifications", err)
		}
		fr := &frame{key: f.Key(), justs: js}
		fr.start()
		st.expanding[fr.key] = true
		stack = append(stack, fr)
		return nil
	}
	unwind := func() {
		for _, fr := range stack {
			delete(st.expanding, fr.key)
		}
	}

	if err := push(f); err != nil {
		return nil, false, err
	}
	for {
		if err := ctx.Err(); err != nil {
			unwind()
			return nil, false, err
		}
		top := stack[len(stack)-1]

		if top.ji >= len(top.justs) {
			stack = stack[:len(stack)-1]
			delete(st.expanding, top.key)
			if !top.tainted {
				st.memo[top.key] = top.out
			}
			if len(stack) == 0 {
				return top.out, top.tainted, nil
			}
			stack[len(stack)-1].accept(top.out, top.tainted)
			continue
		}

		if top.pi >= len(top.pending) {
			top.out = appendAlternatives(top.out, top.partial)
			top.ji++
			top.start()
			continue
		}

		s := top.pending[top.pi]
		sk := s.Key()
		if alts, ok := st.memo[sk]; ok {
			top.accept(alts, false)
			continue
		}
		if st.expanding[sk] {
			st.noteCycle(sk)
			top.accept(nil, true)
			continue
		}
		if err := push(s); err != nil {
			unwind()
			return nil, false, err
		}
	}
}

func (st *state) noteCycle(k ir.FactKey) {
	if st.cycle == nil {
		st.cycle = &k
	}
}

func appendAlternatives(out, alts []alternative) []alternative {
	seen := make(map[string]bool, len(out))
	for _, a := range out {
		seen[a.signature()] = true
	}
	for _, a := range alts {
		if sig := a.signature(); !seen[sig] {
			seen[sig] = true
			out = append(out, a)
		}
	}
	return out
}
