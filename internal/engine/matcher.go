package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"

	"github.com/cayleygraph/quad"

	"github.com/roach88/lemma/internal/ir"
)

// Bindings maps variable names (without '?') to bound nodes.
//
// A variable bound to the default graph maps to nil; use the two-value
// lookup form to tell it apart from an unbound variable.
type Bindings map[string]quad.Value

// Solution is one complete match of a rule body.
type Solution struct {
	Bindings Bindings
	// Facts holds the fact matched by each body pattern, in body order.
	Facts []ir.Fact
}

// Seed pins one body position to a specific fact. Only solutions that use
// the seed fact at that position are produced.
type Seed struct {
	Fact     ir.Fact
	Position int
}

// ErrInvalidHead is returned by Instantiate when the bindings would place a
// literal in subject or predicate position, or leave a head variable unbound.
var ErrInvalidHead = errors.New("head cannot be instantiated")

// Match evaluates a conjunction of patterns against lookup with a
// nested-loop join.
//
// With a seed, the seeded pattern is bound first. Remaining patterns are
// joined greedily: at each level the pattern with the most positions bound
// by the current bindings goes next, ties broken by body order.
//
// The returned sequence is lazy and restartable; every range re-runs the
// lookups. On a lookup error the sequence yields the error once and stops.
func Match(ctx context.Context, body []ir.Pattern, seed *Seed, lookup FactLookup) iter.Seq2[Solution, error] {
	return func(yield func(Solution, error) bool) {
		if len(body) == 0 {
			return
		}
		matched := make([]ir.Fact, len(body))
		done := make([]bool, len(body))
		bindings := Bindings{}

		if seed != nil {
			if seed.Position < 0 || seed.Position >= len(body) {
				yield(Solution{}, fmt.Errorf("seed position %d out of range for %d patterns", seed.Position, len(body)))
				return
			}
			b, ok := Unify(body[seed.Position], seed.Fact, bindings)
			if !ok {
				return
			}
			bindings = b
			matched[seed.Position] = seed.Fact
			done[seed.Position] = true
		}

		j := &joiner{ctx: ctx, body: body, lookup: lookup, matched: matched, done: done, yield: yield}
		j.join(bindings, countDone(done))
	}
}

type joiner struct {
	ctx     context.Context
	body    []ir.Pattern
	lookup  FactLookup
	matched []ir.Fact
	done    []bool
	yield   func(Solution, error) bool
}

// join extends bindings with the next pattern. Returns false when the
// consumer stopped or an error was yielded.
func (j *joiner) join(bindings Bindings, depth int) bool {
	if depth == len(j.body) {
		return j.yield(Solution{
			Bindings: maps.Clone(bindings),
			Facts:    append([]ir.Fact(nil), j.matched...),
		}, nil)
	}
	if err := j.ctx.Err(); err != nil {
		j.yield(Solution{}, err)
		return false
	}

	next := j.pick(bindings)
	p := j.body[next]
	facts, err := j.lookup.ListFacts(j.ctx, substitute(p, bindings))
	if err != nil {
		j.yield(Solution{}, storageErr("list facts", err))
		return false
	}

	j.done[next] = true
	defer func() { j.done[next] = false }()
	for _, f := range facts {
		b, ok := Unify(p, f, bindings)
		if !ok {
			continue
		}
		j.matched[next] = f
		if !j.join(b, depth+1) {
			return false
		}
	}
	return true
}

// pick returns the pending pattern with the most bound positions.
func (j *joiner) pick(bindings Bindings) int {
	best, bestScore := -1, -1
	for i, p := range j.body {
		if j.done[i] {
			continue
		}
		if score := boundPositions(p, bindings); score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func countDone(done []bool) int {
	n := 0
	for _, d := range done {
		if d {
			n++
		}
	}
	return n
}

func boundPositions(p ir.Pattern, bindings Bindings) int {
	n := 0
	for _, f := range p.Fields() {
		switch {
		case f.IsBound():
			n++
		case f.IsVariable():
			if v, ok := bindings[f.Name()]; ok && v != nil {
				n++
			}
		}
	}
	return n
}

// substitute builds the store lookup for p under bindings: bound fields and
// bound variables are exact, everything else is a wildcard.
func substitute(p ir.Pattern, bindings Bindings) ir.Lookup {
	node := func(f ir.Field) quad.Value {
		switch {
		case f.IsBound():
			return f.Node()
		case f.IsVariable():
			return bindings[f.Name()]
		}
		return nil
	}
	return ir.Lookup{
		Subject:   node(p.Subject),
		Predicate: node(p.Predicate),
		Object:    node(p.Object),
		Context:   node(p.Context),
	}
}

// Unify matches a fact against a pattern under existing bindings and returns
// the extended bindings. The input map is not modified.
//
// A variable that occurs more than once, in the pattern or across patterns,
// must bind the same node everywhere. An unset field matches anything.
func Unify(p ir.Pattern, f ir.Fact, bindings Bindings) (Bindings, bool) {
	k := f.Key()
	fields := p.Fields()
	nodes := [4]quad.Value{k.Subject, k.Predicate, k.Object, k.Context}

	out := bindings
	cloned := false
	for i, field := range fields {
		switch field.Kind() {
		case ir.FieldUnset:
		case ir.FieldResource, ir.FieldLiteral:
			if field.Node() != nodes[i] {
				return nil, false
			}
		case ir.FieldVariable:
			if v, ok := out[field.Name()]; ok {
				if v != nodes[i] {
					return nil, false
				}
				continue
			}
			if !cloned {
				out = maps.Clone(bindings)
				if out == nil {
					out = Bindings{}
				}
				cloned = true
			}
			out[field.Name()] = nodes[i]
		}
	}
	if out == nil {
		out = Bindings{}
	}
	return out, true
}

// Instantiate substitutes bindings into a rule head. An unset head context
// becomes inferredContext.
//
// Returns ErrInvalidHead if a head variable is unbound or the result would
// not be a valid statement (literal subject or non-IRI predicate).
func Instantiate(head ir.Pattern, bindings Bindings, inferredContext quad.Value) (ir.FactKey, error) {
	resolve := func(f ir.Field) (quad.Value, error) {
		switch f.Kind() {
		case ir.FieldResource, ir.FieldLiteral:
			return f.Node(), nil
		case ir.FieldVariable:
			v, ok := bindings[f.Name()]
			if !ok {
				return nil, fmt.Errorf("%w: ?%s is unbound", ErrInvalidHead, f.Name())
			}
			return v, nil
		}
		return nil, nil
	}

	var nodes [3]quad.Value
	for i, f := range [3]ir.Field{head.Subject, head.Predicate, head.Object} {
		v, err := resolve(f)
		if err != nil {
			return ir.FactKey{}, err
		}
		if v == nil {
			return ir.FactKey{}, fmt.Errorf("%w: position %d is empty", ErrInvalidHead, i)
		}
		nodes[i] = v
	}
	if !ir.IsResourceNode(nodes[0]) {
		return ir.FactKey{}, fmt.Errorf("%w: literal subject %s", ErrInvalidHead, ir.FormatNode(nodes[0]))
	}
	if _, ok := nodes[1].(quad.IRI); !ok {
		return ir.FactKey{}, fmt.Errorf("%w: predicate %s is not an IRI", ErrInvalidHead, ir.FormatNode(nodes[1]))
	}

	ctx := inferredContext
	if !head.Context.IsZero() {
		v, err := resolve(head.Context)
		if err != nil {
			return ir.FactKey{}, err
		}
		ctx = v
	}
	return ir.NewFactKey(nodes[0], nodes[1], nodes[2], ctx), nil
}
