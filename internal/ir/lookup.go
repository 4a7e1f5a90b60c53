package ir

import "github.com/cayleygraph/quad"

// Lookup constrains a fact listing. A nil position is a wildcard; a non-nil
// position must match exactly.
type Lookup struct {
	Subject   quad.Value
	Predicate quad.Value
	Object    quad.Value
	Context   quad.Value
}

// ExactLookup returns a lookup matching exactly one quadruple. A nil context
// in k still acts as a wildcard.
func ExactLookup(k FactKey) Lookup {
	return Lookup{Subject: k.Subject, Predicate: k.Predicate, Object: k.Object, Context: k.Context}
}

// BoundCount returns how many positions are constrained.
func (l Lookup) BoundCount() int {
	n := 0
	for _, v := range [4]quad.Value{l.Subject, l.Predicate, l.Object, l.Context} {
		if v != nil {
			n++
		}
	}
	return n
}

// Matches reports whether k satisfies the lookup.
func (l Lookup) Matches(k FactKey) bool {
	return matchNode(l.Subject, k.Subject) &&
		matchNode(l.Predicate, k.Predicate) &&
		matchNode(l.Object, k.Object) &&
		matchNode(l.Context, k.Context)
}

func matchNode(want, got quad.Value) bool {
	return want == nil || NormalizeNode(want) == got
}
