package ir

import (
	"strings"
	"time"

	"github.com/cayleygraph/quad"
)

// FactKey identifies a fact by its quadruple, ignoring store bookkeeping.
//
// All fact equality in the engine goes through FactKey. Construct keys with
// NewFactKey (or Fact.Key) so nodes are normalized and == is meaningful.
type FactKey struct {
	Subject   quad.Value
	Predicate quad.Value
	Object    quad.Value
	Context   quad.Value
}

// NewFactKey builds a normalized key.
func NewFactKey(s, p, o, c quad.Value) FactKey {
	return FactKey{
		Subject:   NormalizeNode(s),
		Predicate: NormalizeNode(p),
		Object:    NormalizeNode(o),
		Context:   NormalizeNode(c),
	}
}

// KeyFromQuad converts a cayley quad into a key. The quad's Label becomes the
// context.
func KeyFromQuad(q quad.Quad) FactKey {
	return NewFactKey(q.Subject, q.Predicate, q.Object, q.Label)
}

// Quad returns the key as a cayley quad.
func (k FactKey) Quad() quad.Quad {
	return quad.Quad{Subject: k.Subject, Predicate: k.Predicate, Object: k.Object, Label: k.Context}
}

// SameTriple reports whether k and other agree on subject, predicate and object.
func (k FactKey) SameTriple(other FactKey) bool {
	return k.Subject == other.Subject && k.Predicate == other.Predicate && k.Object == other.Object
}

// String renders the key in N-Quads syntax without the trailing dot.
func (k FactKey) String() string {
	var b strings.Builder
	b.WriteString(FormatNode(k.Subject))
	b.WriteByte(' ')
	b.WriteString(FormatNode(k.Predicate))
	b.WriteByte(' ')
	b.WriteString(FormatNode(k.Object))
	if k.Context != nil {
		b.WriteByte(' ')
		b.WriteString(FormatNode(k.Context))
	}
	return b.String()
}

// Encoded returns the storage encodings of the four positions.
func (k FactKey) Encoded() [4]string {
	return [4]string{EncodeNode(k.Subject), EncodeNode(k.Predicate), EncodeNode(k.Object), EncodeNode(k.Context)}
}

func (k FactKey) encode() []any {
	e := k.Encoded()
	return []any{e[0], e[1], e[2], e[3]}
}

// CompareFactKeys orders keys by their encoded positions.
func CompareFactKeys(a, b FactKey) int {
	ea, eb := a.Encoded(), b.Encoded()
	for i := range ea {
		if c := strings.Compare(ea[i], eb[i]); c != 0 {
			return c
		}
	}
	return 0
}

// Fact is a stored statement together with its bookkeeping fields.
//
// Inferred is provenance only. Inferred facts match rule bodies exactly like
// base facts do.
type Fact struct {
	ID        string
	Subject   quad.Value
	Predicate quad.Value
	Object    quad.Value
	Context   quad.Value
	Creator   string
	CreatedAt time.Time
	DeletedAt *time.Time
	Inferred  bool
	Deleted   bool
}

// NewFact returns a base fact for the given key, without store fields.
func NewFact(k FactKey) Fact {
	return Fact{Subject: k.Subject, Predicate: k.Predicate, Object: k.Object, Context: k.Context}
}

// Key returns the fact's identity.
func (f Fact) Key() FactKey {
	return NewFactKey(f.Subject, f.Predicate, f.Object, f.Context)
}

// String renders the fact's quadruple.
func (f Fact) String() string {
	return f.Key().String()
}
