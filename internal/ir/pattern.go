package ir

import (
	"fmt"
	"strings"
)

// Pattern is a triple template matched against facts.
//
// Context may be unset, in which case the pattern matches facts in every
// graph (and a rule head without context writes to the configured inferred
// context).
type Pattern struct {
	Subject   Field
	Predicate Field
	Object    Field
	Context   Field
}

// NewPattern builds a pattern without context.
func NewPattern(subject, predicate, object Field) Pattern {
	return Pattern{Subject: subject, Predicate: predicate, Object: object}
}

// WithContext returns a copy of the pattern with the given context field.
func (p Pattern) WithContext(ctx Field) Pattern {
	p.Context = ctx
	return p
}

// Fields returns the four positions in subject, predicate, object, context
// order.
func (p Pattern) Fields() [4]Field {
	return [4]Field{p.Subject, p.Predicate, p.Object, p.Context}
}

// IsEmpty reports whether all four positions are unset.
func (p Pattern) IsEmpty() bool {
	return p.Subject.IsZero() && p.Predicate.IsZero() && p.Object.IsZero() && p.Context.IsZero()
}

// Equal reports whether two patterns are structurally equal.
//
// A pattern with every position unset is only equal to itself: two distinct
// empty pattern instances never compare equal.
func (p *Pattern) Equal(other *Pattern) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.IsEmpty() || other.IsEmpty() {
		return p == other
	}
	return *p == *other
}

// Variables returns the distinct variable names of the pattern in order of
// first appearance.
func (p Pattern) Variables() []string {
	var names []string
	seen := make(map[string]bool, 4)
	for _, f := range p.Fields() {
		if f.IsVariable() && !seen[f.name] {
			seen[f.name] = true
			names = append(names, f.name)
		}
	}
	return names
}

// String renders the pattern in rule syntax, e.g. "(?a ex:p ?b)".
func (p Pattern) String() string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(p.Subject.String())
	b.WriteByte(' ')
	b.WriteString(p.Predicate.String())
	b.WriteByte(' ')
	b.WriteString(p.Object.String())
	if !p.Context.IsZero() {
		b.WriteByte(' ')
		b.WriteString(p.Context.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Encoded returns the storage form of the four positions.
func (p Pattern) Encoded() [4]string {
	return [4]string{p.Subject.encode(), p.Predicate.encode(), p.Object.encode(), p.Context.encode()}
}

// DecodePattern parses the output of Pattern.Encoded.
func DecodePattern(enc [4]string) (Pattern, error) {
	var fields [4]Field
	for i, s := range enc {
		f, err := DecodeField(s)
		if err != nil {
			return Pattern{}, fmt.Errorf("position %d: %w", i, err)
		}
		fields[i] = f
	}
	return Pattern{Subject: fields[0], Predicate: fields[1], Object: fields[2], Context: fields[3]}, nil
}

func (p Pattern) encode() []any {
	fields := p.Fields()
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = f.encode()
	}
	return out
}
