package ir

import (
	"strings"

	"github.com/cayleygraph/quad"
)

// FieldKind distinguishes the variants of a Field.
type FieldKind uint8

const (
	// FieldUnset is the zero value: the position carries no constraint.
	FieldUnset FieldKind = iota
	// FieldResource is a bound IRI or blank node.
	FieldResource
	// FieldLiteral is a bound literal.
	FieldLiteral
	// FieldVariable is an unbound, named variable.
	FieldVariable
)

// String returns the kind name.
func (k FieldKind) String() string {
	switch k {
	case FieldResource:
		return "resource"
	case FieldLiteral:
		return "literal"
	case FieldVariable:
		return "variable"
	default:
		return "unset"
	}
}

// Field is one position of a Pattern.
//
// Field is an immutable tagged variant. Two fields are equal (==) when they
// have the same kind and the same payload, so Field is usable as a map key.
type Field struct {
	kind FieldKind
	node quad.Value
	name string
}

// Resource returns a bound resource field. v should be a quad.IRI or
// quad.BNode.
func Resource(v quad.Value) Field {
	return Field{kind: FieldResource, node: NormalizeNode(v)}
}

// IRI is shorthand for Resource(quad.IRI(iri)).
func IRI(iri string) Field {
	return Resource(quad.IRI(iri))
}

// Literal returns a bound literal field.
func Literal(v quad.Value) Field {
	return Field{kind: FieldLiteral, node: NormalizeNode(v)}
}

// Variable returns an unbound variable field. The name is stored without the
// leading '?'.
func Variable(name string) Field {
	return Field{kind: FieldVariable, name: name}
}

// BoundNode returns a resource or literal field for v, choosing the variant
// from the node kind.
func BoundNode(v quad.Value) Field {
	if IsResourceNode(v) {
		return Resource(v)
	}
	return Literal(v)
}

// Kind returns the variant of the field.
func (f Field) Kind() FieldKind { return f.kind }

// IsZero reports whether the field is unset.
func (f Field) IsZero() bool { return f.kind == FieldUnset }

// IsVariable reports whether the field is a variable.
func (f Field) IsVariable() bool { return f.kind == FieldVariable }

// IsBound reports whether the field carries a concrete node.
func (f Field) IsBound() bool {
	return f.kind == FieldResource || f.kind == FieldLiteral
}

// Node returns the bound node, or nil for variables and unset fields.
func (f Field) Node() quad.Value { return f.node }

// Name returns the variable name, or "" for non-variables.
func (f Field) Name() string { return f.name }

// String renders the field in rule syntax.
func (f Field) String() string {
	switch f.kind {
	case FieldVariable:
		return "?" + f.name
	case FieldResource, FieldLiteral:
		return FormatNode(f.node)
	default:
		return "_"
	}
}

// Encoded returns the storage form of the field: "" when unset, "?name" for
// variables, and the node encoding otherwise.
func (f Field) Encoded() string { return f.encode() }

// DecodeField parses the output of Field.Encoded.
func DecodeField(s string) (Field, error) {
	switch {
	case s == "":
		return Field{}, nil
	case strings.HasPrefix(s, "?"):
		return Variable(s[1:]), nil
	}
	n, err := DecodeNode(s)
	if err != nil {
		return Field{}, err
	}
	return BoundNode(n), nil
}

func (f Field) encode() string {
	switch f.kind {
	case FieldVariable:
		return "?" + f.name
	case FieldResource, FieldLiteral:
		return EncodeNode(f.node)
	default:
		return ""
	}
}
