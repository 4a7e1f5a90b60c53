package ir

import (
	"fmt"
	"strings"

	"github.com/cayleygraph/quad"
)

// Node encoding tags. The encoded form is what the store persists and what
// content hashes are computed over, so the tags must never change.
const (
	tagIRI     = "I:"
	tagBNode   = "B:"
	tagString  = "S:"
	tagTyped   = "T:"
	tagLangStr = "L:"
)

// NormalizeNode converts native typed values (quad.Int, quad.Float,
// quad.Bool, quad.Time) into their quad.TypedString form.
//
// Two nodes that print the same in N-Quads compare equal after normalization.
// nil is returned unchanged.
func NormalizeNode(v quad.Value) quad.Value {
	switch v.(type) {
	case nil, quad.IRI, quad.BNode, quad.String, quad.TypedString, quad.LangString:
		return v
	}
	if ts, ok := v.(quad.TypedStringer); ok {
		return ts.TypedString()
	}
	return v
}

// EncodeNode returns the storage encoding of a node.
// The empty string encodes nil (the default graph when used as a context).
func EncodeNode(v quad.Value) string {
	switch n := NormalizeNode(v).(type) {
	case nil:
		return ""
	case quad.IRI:
		return tagIRI + string(n)
	case quad.BNode:
		return tagBNode + string(n)
	case quad.String:
		return tagString + string(n)
	case quad.TypedString:
		return tagTyped + string(n.Type) + " " + string(n.Value)
	case quad.LangString:
		return tagLangStr + n.Lang + " " + string(n.Value)
	default:
		// Unknown value kinds are stored as plain strings of their N-Quads form.
		return tagString + n.String()
	}
}

// DecodeNode parses the storage encoding produced by EncodeNode.
func DecodeNode(s string) (quad.Value, error) {
	if s == "" {
		return nil, nil
	}
	if len(s) < 2 {
		return nil, fmt.Errorf("decode node %q: too short", s)
	}
	body := s[2:]
	switch s[:2] {
	case tagIRI:
		return quad.IRI(body), nil
	case tagBNode:
		return quad.BNode(body), nil
	case tagString:
		return quad.String(body), nil
	case tagTyped:
		dt, val, ok := strings.Cut(body, " ")
		if !ok {
			return nil, fmt.Errorf("decode node %q: typed literal missing datatype separator", s)
		}
		return quad.TypedString{Value: quad.String(val), Type: quad.IRI(dt)}, nil
	case tagLangStr:
		lang, val, ok := strings.Cut(body, " ")
		if !ok {
			return nil, fmt.Errorf("decode node %q: language literal missing tag separator", s)
		}
		return quad.LangString{Value: quad.String(val), Lang: lang}, nil
	default:
		return nil, fmt.Errorf("decode node %q: unknown tag", s)
	}
}

// FormatNode renders a node for humans (N-Quads syntax). nil renders as "_".
func FormatNode(v quad.Value) string {
	if v == nil {
		return "_"
	}
	return v.String()
}

// IsResourceNode reports whether v is an IRI or a blank node.
func IsResourceNode(v quad.Value) bool {
	switch v.(type) {
	case quad.IRI, quad.BNode:
		return true
	}
	return false
}

// CompareNodes orders nodes by their storage encoding.
func CompareNodes(a, b quad.Value) int {
	return strings.Compare(EncodeNode(a), EncodeNode(b))
}
