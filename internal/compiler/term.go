package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cayleygraph/quad"

	"github.com/roach88/lemma/internal/ir"
)

// Term syntax:
//
//	?name            variable
//	<http://x/y>     IRI
//	ex:local         prefixed IRI, expanded through the namespace table
//	_:b0             blank node
//	"text"           plain literal (Go string escapes)
//	"text"@en        language-tagged literal
//	"42"^^xsd:int    typed literal (datatype as <iri> or prefixed name)
//	42, -7           xsd:integer literal
//	true, false      xsd:boolean literal
//
// Absolute IRIs with a scheme ("http://...", "urn:...") are accepted without
// angle brackets when their prefix is not declared.

// ParseTerm parses one term into a pattern field.
func ParseTerm(s string, namespaces map[string]string) (ir.Field, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ir.Field{}, fmt.Errorf("empty term")
	}
	if strings.HasPrefix(s, "?") {
		name := s[1:]
		if !isVariableName(name) {
			return ir.Field{}, fmt.Errorf("invalid variable %q", s)
		}
		return ir.Variable(name), nil
	}
	node, err := ParseNode(s, namespaces)
	if err != nil {
		return ir.Field{}, err
	}
	return ir.BoundNode(node), nil
}

// ParseNode parses a ground term (no variables) into a node.
func ParseNode(s string, namespaces map[string]string) (quad.Value, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, fmt.Errorf("empty term")
	case strings.HasPrefix(s, "?"):
		return nil, fmt.Errorf("variable %q not allowed in a ground term", s)
	case strings.HasPrefix(s, "<"):
		if !strings.HasSuffix(s, ">") || len(s) < 3 {
			return nil, fmt.Errorf("unterminated IRI %q", s)
		}
		return quad.IRI(s[1 : len(s)-1]), nil
	case strings.HasPrefix(s, "_:"):
		if len(s) == 2 {
			return nil, fmt.Errorf("blank node %q has no label", s)
		}
		return quad.BNode(s[2:]), nil
	case strings.HasPrefix(s, `"`):
		return parseLiteral(s, namespaces)
	case s == "true" || s == "false":
		return ir.NormalizeNode(quad.Bool(s == "true")), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ir.NormalizeNode(quad.Int(n)), nil
	}
	return expandName(s, namespaces)
}

func parseLiteral(s string, namespaces map[string]string) (quad.Value, error) {
	end := closingQuote(s)
	if end < 0 {
		return nil, fmt.Errorf("unterminated literal %s", s)
	}
	text, err := strconv.Unquote(s[:end+1])
	if err != nil {
		return nil, fmt.Errorf("literal %s: %w", s[:end+1], err)
	}
	rest := s[end+1:]
	switch {
	case rest == "":
		return quad.String(text), nil
	case strings.HasPrefix(rest, "@"):
		if len(rest) == 1 {
			return nil, fmt.Errorf("literal %s: empty language tag", s)
		}
		return quad.LangString{Value: quad.String(text), Lang: rest[1:]}, nil
	case strings.HasPrefix(rest, "^^"):
		dt, err := ParseNode(rest[2:], namespaces)
		if err != nil {
			return nil, fmt.Errorf("literal %s: datatype: %w", s, err)
		}
		iri, ok := dt.(quad.IRI)
		if !ok {
			return nil, fmt.Errorf("literal %s: datatype must be an IRI", s)
		}
		return quad.TypedString{Value: quad.String(text), Type: iri}, nil
	default:
		return nil, fmt.Errorf("literal %s: unexpected suffix %q", s, rest)
	}
}

// closingQuote returns the index of the quote closing the literal starting at
// s[0], honoring backslash escapes.
func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

func expandName(s string, namespaces map[string]string) (quad.Value, error) {
	prefix, local, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("unrecognized term %q", s)
	}
	if uri, found := namespaces[prefix]; found {
		return quad.IRI(uri + local), nil
	}
	if isScheme(prefix) && (strings.HasPrefix(local, "//") || prefix == "urn") {
		return quad.IRI(s), nil
	}
	return nil, fmt.Errorf("unknown prefix %q in %q", prefix, s)
}

func isScheme(s string) bool {
	if s == "" || !unicode.IsLetter(rune(s[0])) {
		return false
	}
	for _, r := range s {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '-' || r == '.') {
			return false
		}
	}
	return true
}

func isVariableName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}

// ParsePattern builds a pattern from three or four terms.
func ParsePattern(terms []string, namespaces map[string]string) (ir.Pattern, error) {
	if len(terms) != 3 && len(terms) != 4 {
		return ir.Pattern{}, fmt.Errorf("pattern needs 3 or 4 terms, got %d", len(terms))
	}
	var fields [4]ir.Field
	for i, t := range terms {
		f, err := ParseTerm(t, namespaces)
		if err != nil {
			return ir.Pattern{}, err
		}
		fields[i] = f
	}
	return ir.Pattern{Subject: fields[0], Predicate: fields[1], Object: fields[2], Context: fields[3]}, nil
}

// ParseFact builds a fact key from three or four ground terms.
func ParseFact(terms []string, namespaces map[string]string) (ir.FactKey, error) {
	if len(terms) != 3 && len(terms) != 4 {
		return ir.FactKey{}, fmt.Errorf("fact needs 3 or 4 terms, got %d", len(terms))
	}
	var nodes [4]quad.Value
	for i, t := range terms {
		n, err := ParseNode(t, namespaces)
		if err != nil {
			return ir.FactKey{}, err
		}
		nodes[i] = n
	}
	return ir.NewFactKey(nodes[0], nodes[1], nodes[2], nodes[3]), nil
}

// ParseRule parses the textual form "(s p o), (s p o [c]) -> (s p o)".
// The rule ID is computed from name, head and body.
func ParseRule(name, text string, namespaces map[string]string) (ir.Rule, error) {
	bodyText, headText, ok := cutArrow(text)
	if !ok {
		return ir.Rule{}, fmt.Errorf("rule %q: missing \"->\"", name)
	}
	body, err := parsePatternList(bodyText, namespaces)
	if err != nil {
		return ir.Rule{}, fmt.Errorf("rule %q body: %w", name, err)
	}
	heads, err := parsePatternList(headText, namespaces)
	if err != nil {
		return ir.Rule{}, fmt.Errorf("rule %q head: %w", name, err)
	}
	if len(heads) != 1 {
		return ir.Rule{}, fmt.Errorf("rule %q: head must be exactly one pattern, got %d", name, len(heads))
	}
	return ir.NewRule(name, "", heads[0], body...), nil
}

// cutArrow splits text at the first "->" outside literals and <iri> terms.
func cutArrow(text string) (string, string, bool) {
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '"':
			end := closingQuote(text[i:])
			if end < 0 {
				return "", "", false
			}
			i += end
		case '<':
			if end := strings.IndexByte(text[i:], '>'); end > 0 {
				i += end
			}
		case '-':
			if i+1 < len(text) && text[i+1] == '>' {
				return text[:i], text[i+2:], true
			}
		}
	}
	return "", "", false
}

func parsePatternList(s string, namespaces map[string]string) ([]ir.Pattern, error) {
	tokens, err := tokenize(s)
	if err != nil {
		return nil, err
	}
	var (
		patterns []ir.Pattern
		current  []string
		open     bool
	)
	for _, tok := range tokens {
		switch tok {
		case "(":
			if open {
				return nil, fmt.Errorf("nested '('")
			}
			open = true
			current = current[:0]
		case ")":
			if !open {
				return nil, fmt.Errorf("unbalanced ')'")
			}
			p, err := ParsePattern(current, namespaces)
			if err != nil {
				return nil, err
			}
			patterns = append(patterns, p)
			open = false
		case ",":
			if open {
				return nil, fmt.Errorf("',' inside pattern")
			}
		default:
			if !open {
				return nil, fmt.Errorf("term %q outside pattern", tok)
			}
			current = append(current, tok)
		}
	}
	if open {
		return nil, fmt.Errorf("unterminated pattern")
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no patterns")
	}
	return patterns, nil
}

// tokenize splits rule text into "(", ")", "," and term tokens. Quoted
// literals and <iri> terms may contain any of those characters.
func tokenize(s string) ([]string, error) {
	var tokens []string
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case unicode.IsSpace(rune(c)):
			i++
		case c == '(' || c == ')' || c == ',':
			tokens = append(tokens, string(c))
			i++
		default:
			start := i
			for i < len(s) {
				c = s[i]
				if c == '"' {
					end := closingQuote(s[i:])
					if end < 0 {
						return nil, fmt.Errorf("unterminated literal at offset %d", i)
					}
					i += end + 1
					continue
				}
				if c == '<' {
					end := strings.IndexByte(s[i:], '>')
					if end < 0 {
						return nil, fmt.Errorf("unterminated IRI at offset %d", i)
					}
					i += end + 1
					continue
				}
				if unicode.IsSpace(rune(c)) || c == '(' || c == ')' || c == ',' {
					break
				}
				i++
			}
			tokens = append(tokens, s[start:i])
		}
	}
	return tokens, nil
}
