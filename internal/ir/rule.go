package ir

import "strings"

// Rule derives its head whenever every body pattern matches under one
// consistent set of bindings.
//
// Rules are safe when every head variable occurs in the body. Safety is
// checked when a rule enters a program, never while matching.
type Rule struct {
	ID          string
	Name        string
	Description string
	Head        Pattern
	Body        []Pattern
}

// NewRule builds a rule and computes its ID.
func NewRule(name, description string, head Pattern, body ...Pattern) Rule {
	r := Rule{
		Name:        name,
		Description: description,
		Head:        head,
		Body:        append([]Pattern(nil), body...),
	}
	r.ID = MustRuleID(r.Name, r.Head, r.Body)
	return r
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	r.Body = append([]Pattern(nil), r.Body...)
	return r
}

// UnboundHeadVariables returns head variables that no body pattern binds.
func (r Rule) UnboundHeadVariables() []string {
	bound := make(map[string]bool)
	for _, p := range r.Body {
		for _, name := range p.Variables() {
			bound[name] = true
		}
	}
	var unbound []string
	for _, name := range r.Head.Variables() {
		if !bound[name] {
			unbound = append(unbound, name)
		}
	}
	return unbound
}

// IsSafe reports whether every head variable is bound by the body.
func (r Rule) IsSafe() bool {
	return len(r.UnboundHeadVariables()) == 0
}

// String renders the rule as "name: body -> head".
func (r Rule) String() string {
	var b strings.Builder
	if r.Name != "" {
		b.WriteString(r.Name)
		b.WriteString(": ")
	}
	for i, p := range r.Body {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(" -> ")
	b.WriteString(r.Head.String())
	return b.String()
}
