package ir

import "maps"

// Program is a named rule set with its namespace table.
//
// A *Program is treated as an immutable snapshot once published: WithRule and
// WithoutRules return new programs and never modify the receiver.
type Program struct {
	ID          string
	Name        string
	Description string
	Namespaces  map[string]string
	Rules       []Rule
}

// NewProgram builds a program from value copies of rules and computes its ID.
func NewProgram(name, description string, namespaces map[string]string, rules ...Rule) *Program {
	p := &Program{
		Name:        name,
		Description: description,
		Namespaces:  maps.Clone(namespaces),
		Rules:       make([]Rule, len(rules)),
	}
	if p.Namespaces == nil {
		p.Namespaces = map[string]string{}
	}
	for i, r := range rules {
		p.Rules[i] = r.Clone()
	}
	p.refreshID()
	return p
}

func (p *Program) refreshID() {
	ids := make([]string, len(p.Rules))
	for i, r := range p.Rules {
		ids[i] = r.ID
	}
	id, err := ProgramID(p.Name, p.Namespaces, ids)
	if err != nil {
		panic(err)
	}
	p.ID = id
}

// Clone returns a deep copy.
func (p *Program) Clone() *Program {
	if p == nil {
		return nil
	}
	c := &Program{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Namespaces:  maps.Clone(p.Namespaces),
		Rules:       make([]Rule, len(p.Rules)),
	}
	for i, r := range p.Rules {
		c.Rules[i] = r.Clone()
	}
	return c
}

// Rule returns the rule with the given name.
func (p *Program) Rule(name string) (Rule, bool) {
	for _, r := range p.Rules {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}

// RuleNames returns rule names in program order.
func (p *Program) RuleNames() []string {
	names := make([]string, len(p.Rules))
	for i, r := range p.Rules {
		names[i] = r.Name
	}
	return names
}

// WithRule returns a copy of p with r appended, or replacing the rule with the
// same name in place.
func (p *Program) WithRule(r Rule) *Program {
	c := p.Clone()
	for i := range c.Rules {
		if c.Rules[i].Name == r.Name {
			c.Rules[i] = r.Clone()
			c.refreshID()
			return c
		}
	}
	c.Rules = append(c.Rules, r.Clone())
	c.refreshID()
	return c
}

// WithoutRules returns a copy of p without the named rules. Unknown names are
// ignored.
func (p *Program) WithoutRules(names ...string) *Program {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	c := p.Clone()
	kept := c.Rules[:0]
	for _, r := range c.Rules {
		if !drop[r.Name] {
			kept = append(kept, r)
		}
	}
	c.Rules = kept
	c.refreshID()
	return c
}
