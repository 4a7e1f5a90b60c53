package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/lemma/internal/ir"
)

// CompileProgram parses a CUE value into a Program.
//
// The value is the program struct itself:
//
//	program: family: {
//		description: "kinship rules"
//		namespaces: ex: "http://example.org/"
//		rules: {
//			symmetric: {
//				body: [["?a", "ex:spouse", "?b"]]
//				head: ["?b", "ex:spouse", "?a"]
//			}
//			grandparent: "(?a ex:parent ?b), (?b ex:parent ?c) -> (?a ex:grandparent ?c)"
//		}
//	}
//
// A rule is either a struct with body and head term lists or a string in
// rule text syntax. Rules keep their declaration order. The program name is
// the struct label unless a name field overrides it.
func CompileProgram(v cue.Value) (*ir.Program, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	name := ""
	if sels := v.Path().Selectors(); len(sels) > 0 {
		name = strings.Trim(sels[len(sels)-1].String(), `"`)
	}
	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		s, err := nameVal.String()
		if err != nil {
			return nil, &CompileError{Field: "name", Message: "name must be a string", Pos: nameVal.Pos()}
		}
		name = s
	}
	if name == "" {
		return nil, &CompileError{Field: "name", Message: "program name is required", Pos: v.Pos()}
	}

	description, err := optionalString(v, "description")
	if err != nil {
		return nil, err
	}

	namespaces, err := parseNamespaces(v)
	if err != nil {
		return nil, err
	}

	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil, &CompileError{Field: "rules", Message: "rules are required", Pos: v.Pos()}
	}
	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rules []ir.Rule
	for iter.Next() {
		rule, err := compileRule(strings.Trim(iter.Label(), `"`), iter.Value(), namespaces)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return ir.NewProgram(name, description, namespaces, rules...), nil
}

func parseNamespaces(v cue.Value) (map[string]string, error) {
	namespaces := make(map[string]string)
	nsVal := v.LookupPath(cue.ParsePath("namespaces"))
	if !nsVal.Exists() {
		return namespaces, nil
	}
	iter, err := nsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		prefix := strings.Trim(iter.Label(), `"`)
		uri, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   "namespaces." + prefix,
				Message: "namespace URI must be a string",
				Pos:     iter.Value().Pos(),
			}
		}
		namespaces[prefix] = uri
	}
	return namespaces, nil
}

func compileRule(name string, v cue.Value, namespaces map[string]string) (ir.Rule, error) {
	field := "rules." + name

	if v.Kind() == cue.StringKind {
		text, err := v.String()
		if err != nil {
			return ir.Rule{}, formatCUEError(err)
		}
		rule, err := ParseRule(name, text, namespaces)
		if err != nil {
			return ir.Rule{}, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		return rule, nil
	}

	description, err := optionalString(v, "description")
	if err != nil {
		return ir.Rule{}, err
	}

	headVal := v.LookupPath(cue.ParsePath("head"))
	if !headVal.Exists() {
		return ir.Rule{}, &CompileError{Field: field + ".head", Message: "head is required", Pos: v.Pos()}
	}
	head, err := compilePattern(field+".head", headVal, namespaces)
	if err != nil {
		return ir.Rule{}, err
	}

	bodyVal := v.LookupPath(cue.ParsePath("body"))
	if !bodyVal.Exists() {
		return ir.Rule{}, &CompileError{Field: field + ".body", Message: "body is required", Pos: v.Pos()}
	}
	list, err := bodyVal.List()
	if err != nil {
		return ir.Rule{}, &CompileError{Field: field + ".body", Message: "body must be a list of patterns", Pos: bodyVal.Pos()}
	}
	var body []ir.Pattern
	for i := 0; list.Next(); i++ {
		p, err := compilePattern(fmt.Sprintf("%s.body[%d]", field, i), list.Value(), namespaces)
		if err != nil {
			return ir.Rule{}, err
		}
		body = append(body, p)
	}

	return ir.NewRule(name, description, head, body...), nil
}

func compilePattern(field string, v cue.Value, namespaces map[string]string) (ir.Pattern, error) {
	list, err := v.List()
	if err != nil {
		return ir.Pattern{}, &CompileError{Field: field, Message: "pattern must be a list of 3 or 4 terms", Pos: v.Pos()}
	}
	var terms []string
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			return ir.Pattern{}, &CompileError{Field: field, Message: "terms must be strings", Pos: list.Value().Pos()}
		}
		terms = append(terms, s)
	}
	p, err := ParsePattern(terms, namespaces)
	if err != nil {
		return ir.Pattern{}, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return p, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", &CompileError{Field: path, Message: path + " must be a string", Pos: f.Pos()}
	}
	return s, nil
}
