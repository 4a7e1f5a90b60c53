package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/lemma/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrProgramNameEmpty  = "E101" // program name is required
	ErrRuleNameEmpty     = "E102" // every rule needs a name
	ErrDuplicateRule     = "E103" // rule names are unique within a program
	ErrRuleNoBody        = "E104" // body must have at least one pattern
	ErrUnsafeRule        = "E105" // head variable not bound in body
	ErrIncompletePattern = "E106" // subject, predicate and object must be set
	ErrLiteralPosition   = "E107" // literal in subject or predicate position
	ErrInvalidNamespace  = "E108" // empty namespace prefix or URI
)

// ValidationError represents a program validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled program and returns every problem found.
func Validate(p *ir.Program) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "program name is required",
			Code:    ErrProgramNameEmpty,
		})
	}

	for prefix, uri := range p.Namespaces {
		if prefix == "" || uri == "" {
			errs = append(errs, ValidationError{
				Field:   "namespaces." + prefix,
				Message: "namespace prefix and URI must be non-empty",
				Code:    ErrInvalidNamespace,
			})
		}
	}

	seen := make(map[string]bool, len(p.Rules))
	for i, r := range p.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if r.Name == "" {
			errs = append(errs, ValidationError{Field: field, Message: "rule name is required", Code: ErrRuleNameEmpty})
		} else {
			field = "rules." + r.Name
			if seen[r.Name] {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("duplicate rule name %q", r.Name),
					Code:    ErrDuplicateRule,
				})
			}
			seen[r.Name] = true
		}
		errs = append(errs, validateRule(field, r)...)
	}

	return errs
}

func validateRule(field string, r ir.Rule) []ValidationError {
	var errs []ValidationError

	if len(r.Body) == 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".body",
			Message: "body must contain at least one pattern",
			Code:    ErrRuleNoBody,
		})
	}

	if err := CheckRule(r); err != nil {
		errs = append(errs, ValidationError{
			Field:   field + ".head",
			Message: err.Error(),
			Code:    ErrUnsafeRule,
		})
	}

	errs = append(errs, validatePattern(field+".head", r.Head)...)
	for i, p := range r.Body {
		errs = append(errs, validatePattern(fmt.Sprintf("%s.body[%d]", field, i), p)...)
	}
	return errs
}

func validatePattern(field string, p ir.Pattern) []ValidationError {
	var errs []ValidationError
	if p.Subject.IsZero() || p.Predicate.IsZero() || p.Object.IsZero() {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "subject, predicate and object must be set",
			Code:    ErrIncompletePattern,
		})
	}
	if p.Subject.Kind() == ir.FieldLiteral || p.Predicate.Kind() == ir.FieldLiteral {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "literals are only allowed in object position",
			Code:    ErrLiteralPosition,
		})
	}
	if p.Context.Kind() == ir.FieldLiteral {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "context must be a resource or variable",
			Code:    ErrLiteralPosition,
		})
	}
	return errs
}

// CheckRule returns an *UnsafeRuleError if a head variable is not bound by
// the body.
func CheckRule(r ir.Rule) error {
	if unbound := r.UnboundHeadVariables(); len(unbound) > 0 {
		return &UnsafeRuleError{Rule: r.Name, Variables: unbound}
	}
	return nil
}
