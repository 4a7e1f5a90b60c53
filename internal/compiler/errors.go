package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError reports a problem in program source, with the CUE position
// when one is known.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UnsafeRuleError is returned for a rule whose head uses variables that no
// body pattern binds.
type UnsafeRuleError struct {
	Rule      string
	Variables []string
}

func (e *UnsafeRuleError) Error() string {
	vars := make([]string, len(e.Variables))
	for i, v := range e.Variables {
		vars[i] = "?" + v
	}
	return fmt.Sprintf("rule %q is unsafe: head variable(s) %s not bound in body",
		e.Rule, strings.Join(vars, ", "))
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
