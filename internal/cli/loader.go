package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/lemma/internal/compiler"
	"github.com/roach88/lemma/internal/ir"
)

// LoadMode controls how errors are handled during program loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the programs compiled from a CUE file or directory.
type LoadResult struct {
	Programs  []*ir.Program
	CUEValue  cue.Value
	FileCount int
}

// Program returns the program called name, or the only one when name is
// empty.
func (r *LoadResult) Program(name string) (*ir.Program, error) {
	if name == "" {
		if len(r.Programs) != 1 {
			return nil, &LoadError{
				Code:    ErrCodeAmbiguous,
				Message: fmt.Sprintf("expected exactly one program, found %d; pass --name", len(r.Programs)),
			}
		}
		return r.Programs[0], nil
	}
	for _, p := range r.Programs {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("program %q not found", name)}
}

// LoadError represents an error that occurred during program loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadPrograms compiles every program under the top-level program struct of
// a CUE file or package directory, then runs compiler.Validate on each.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadPrograms(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("program path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing program path: %v", err)}}
	}

	fileCount := 1
	if info.IsDir() {
		cueFiles, err := FindCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(cueFiles) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
		}
		fileCount = len(cueFiles)
	}

	value, err := compiler.LoadValue(path)
	if err != nil {
		return nil, []error{convertCompileError(err, ErrCodeBuildFailed)}
	}

	result := &LoadResult{CUEValue: value, FileCount: fileCount}

	programsVal := value.LookupPath(cue.ParsePath("program"))
	if !programsVal.Exists() {
		return result, []error{&LoadError{Code: ErrCodeNoPrograms, Message: "no programs defined"}}
	}
	iter, err := programsVal.Fields()
	if err != nil {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating programs: %v", err)}}
	}

	var errs []error
	for iter.Next() {
		p, err := compiler.CompileProgram(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(err, ErrCodeGeneric))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		if verrs := compiler.Validate(p); len(verrs) > 0 {
			for _, ve := range verrs {
				errs = append(errs, &LoadError{
					Code:    ve.Code,
					Message: fmt.Sprintf("program.%s.%s: %s", p.Name, ve.Field, ve.Message),
				})
			}
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Programs = append(result.Programs, p)
	}

	if len(result.Programs) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoPrograms, Message: "no programs defined"})
	}
	return result, errs
}

// LoadProgram loads path and selects one program. A LoadError is returned
// for the first problem.
func LoadProgram(path, name string) (*ir.Program, error) {
	result, errs := LoadPrograms(path, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return result.Program(name)
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position
// info. fallback is used for errors that carry no field.
func convertCompileError(err error, fallback string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		code := MapFieldToErrorCode(compileErr.Field)
		if code == ErrCodeGeneric {
			code = fallback
		}
		return &LoadError{
			Code:    code,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: fallback, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeNoPrograms  = "E004" // No program struct in the CUE value
	ErrCodeNotFound    = "E005" // Path or program not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeAmbiguous   = "E008" // Several programs and no --name
	ErrCodeStore       = "E009" // Database error
	ErrCodeBadFact     = "E010" // Unparseable fact input

	// Program errors share the compiler's validation codes.
	ErrCodeInvalidRule = "E109" // Rule text or pattern does not parse
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "name":
		return compiler.ErrProgramNameEmpty
	case field == "rules":
		return compiler.ErrRuleNoBody
	case strings.HasPrefix(field, "namespaces."):
		return compiler.ErrInvalidNamespace
	case strings.HasSuffix(field, ".head"), strings.Contains(field, ".body"):
		return compiler.ErrIncompletePattern
	case strings.HasPrefix(field, "rules."):
		return ErrCodeInvalidRule
	case field == "program":
		return ErrCodeNoPrograms
	default:
		return ErrCodeGeneric
	}
}
