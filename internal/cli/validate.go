package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lemma/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                        `json:"valid"`
	Programs []string                    `json:"programs,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.RecursionWarning `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <program-path>",
		Short: "Validate rule programs without writing IR",
		Long: `Validate CUE rule programs.

Checks CUE syntax, term syntax, namespace prefixes, duplicate rule names,
empty bodies and rule safety (every head variable bound in the body).
Recursive rule groups are reported as warnings and do not fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, errs := ValidatePrograms(path)
	if result == nil {
		var loadErr *LoadError
		if errors.As(errs, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, errs.Error(), nil)
	}

	for _, name := range result.Programs {
		formatter.VerboseLog("Validated program: %s", name)
	}
	for _, w := range result.Warnings {
		formatter.VerboseLog("[%s] %s", w.Level, w.Message)
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// ValidatePrograms validates every program at path. A nil result with an
// error means the path itself could not be loaded.
func ValidatePrograms(path string) (*ValidationResult, error) {
	loadResult, loadErrors := LoadPrograms(path, LoadModeCollectAll)
	if loadResult == nil {
		return nil, loadErrors[0]
	}

	result := &ValidationResult{Valid: len(loadErrors) == 0}
	for _, err := range loadErrors {
		code, message := parseCompileError(err)
		result.Errors = append(result.Errors, compiler.ValidationError{
			Field:   "program",
			Message: message,
			Code:    code,
		})
	}
	for _, p := range loadResult.Programs {
		result.Programs = append(result.Programs, p.Name)
		result.Warnings = append(result.Warnings, compiler.AnalyzeRecursion(p)...)
	}
	return result, nil
}

func outputValidateSuccess(formatter *OutputFormatter, result *ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All programs valid (%d)\n", len(result.Programs))
	if n := len(result.Warnings); n > 0 {
		fmt.Fprintf(formatter.Writer, "  %d recursion warning(s)\n", n)
	}
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result *ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
