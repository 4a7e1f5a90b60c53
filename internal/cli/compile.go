package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lemma/internal/compiler"
	"github.com/roach88/lemma/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled programs.
type CompilationResult struct {
	Programs []ProgramIR                  `json:"programs"`
	Warnings []compiler.RecursionWarning `json:"warnings,omitempty"`
}

// ProgramIR is the serialized form of a compiled program. Patterns are
// rendered in rule text syntax with full IRIs.
type ProgramIR struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Namespaces  map[string]string `json:"namespaces"`
	Rules       []RuleIR          `json:"rules"`
}

// RuleIR is the serialized form of a rule.
type RuleIR struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Body        []string `json:"body"`
	Head        string   `json:"head"`
}

// NewProgramIR converts a compiled program.
func NewProgramIR(p *ir.Program) ProgramIR {
	out := ProgramIR{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Namespaces:  p.Namespaces,
		Rules:       make([]RuleIR, len(p.Rules)),
	}
	for i, r := range p.Rules {
		body := make([]string, len(r.Body))
		for j, b := range r.Body {
			body[j] = b.String()
		}
		out.Rules[i] = RuleIR{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Body:        body,
			Head:        r.Head.String(),
		}
	}
	return out
}

// canonicalMap converts the program for ir.MarshalCanonical.
func (p ProgramIR) canonicalMap() map[string]any {
	ns := make(map[string]any, len(p.Namespaces))
	for k, v := range p.Namespaces {
		ns[k] = v
	}
	rules := make([]any, len(p.Rules))
	for i, r := range p.Rules {
		rules[i] = map[string]any{
			"id":          r.ID,
			"name":        r.Name,
			"description": r.Description,
			"body":        r.Body,
			"head":        r.Head,
		}
	}
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"namespaces":  ns,
		"rules":       rules,
	}
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	ProgramCount int
	RuleCount    int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <program-path>",
		Short: "Compile CUE rule programs to canonical IR",
		Long: `Compile CUE rule programs to canonical IR.

The path is a .cue file or a directory holding one CUE package. Every
entry under the top-level "program" struct is compiled, validated and
checked for recursive rule groups. With --output the programs are written
as canonical JSON.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadPrograms(path, LoadModeCollectAll)

	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)
	for _, p := range loadResult.Programs {
		formatter.VerboseLog("Compiled program: %s (%d rules)", p.Name, len(p.Rules))
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompilationResult{Programs: make([]ProgramIR, len(loadResult.Programs))}
	var stats CompilationStats
	for i, p := range loadResult.Programs {
		result.Programs[i] = NewProgramIR(p)
		result.Warnings = append(result.Warnings, compiler.AnalyzeRecursion(p)...)
		stats.ProgramCount++
		stats.RuleCount += len(p.Rules)
	}

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, stats, opts.Output)
}

func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d program(s), %d rule(s)\n\n",
		stats.ProgramCount, stats.RuleCount)

	for _, p := range result.Programs {
		fmt.Fprintf(formatter.Writer, "Program %s:\n", p.Name)
		for _, r := range p.Rules {
			fmt.Fprintf(formatter.Writer, "  %s: %d body pattern(s) -> %s\n", r.Name, len(r.Body), r.Head)
		}
		fmt.Fprintln(formatter.Writer)
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintln(formatter.Writer, "Recursion:")
		for _, w := range result.Warnings {
			fmt.Fprintf(formatter.Writer, "  [%s] %s\n", w.Level, w.Message)
		}
		fmt.Fprintln(formatter.Writer)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote canonical IR to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return MapFieldToErrorCode(compileErr.Field), compileErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeIRToFile writes the programs to a file as canonical JSON, one array.
func writeIRToFile(result *CompilationResult, filename string) error {
	programs := make([]any, len(result.Programs))
	for i, p := range result.Programs {
		programs[i] = p.canonicalMap()
	}
	data, err := ir.MarshalCanonical(programs)
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
