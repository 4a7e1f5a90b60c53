package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// RerunOptions holds flags for the rerun command.
type RerunOptions struct {
	*RootOptions
	Program ProgramOptions
}

// NewRerunCommand creates the rerun command.
func NewRerunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RerunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rerun",
		Short: "Re-materialize the closure from the base facts",
		Long: `Drop every inferred fact and justification and re-derive the closure
of the current program from the base facts.

The result is the same closure incremental reasoning maintains, so rerun
is a repair and verification tool rather than a routine step.

Examples:
  lemma rerun --db ./lemma.db
  lemma rerun --db ./lemma.db --program rules.cue --name family`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRerun(opts, cmd)
		},
	}
	addProgramFlags(cmd, &opts.Program)
	return cmd
}

func runRerun(opts *RerunOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openSession(ctx, opts.RootOptions, opts.Program, nil)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer s.Close()

	program := s.reasoner.Program()
	formatter.VerboseLog("Re-running program %s (%d rules)", program.Name, len(program.Rules))

	d, err := s.reasoner.ReRunPrograms(ctx)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "rerun failed", err)
	}

	summary := NewDeltaSummary(d)
	if formatter.Format == "json" {
		return formatter.Success(map[string]any{
			"program": program.Name,
			"delta":   summary,
		})
	}
	fmt.Fprintf(formatter.Writer, "✓ Re-materialized program %s\n", program.Name)
	writeDelta(formatter.Writer, summary)
	return nil
}
