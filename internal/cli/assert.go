package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lemma/internal/engine"
	"github.com/roach88/lemma/internal/ir"
)

// FactsOptions holds flags for the assert and retract commands.
type FactsOptions struct {
	*RootOptions
	Program ProgramOptions
}

// TransactionResult is the outcome of one committed transaction.
type TransactionResult struct {
	Seq     int64        `json:"seq"`
	Added   int          `json:"added"`
	Removed int          `json:"removed"`
	Delta   DeltaSummary `json:"delta"`
}

// NewAssertCommand creates the assert command.
func NewAssertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FactsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "assert [nquads-file...]",
		Short: "Add base facts and reason over them",
		Long: `Add base facts from N-Quads files (or stdin) in one transaction and
wait for the reasoner to materialize their consequences.

The rule program is the one stored in the database, or the program in
--program, which replaces the stored one when it differs.

Examples:
  lemma assert --db ./lemma.db --program rules.cue facts.nq
  cat facts.nq | lemma assert --db ./lemma.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFacts(opts, cmd, args, false)
		},
	}
	addProgramFlags(cmd, &opts.Program)
	return cmd
}

// NewRetractCommand creates the retract command.
func NewRetractCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FactsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "retract [nquads-file...]",
		Short: "Remove base facts and retract what no longer holds",
		Long: `Remove base facts read from N-Quads files (or stdin) in one transaction.

Inferred facts that lose every well-founded justification are retracted.
A removed base fact that rules still derive comes back as an inferred fact.

Examples:
  lemma retract --db ./lemma.db facts.nq`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFacts(opts, cmd, args, true)
		},
	}
	addProgramFlags(cmd, &opts.Program)
	return cmd
}

func addProgramFlags(cmd *cobra.Command, po *ProgramOptions) {
	cmd.Flags().StringVar(&po.Path, "program", "", "CUE rule program (default: the stored program)")
	cmd.Flags().StringVar(&po.Name, "name", "", "program name when several are defined or stored")
}

func runFacts(opts *FactsOptions, cmd *cobra.Command, args []string, remove bool) error {
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

	keys, err := readFactFiles(args, cmd.InOrStdin())
	if err != nil {
		_ = formatter.Error(ErrCodeBadFact, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read facts", err)
	}
	formatter.VerboseLog("Read %d fact(s)", len(keys))

	s, err := openSession(ctx, opts.RootOptions, opts.Program, nil)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer s.Close()

	var added, removed []ir.FactKey
	if remove {
		removed = keys
	} else {
		added = keys
	}
	data, d, err := s.commit(ctx, added, removed)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		if engine.IsRoundsExceededError(err) || engine.IsUnsafeRuleError(err) {
			return WrapExitError(ExitFailure, "reasoning failed", err)
		}
		return WrapExitError(ExitCommandError, "transaction failed", err)
	}

	result := TransactionResult{
		Seq:     data.Seq,
		Added:   len(data.Added),
		Removed: len(data.Removed),
		Delta:   NewDeltaSummary(d),
	}
	return outputTransaction(formatter, result)
}

func outputTransaction(formatter *OutputFormatter, result TransactionResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Transaction %d: %d added, %d removed\n",
		result.Seq, result.Added, result.Removed)
	writeDelta(formatter.Writer, result.Delta)
	return nil
}
