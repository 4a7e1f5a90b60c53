package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lemma/internal/compiler"
	"github.com/roach88/lemma/internal/engine"
	"github.com/roach88/lemma/internal/ir"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Program ProgramOptions
}

// ExplainResult lists the base support sets of one fact.
type ExplainResult struct {
	Fact     string       `json:"fact"`
	Inferred bool         `json:"inferred"`
	Supports []SupportSet `json:"supports"`
	Stats    ExplainStats `json:"stats"`
}

// SupportSet is one resolved justification: base facts and the rules that
// chained them into the explained fact.
type SupportSet struct {
	Facts []string `json:"facts"`
	Rules []string `json:"rules"`
}

// ExplainStats holds summary statistics for an explanation.
type ExplainStats struct {
	SupportSets int `json:"support_sets"`
	BaseFacts   int `json:"base_facts"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <subject> <predicate> <object> [context]",
		Short: "Show why a fact holds",
		Long: `Resolve the justifications of a live fact down to base facts.

Each support set is a set of base facts that together derive the fact,
with the rules used along the way. Terms use rule syntax: <iri>,
prefix:local with the program's namespaces, "literal" or _:blank.
Without a context the fact is looked up in any graph.

Examples:
  lemma explain --db ./lemma.db ex:bob ex:spouse ex:alice
  lemma explain --db ./lemma.db '<http://example.org/a>' ex:knows ex:b --format json`,
		Args:          cobra.RangeArgs(3, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, cmd, args)
		},
	}
	addProgramFlags(cmd, &opts.Program)
	return cmd
}

func runExplain(opts *ExplainOptions, cmd *cobra.Command, args []string) error {
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

	k, err := compiler.ParseFact(args, s.reasoner.Program().Namespaces)
	if err != nil {
		_ = formatter.Error(ErrCodeBadFact, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid fact", err)
	}

	fact, js, err := s.reasoner.Explain(ctx, k)
	if errors.Is(err, engine.ErrFactNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("no live fact %s", k), nil)
		return WrapExitError(ExitFailure, "fact not found", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "explain failed", err)
	}

	return outputExplain(formatter, newExplainResult(fact, js))
}

func newExplainResult(fact ir.Fact, js []ir.Justification) ExplainResult {
	result := ExplainResult{
		Fact:     fact.String(),
		Inferred: fact.Inferred,
		Supports: make([]SupportSet, len(js)),
	}
	base := make(map[ir.FactKey]bool)
	for i, j := range js {
		keys := j.SupportKeys()
		set := SupportSet{Facts: make([]string, len(keys)), Rules: j.RuleNames()}
		for n, k := range keys {
			set.Facts[n] = k.String()
			base[k] = true
		}
		result.Supports[i] = set
	}
	result.Stats = ExplainStats{SupportSets: len(js), BaseFacts: len(base)}
	return result
}

func outputExplain(formatter *OutputFormatter, result ExplainResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	kind := "base"
	if result.Inferred {
		kind = "inferred"
	}
	fmt.Fprintf(formatter.Writer, "%s .  (%s)\n", result.Fact, kind)
	if len(result.Supports) == 0 {
		fmt.Fprintln(formatter.Writer, "  asserted directly, no rule derives it")
		return nil
	}
	for i, set := range result.Supports {
		fmt.Fprintf(formatter.Writer, "\nSupport %d (rules: %v):\n", i+1, set.Rules)
		for _, f := range set.Facts {
			fmt.Fprintf(formatter.Writer, "  %s .\n", f)
		}
	}
	fmt.Fprintf(formatter.Writer, "\n%d support set(s), %d distinct base fact(s)\n",
		result.Stats.SupportSets, result.Stats.BaseFacts)
	return nil
}
