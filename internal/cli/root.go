package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/lemma/internal/config"
	"github.com/roach88/lemma/internal/ir"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string // optional YAML config file
	Database string // overrides the configured database path

	cfg    *config.Config
	logger *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// LoadConfig loads the configuration once and applies flag overrides.
func (o *RootOptions) LoadConfig() (*config.Config, error) {
	if o.cfg != nil {
		return o.cfg, nil
	}
	cfg, err := config.Load(o.Config)
	if err != nil {
		return nil, err
	}
	if o.Database != "" {
		cfg.DatabasePath = o.Database
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	o.cfg = cfg
	return cfg, nil
}

// Logger returns the process logger. Logs go to stderr so they never mix
// with command output: JSON lines normally, console lines with --verbose.
func (o *RootOptions) Logger() *zap.Logger {
	if o.logger != nil {
		return o.logger
	}
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if cfg, err := o.LoadConfig(); err == nil {
		level.SetLevel(cfg.Level())
	}

	zc := zap.NewProductionConfig()
	if o.Verbose {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	o.logger = logger
	return logger
}

// NewRootCommand creates the root command for the lemma CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lemma",
		Short: "lemma - incremental forward-chaining reasoner",
		Long: `An incremental forward-chaining reasoner over RDF quads with truth
maintenance. Rule programs are written in CUE, facts are stored in SQLite,
and every inferred fact keeps the justifications that derived it.`,
		Version:       ir.EngineVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewAssertCommand(opts))
	cmd.AddCommand(NewRetractCommand(opts))
	cmd.AddCommand(NewRerunCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
