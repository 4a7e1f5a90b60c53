package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProcessedSuffix is appended to inbox files once their facts are committed.
const ProcessedSuffix = ".done"

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Program     ProgramOptions
	Watch       bool
	Inbox       string
	MetricsAddr string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reasoner as a long-lived process",
		Long: `Run the reasoner against a database until interrupted.

With --inbox, every *.nq file in the directory is asserted as one
transaction and renamed with a .done suffix; new files are picked up as
they appear. With --watch, edits to the --program file replace the rule
program and re-materialize the closure. With --metrics-addr, Prometheus
metrics are served on /metrics.

Example:
  lemma run --db ./lemma.db --program rules.cue --watch --inbox ./inbox
  lemma run --db ./lemma.db --metrics-addr localhost:9464`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReasoner(opts, cmd)
		},
	}

	addProgramFlags(cmd, &opts.Program)
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "reload --program when it changes")
	cmd.Flags().StringVar(&opts.Inbox, "inbox", "", "directory of N-Quads files to assert")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "listen address for /metrics (overrides config)")

	return cmd
}

func runReasoner(opts *RunOptions, cmd *cobra.Command) error {
	if opts.Watch && opts.Program.Path == "" {
		return NewExitError(ExitCommandError, "--watch requires --program")
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s, err := openSession(ctx, opts.RootOptions, opts.Program, reg)
	if err != nil {
		return err
	}
	defer s.Close()
	logger := s.logger

	metricsAddr := opts.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = s.cfg.MetricsAddr
	}

	d := &daemon{session: s, opts: opts}

	g, gctx := errgroup.WithContext(ctx)

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics server listening", zap.String("addr", metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if opts.Inbox != "" || opts.Watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create watcher", err)
		}
		defer watcher.Close()

		if opts.Inbox != "" {
			if err := watcher.Add(opts.Inbox); err != nil {
				return WrapExitError(ExitCommandError, "failed to watch inbox", err)
			}
			// Files dropped before startup.
			if err := d.drainInbox(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to read inbox", err)
			}
		}
		if opts.Watch {
			if err := watcher.Add(d.programDir()); err != nil {
				return WrapExitError(ExitCommandError, "failed to watch program", err)
			}
		}
		g.Go(func() error { return d.watch(gctx, watcher) })
	}

	program := s.reasoner.Program()
	logger.Info("reasoner started",
		zap.String("db", s.cfg.DatabasePath),
		zap.String("program", program.Name),
		zap.Int("rules", len(program.Rules)),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Reasoner started with program %s (%d rules).\n", program.Name, len(program.Rules))
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "reasoner error", err)
	}

	logger.Info("reasoner stopped gracefully")
	return nil
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// daemon reacts to filesystem events for the run command.
type daemon struct {
	*session
	opts *RunOptions
}

func (d *daemon) watch(ctx context.Context, w *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			switch {
			case d.isInboxFile(ev.Name):
				if err := d.assertFile(ctx, ev.Name); err != nil {
					d.logger.Warn("inbox file rejected", zap.String("file", ev.Name), zap.Error(err))
				}
			case d.isProgramFile(ev.Name):
				d.reloadProgram(ctx)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (d *daemon) isInboxFile(name string) bool {
	return d.opts.Inbox != "" &&
		filepath.Clean(filepath.Dir(name)) == filepath.Clean(d.opts.Inbox) &&
		filepath.Ext(name) == ".nq"
}

func (d *daemon) programIsDir() bool {
	info, err := os.Stat(d.opts.Program.Path)
	return err == nil && info.IsDir()
}

// programDir is the directory watched for program edits. Editors often
// replace a file instead of writing it, so the file itself is not watched.
func (d *daemon) programDir() string {
	if d.programIsDir() {
		return d.opts.Program.Path
	}
	return filepath.Dir(d.opts.Program.Path)
}

func (d *daemon) isProgramFile(name string) bool {
	if !d.opts.Watch {
		return false
	}
	if d.programIsDir() {
		return filepath.Clean(filepath.Dir(name)) == filepath.Clean(d.opts.Program.Path) &&
			filepath.Ext(name) == ".cue"
	}
	return filepath.Clean(name) == filepath.Clean(d.opts.Program.Path)
}

// drainInbox asserts the inbox files present now, in name order.
func (d *daemon) drainInbox(ctx context.Context) error {
	entries, err := os.ReadDir(d.opts.Inbox)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".nq") {
			names = append(names, filepath.Join(d.opts.Inbox, e.Name()))
		}
	}
	slices.Sort(names)
	for _, name := range names {
		if err := d.assertFile(ctx, name); err != nil {
			d.logger.Warn("inbox file rejected", zap.String("file", name), zap.Error(err))
		}
	}
	return nil
}

// assertFile commits the facts of one inbox file and marks it processed.
func (d *daemon) assertFile(ctx context.Context, name string) error {
	f, err := os.Open(name)
	if errors.Is(err, os.ErrNotExist) {
		// Already processed on an earlier event.
		return nil
	}
	if err != nil {
		return err
	}
	keys, err := ReadNQuads(f)
	f.Close()
	if err != nil {
		return err
	}

	data, delta, err := d.commit(ctx, keys, nil)
	if err != nil {
		return err
	}
	if err := os.Rename(name, name+ProcessedSuffix); err != nil {
		return err
	}
	d.logger.Info("inbox file asserted",
		zap.String("file", name),
		zap.Int64("seq", data.Seq),
		zap.Int("added", len(data.Added)),
		zap.Int("inferred", len(delta.Inferred)),
	)
	return nil
}

// reloadProgram recompiles the watched program and swaps it in. A program
// that fails to load leaves the running one in place.
func (d *daemon) reloadProgram(ctx context.Context) {
	p, err := LoadProgram(d.opts.Program.Path, d.opts.Program.Name)
	if err != nil {
		d.logger.Warn("program reload failed", zap.Error(err))
		return
	}
	if p.ID == d.reasoner.Program().ID {
		return
	}
	delta, err := d.reasoner.ReplaceProgram(ctx, p)
	if err != nil {
		d.logger.Warn("program replace failed", zap.String("program", p.Name), zap.Error(err))
		return
	}
	d.logger.Info("program reloaded",
		zap.String("program", p.Name),
		zap.Int("rules", len(p.Rules)),
		zap.Int("inferred", len(delta.Inferred)),
		zap.Int("retracted", len(delta.Retracted)),
	)
}
