package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cayleygraph/quad/nquads"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/roach88/lemma/internal/config"
	"github.com/roach88/lemma/internal/engine"
	"github.com/roach88/lemma/internal/ir"
	"github.com/roach88/lemma/internal/store"
)

// ProgramOptions selects the rule program a command reasons with.
type ProgramOptions struct {
	Path string // CUE file or directory; empty uses the stored program
	Name string // program name when several are available
}

// session is an open store with a running reasoner.
type session struct {
	cfg      *config.Config
	store    *store.Store
	reasoner *engine.Reasoner
	logger   *zap.Logger
}

// openSession opens the configured database, resolves the program and
// starts a reasoner. When the program comes from a CUE file and differs
// from the stored one it is persisted and the closure is re-materialized.
func openSession(ctx context.Context, opts *RootOptions, po ProgramOptions, reg prometheus.Registerer) (*session, error) {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := opts.Logger()

	st, err := store.Open(cfg.DatabasePath,
		store.WithLogger(logger),
		store.WithCreators("", cfg.ReasonerCreator),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	s := &session{cfg: cfg, store: st, logger: logger}
	program, fromFile, err := s.resolveProgram(ctx, po)
	if err != nil {
		st.Close()
		return nil, err
	}

	ropts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithInferredContext(cfg.InferredGraph()),
		engine.WithMaxRounds(cfg.MaxRounds),
	}
	if reg != nil {
		ropts = append(ropts, engine.WithRegisterer(reg))
	}
	r, err := engine.New(engine.StoreConnector(st), program, ropts...)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start reasoner", err)
	}
	s.reasoner = r

	if fromFile {
		stored, err := s.storedProgram(ctx, program.Name)
		if err != nil {
			s.Close()
			return nil, err
		}
		if stored == nil || stored.ID != program.ID {
			d, err := r.ReplaceProgram(ctx, program)
			if err != nil {
				s.Close()
				return nil, WrapExitError(ExitCommandError, "failed to install program", err)
			}
			logger.Info("program installed",
				zap.String("program", program.Name),
				zap.Int("inferred", len(d.Inferred)),
				zap.Int("retracted", len(d.Retracted)),
			)
		}
	}
	return s, nil
}

// resolveProgram loads the program from po.Path, or from the store when no
// path is given. fromFile reports which.
func (s *session) resolveProgram(ctx context.Context, po ProgramOptions) (program *ir.Program, fromFile bool, err error) {
	if po.Path != "" {
		p, err := LoadProgram(po.Path, po.Name)
		if err != nil {
			return nil, false, WrapExitError(ExitCommandError, "failed to load program", err)
		}
		return p, true, nil
	}

	err = s.store.Read(ctx, func(tx *store.Tx) error {
		name := po.Name
		if name == "" {
			names, err := tx.ListPrograms(ctx)
			if err != nil {
				return err
			}
			switch len(names) {
			case 0:
				return NewExitError(ExitCommandError, "no program stored; pass --program")
			case 1:
				name = names[0]
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("%d programs stored; pass --name", len(names)))
			}
		}
		p, err := tx.LoadProgram(ctx, name)
		if err != nil {
			return err
		}
		program = p
		return nil
	})
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return nil, false, err
		}
		return nil, false, WrapExitError(ExitCommandError, "failed to load stored program", err)
	}
	return program, false, nil
}

// storedProgram returns the stored program called name, or nil.
func (s *session) storedProgram(ctx context.Context, name string) (*ir.Program, error) {
	var p *ir.Program
	err := s.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		p, err = tx.LoadProgram(ctx, name)
		if errors.Is(err, store.ErrProgramNotFound) {
			p, err = nil, nil
		}
		return err
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read stored program", err)
	}
	return p, nil
}

// commit applies one user transaction and waits for the reasoner.
func (s *session) commit(ctx context.Context, added, removed []ir.FactKey) (ir.TransactionData, engine.Delta, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return ir.TransactionData{}, engine.Delta{}, err
	}
	defer tx.Close()

	if len(removed) > 0 {
		if _, err := tx.DeleteFacts(ctx, keysToFacts(removed)); err != nil {
			return ir.TransactionData{}, engine.Delta{}, err
		}
	}
	if len(added) > 0 {
		if _, err := tx.InsertFacts(ctx, keysToFacts(added)); err != nil {
			return ir.TransactionData{}, engine.Delta{}, err
		}
	}
	var pending *engine.Pending
	if err := tx.CommitThen(func(d ir.TransactionData) {
		pending = s.reasoner.AfterCommit(d)
	}); err != nil {
		return ir.TransactionData{}, engine.Delta{}, err
	}

	data := tx.Delta()
	if err := pending.Wait(ctx); err != nil {
		return data, engine.Delta{}, err
	}
	return data, pending.Result(), nil
}

// Close stops the reasoner, waiting for in-flight work, and closes the
// store.
func (s *session) Close() {
	if s.reasoner != nil {
		s.reasoner.Shutdown(true)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("failed to close database", zap.Error(err))
	}
}

func keysToFacts(keys []ir.FactKey) []ir.Fact {
	facts := make([]ir.Fact, len(keys))
	for i, k := range keys {
		facts[i] = ir.NewFact(k)
	}
	return facts
}

// ReadNQuads parses N-Quads from r. Blank lines and comments are skipped by
// the decoder.
func ReadNQuads(r io.Reader) ([]ir.FactKey, error) {
	dec := nquads.NewReader(r, false)
	defer dec.Close()

	var keys []ir.FactKey
	for {
		q, err := dec.ReadQuad()
		if errors.Is(err, io.EOF) {
			return keys, nil
		}
		if err != nil {
			return nil, err
		}
		if !q.IsValid() {
			return nil, fmt.Errorf("incomplete quad: %v", q)
		}
		keys = append(keys, ir.KeyFromQuad(q))
	}
}

// readFactFiles reads N-Quads from each path; "-" is stdin.
func readFactFiles(paths []string, stdin io.Reader) ([]ir.FactKey, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	var keys []ir.FactKey
	for _, path := range paths {
		var r io.Reader = stdin
		if path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			r = f
		}
		ks, err := ReadNQuads(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		keys = append(keys, ks...)
	}
	return keys, nil
}
