package harness

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/cayleygraph/quad"
	"go.uber.org/zap"

	"github.com/roach88/lemma/internal/compiler"
	"github.com/roach88/lemma/internal/config"
	"github.com/roach88/lemma/internal/engine"
	"github.com/roach88/lemma/internal/ir"
	"github.com/roach88/lemma/internal/store"
	"github.com/roach88/lemma/internal/testutil"
)

// DefaultStepTimeout bounds the wait for one step's reasoning.
const DefaultStepTimeout = 30 * time.Second

// Harness runs one scenario against a fresh in-memory store and a real
// reasoner.
type Harness struct {
	store    *store.Store
	reasoner *engine.Reasoner
	logger   *zap.Logger
	scenario *Scenario
}

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	logger *zap.Logger
}

// WithLogger passes l to the store and reasoner.
func WithLogger(l *zap.Logger) Option {
	return func(o *runOptions) { o.logger = l }
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Build the program (CUE file plus inline rules)
//  2. Open an in-memory store with a deterministic clock
//  3. Start a reasoner and persist the program
//  4. Apply each step and wait for reasoning to finish
//  5. Evaluate assertions against the final store
//
// A returned error means the scenario could not be executed; assertion
// failures are reported in Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := &runOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	program, err := scenario.buildProgram()
	if err != nil {
		return nil, fmt.Errorf("failed to build program: %w", err)
	}

	clock := testutil.NewDeterministicClock()
	st, err := store.Open(":memory:", store.WithNow(clock.Now), store.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	r, err := engine.New(engine.StoreConnector(st), program,
		engine.WithLogger(o.logger),
		engine.WithInferredContext(scenario.inferredContext()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start reasoner: %w", err)
	}
	defer r.Shutdown(true)

	if _, err := r.ReplaceProgram(ctx, program); err != nil {
		return nil, fmt.Errorf("failed to store program: %w", err)
	}

	h := &Harness{store: st, reasoner: r, logger: o.logger, scenario: scenario}
	result := NewResult()

	for i, step := range scenario.Steps {
		trace, err := h.executeStep(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op(), err)
		}
		result.Steps = append(result.Steps, trace)
	}

	facts, err := h.liveFacts(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range facts {
		line := f.String()
		if f.Inferred {
			line += " (inferred)"
		}
		result.Facts = append(result.Facts, line)
	}
	slices.Sort(result.Facts)

	actx := &AssertionContext{Ctx: ctx, Store: st, Reasoner: r, Scenario: scenario}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step) (StepTrace, error) {
	op := step.Op()
	var (
		d   engine.Delta
		err error
	)
	switch op {
	case OpTransaction:
		d, err = h.transaction(ctx, step)
	case OpAddRule:
		var rule ir.Rule
		rule, err = compiler.ParseRule(step.AddRule.Name, step.AddRule.Rule, h.scenario.Namespaces)
		if err == nil {
			d, err = h.reasoner.NotifyAddRule(ctx, rule)
		}
	case OpRemoveRules:
		d, err = h.reasoner.RemoveRules(ctx, step.RemoveRules...)
	case OpReRun:
		d, err = h.reasoner.ReRunPrograms(ctx)
	default:
		err = fmt.Errorf("empty or mixed step")
	}
	if err != nil {
		return StepTrace{}, err
	}

	h.logger.Debug("scenario step completed",
		zap.Int("step", index),
		zap.String("op", op),
		zap.Int("inferred", len(d.Inferred)),
		zap.Int("retracted", len(d.Retracted)),
	)
	return newStepTrace(index, op, d), nil
}

// transaction commits one user transaction and waits for the reasoner.
func (h *Harness) transaction(ctx context.Context, step Step) (engine.Delta, error) {
	removed, err := h.scenario.parseFacts(step.Remove)
	if err != nil {
		return engine.Delta{}, err
	}
	added, err := h.scenario.parseFacts(step.Add)
	if err != nil {
		return engine.Delta{}, err
	}

	tx, err := h.store.Begin(ctx)
	if err != nil {
		return engine.Delta{}, err
	}
	defer tx.Close()

	if len(removed) > 0 {
		if _, err := tx.DeleteFacts(ctx, toFacts(removed)); err != nil {
			return engine.Delta{}, err
		}
	}
	if len(added) > 0 {
		if _, err := tx.InsertFacts(ctx, toFacts(added)); err != nil {
			return engine.Delta{}, err
		}
	}
	var pending *engine.Pending
	if err := tx.CommitThen(func(d ir.TransactionData) {
		pending = h.reasoner.AfterCommit(d)
	}); err != nil {
		return engine.Delta{}, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, DefaultStepTimeout)
	defer cancel()
	if err := pending.Wait(waitCtx); err != nil {
		return engine.Delta{}, err
	}
	return pending.Result(), nil
}

func (h *Harness) liveFacts(ctx context.Context) ([]ir.Fact, error) {
	var facts []ir.Fact
	err := h.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		facts, err = tx.ListFacts(ctx, ir.Lookup{})
		return err
	})
	return facts, err
}

func toFacts(keys []ir.FactKey) []ir.Fact {
	facts := make([]ir.Fact, len(keys))
	for i, k := range keys {
		facts[i] = ir.NewFact(k)
	}
	return facts
}

// buildProgram loads the CUE program, if any, and adds the inline rules.
func (s *Scenario) buildProgram() (*ir.Program, error) {
	program := ir.NewProgram(s.Name, s.Description, s.Namespaces)
	if s.Program != "" {
		p, err := compiler.LoadProgram(s.Program, s.ProgramName)
		if err != nil {
			return nil, err
		}
		program = p
	}
	for _, spec := range s.Rules {
		rule, err := compiler.ParseRule(spec.Name, spec.Rule, s.Namespaces)
		if err != nil {
			return nil, err
		}
		program = program.WithRule(rule)
	}
	return program, nil
}

func (s *Scenario) inferredContext() quad.Value {
	switch s.InferredContext {
	case "":
		return engine.DefaultInferredContext
	case config.NoInferredContext:
		return nil
	default:
		return quad.IRI(s.InferredContext)
	}
}
