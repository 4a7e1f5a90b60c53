package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cayleygraph/quad"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/roach88/lemma/internal/compiler"
	"github.com/roach88/lemma/internal/ir"
)

// Reasoner is the single-worker reasoning scheduler.
//
// Committed transactions are queued by AfterCommit and processed one at a
// time, in commit order, by a worker goroutine started in New. Each
// transaction runs in its own store connection and commits atomically; a
// failed transaction leaves no trace in the store.
//
// Rule changes (NotifyAddRule, NotifyRemoveRules, RemoveRules,
// ReplaceProgram) and ReRunPrograms take the same lock as transaction
// processing, so they wait for the worker to reach a safe point. They build
// a new program snapshot and publish it only after the re-materialization
// committed.
//
// Thread-safety: all methods are safe for concurrent use.
type Reasoner struct {
	connector Connector
	program   atomic.Pointer[ir.Program]
	mat       *Materializer
	logger    *zap.Logger
	metrics   *Metrics

	inferredContext quad.Value
	maxRounds       int
	registerer      prometheus.Registerer

	queue    *jobQueue
	inflight atomic.Int64

	mu     sync.Mutex // held while processing a transaction or changing rules
	exited chan struct{}
}

// Option configures a Reasoner.
type Option func(*Reasoner)

// WithLogger sets the logger (default no-op).
func WithLogger(l *zap.Logger) Option {
	return func(r *Reasoner) { r.logger = l }
}

// WithInferredContext sets the graph for inferred facts whose rule head has
// no context. Default DefaultInferredContext; nil means the default graph.
func WithInferredContext(ctx quad.Value) Option {
	return func(r *Reasoner) { r.inferredContext = ctx }
}

// WithMaxRounds sets the chaining round limit per transaction.
//
// Default: 1000 rounds (DefaultMaxRounds).
func WithMaxRounds(n int) Option {
	return func(r *Reasoner) { r.maxRounds = n }
}

// WithRegisterer registers the reasoner's metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Reasoner) { r.registerer = reg }
}

// New creates a reasoner for program and starts its worker.
//
// Every rule must be safe; otherwise an UNSAFE_RULE RuntimeError is returned
// and no worker is started. New does not touch the store: call
// ReplaceProgram or ReRunPrograms to materialize existing facts.
func New(connector Connector, program *ir.Program, opts ...Option) (*Reasoner, error) {
	if program == nil {
		return nil, errors.New("reasoner: nil program")
	}
	if err := checkRules(program.Rules...); err != nil {
		return nil, err
	}

	r := &Reasoner{
		connector:       connector,
		logger:          zap.NewNop(),
		inferredContext: DefaultInferredContext,
		maxRounds:       DefaultMaxRounds,
		queue:           newJobQueue(),
		exited:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.mat = NewMaterializer(r.inferredContext, r.maxRounds, r.logger)
	r.metrics = NewMetrics("lemma", r.registerer)
	r.program.Store(program.Clone())

	go r.run()
	return r, nil
}

// Program returns the current program snapshot. Callers must not modify it.
func (r *Reasoner) Program() *ir.Program {
	return r.program.Load()
}

// AfterCommit queues a committed transaction. It never blocks.
//
// Processing is asynchronous: use the returned handle, or poll IsRunning,
// to observe completion. After Shutdown the handle fails with ErrShutdown.
func (r *Reasoner) AfterCommit(data ir.TransactionData) *Pending {
	p := newPending(data.Seq)
	r.inflight.Add(1)
	// Counted before the worker can dequeue and decrement it.
	r.metrics.QueueDepth.Inc()
	if !r.queue.Enqueue(job{data: data, pending: p}) {
		r.metrics.QueueDepth.Dec()
		r.inflight.Add(-1)
		p.finish(Delta{}, ErrShutdown)
		return p
	}
	return p
}

// IsRunning reports whether a transaction is being processed or queued.
func (r *Reasoner) IsRunning() bool {
	return r.inflight.Load() > 0
}

// Shutdown stops accepting transactions. Queued transactions that have not
// started fail with ErrShutdown. With await, Shutdown blocks until the
// in-flight transaction, if any, has finished and the worker has exited.
//
// Safe to call more than once.
func (r *Reasoner) Shutdown(await bool) {
	for _, j := range r.queue.Close() {
		r.metrics.QueueDepth.Dec()
		j.pending.finish(Delta{}, ErrShutdown)
		r.inflight.Add(-1)
	}
	if await {
		<-r.exited
	}
}

// run is the worker loop.
//
// ERROR HANDLING: a failed transaction is logged and reported through its
// Pending; the worker continues with the next one.
func (r *Reasoner) run() {
	defer close(r.exited)
	r.logger.Debug("reasoner worker started")

	for {
		j, ok := r.queue.TryDequeue()
		if !ok {
			if r.queue.Closed() {
				r.logger.Debug("reasoner worker stopped")
				return
			}
			<-r.queue.Wait()
			continue
		}
		r.metrics.QueueDepth.Dec()

		delta, err := r.process(context.Background(), j.data)
		if err != nil {
			r.logger.Error("transaction reasoning failed",
				zap.Int64("seq", j.data.Seq),
				zap.Int("added", len(j.data.Added)),
				zap.Int("removed", len(j.data.Removed)),
				zap.Error(err),
			)
		}
		j.pending.finish(delta, err)
		r.inflight.Add(-1)
	}
}

// process applies one transaction under the lock.
func (r *Reasoner) process(ctx context.Context, data ir.TransactionData) (Delta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	program := r.program.Load()
	return r.withConn(ctx, "transaction", func(conn Conn) (Delta, error) {
		d, err := r.mat.Apply(ctx, conn, program, data)
		if err == nil {
			r.logger.Debug("transaction reasoned",
				zap.Int64("seq", data.Seq),
				zap.Int("inferred", len(d.Inferred)),
				zap.Int("retracted", len(d.Retracted)),
				zap.Int("justifications", len(d.Justifications)),
			)
		}
		return d, err
	})
}

// withConn runs fn in a fresh connection and commits when fn succeeds.
// Must be called with r.mu held.
func (r *Reasoner) withConn(ctx context.Context, op string, fn func(Conn) (Delta, error)) (d Delta, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(op, time.Since(start).Seconds(), d, err) }()

	conn, err := r.connector.Connect(ctx)
	if err != nil {
		return Delta{}, NewStorageError("connect", err)
	}
	defer conn.Close()

	d, err = fn(conn)
	if err != nil {
		return Delta{}, err
	}
	if err := conn.Commit(); err != nil {
		return Delta{}, NewStorageError("commit", err)
	}
	return d, nil
}

// ReRunPrograms re-materializes the current program from the base facts.
func (r *Reasoner) ReRunPrograms(ctx context.Context) (Delta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	program := r.program.Load()
	return r.withConn(ctx, "rerun", func(conn Conn) (Delta, error) {
		return r.mat.ReRun(ctx, conn, program)
	})
}

// NotifyAddRule adds rule to the program (replacing a rule with the same
// name), persists the program and re-materializes.
//
// Unsafe rules are rejected before any lock is taken.
func (r *Reasoner) NotifyAddRule(ctx context.Context, rule ir.Rule) (Delta, error) {
	if err := checkRules(rule); err != nil {
		return Delta{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.program.Load().WithRule(rule)
	return r.swap(ctx, "add_rule", next, true)
}

// NotifyRemoveRules reloads the persisted program, after rules were removed
// from it through the store, and re-materializes.
func (r *Reasoner) NotifyRemoveRules(ctx context.Context) (Delta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := r.program.Load().Name
	var next *ir.Program
	d, err := r.withConn(ctx, "remove_rules", func(conn Conn) (Delta, error) {
		p, err := conn.LoadProgram(ctx, name)
		if err != nil {
			return Delta{}, storageErr("load program", err)
		}
		if err := checkRules(p.Rules...); err != nil {
			return Delta{}, err
		}
		next = p
		return r.mat.ReRun(ctx, conn, p)
	})
	if err != nil {
		return Delta{}, err
	}
	r.publish(next)
	return d, nil
}

// RemoveRules drops the named rules from the program, persists it and
// re-materializes. Unknown names are ignored.
func (r *Reasoner) RemoveRules(ctx context.Context, names ...string) (Delta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.program.Load().WithoutRules(names...)
	return r.swap(ctx, "remove_rules", next, true)
}

// ReplaceProgram swaps in a whole new program, persists it and
// re-materializes.
func (r *Reasoner) ReplaceProgram(ctx context.Context, p *ir.Program) (Delta, error) {
	if p == nil {
		return Delta{}, errors.New("reasoner: nil program")
	}
	if err := checkRules(p.Rules...); err != nil {
		return Delta{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.swap(ctx, "replace_program", p.Clone(), true)
}

// swap persists next, re-materializes with it and publishes it once the
// connection committed. Must be called with r.mu held.
func (r *Reasoner) swap(ctx context.Context, op string, next *ir.Program, persist bool) (Delta, error) {
	d, err := r.withConn(ctx, op, func(conn Conn) (Delta, error) {
		if persist {
			if err := saveProgram(ctx, conn, next); err != nil {
				return Delta{}, storageErr("save program", err)
			}
		}
		return r.mat.ReRun(ctx, conn, next)
	})
	if err != nil {
		return Delta{}, err
	}
	r.publish(next)
	return d, nil
}

func (r *Reasoner) publish(p *ir.Program) {
	prev := r.program.Swap(p)
	r.logger.Info("program updated",
		zap.String("program", p.Name),
		zap.String("id", p.ID),
		zap.String("previous_id", prev.ID),
		zap.Strings("rules", p.RuleNames()),
	)
}

// Explain returns the base justifications of the live fact with key k.
// A nil context in k matches any graph. Returns an empty slice for a base
// fact nothing derives.
func (r *Reasoner) Explain(ctx context.Context, k ir.FactKey) (ir.Fact, []ir.Justification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, err := r.connector.Connect(ctx)
	if err != nil {
		return ir.Fact{}, nil, NewStorageError("connect", err)
	}
	defer conn.Close()

	facts, err := conn.ListFacts(ctx, ir.ExactLookup(k))
	if err != nil {
		return ir.Fact{}, nil, storageErr("list facts", err)
	}
	if len(facts) == 0 {
		return ir.Fact{}, nil, fmt.Errorf("explain %s: %w", k, ErrFactNotFound)
	}
	f := facts[0]
	for _, cand := range facts {
		if cand.Key() == k {
			f = cand
			break
		}
	}

	js, err := conn.ListJustificationsForTriple(ctx, f)
	if err != nil {
		return ir.Fact{}, nil, storageErr("list justifications", err)
	}
	resolved, err := NewResolver(conn, r.logger).BaseJustifications(ctx, js)
	if err != nil {
		return f, nil, err
	}
	return f, resolved, nil
}

// ErrFactNotFound is returned by Explain for a key with no live fact.
var ErrFactNotFound = errors.New("fact not found")

// checkRules rejects unsafe rules.
func checkRules(rules ...ir.Rule) error {
	for _, rule := range rules {
		if err := compiler.CheckRule(rule); err != nil {
			var unsafe *compiler.UnsafeRuleError
			if errors.As(err, &unsafe) {
				return NewUnsafeRuleError(unsafe)
			}
			return err
		}
	}
	return nil
}
