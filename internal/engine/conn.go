package engine

import (
	"context"
	"errors"

	"github.com/roach88/lemma/internal/ir"
	"github.com/roach88/lemma/internal/store"
)

// FactLookup lists live facts matching a lookup, in a stable order.
type FactLookup interface {
	ListFacts(ctx context.Context, lookup ir.Lookup) ([]ir.Fact, error)
}

// JustificationSource lists the justifications of a fact.
type JustificationSource interface {
	ListJustificationsForTriple(ctx context.Context, f ir.Fact) ([]ir.Justification, error)
}

// Conn is a transactional connection to the fact store. Nothing written
// through a Conn is visible to others until Commit. Close without Commit
// discards everything.
//
// *store.Tx implements Conn.
type Conn interface {
	FactLookup
	JustificationSource

	InsertFacts(ctx context.Context, facts []ir.Fact) ([]ir.Fact, error)
	DeleteFacts(ctx context.Context, facts []ir.Fact) ([]ir.Fact, error)
	ListBaseFacts(ctx context.Context) ([]ir.Fact, error)
	ListInferredFacts(ctx context.Context) ([]ir.Fact, error)

	StoreJustification(ctx context.Context, j ir.Justification) (bool, error)
	DeleteJustification(ctx context.Context, id string) error
	DeleteAllJustifications(ctx context.Context) error
	ListJustificationsSupportedBy(ctx context.Context, f ir.Fact) ([]ir.Justification, error)

	StoreProgram(ctx context.Context, p *ir.Program) error
	LoadProgram(ctx context.Context, name string) (*ir.Program, error)
	UpdateProgram(ctx context.Context, p *ir.Program) error

	Commit() error
	Close() error
}

// Connector opens reasoner connections.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Conn, error)

// Connect calls f.
func (f ConnectorFunc) Connect(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// StoreConnector opens reasoner transactions on s. Writes made through them
// are not published to the store's commit listeners, so the reasoner never
// sees its own output as a new delta.
func StoreConnector(s *store.Store) Connector {
	return ConnectorFunc(func(ctx context.Context) (Conn, error) {
		tx, err := s.BeginReasoner(ctx)
		if err != nil {
			return nil, err
		}
		return tx, nil
	})
}

// saveProgram updates p, or stores it when no program with its name exists.
func saveProgram(ctx context.Context, conn Conn, p *ir.Program) error {
	err := conn.UpdateProgram(ctx, p)
	if errors.Is(err, store.ErrProgramNotFound) {
		return conn.StoreProgram(ctx, p)
	}
	return err
}

var _ Conn = (*store.Tx)(nil)
