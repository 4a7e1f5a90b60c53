package engine

import (
	"context"
	"sync"
)

// Pending tracks one transaction submitted with AfterCommit.
type Pending struct {
	seq  int64
	done chan struct{}
	once sync.Once

	// Written once before done is closed.
	delta Delta
	err   error
}

func newPending(seq int64) *Pending {
	return &Pending{seq: seq, done: make(chan struct{})}
}

func (p *Pending) finish(d Delta, err error) {
	p.once.Do(func() {
		p.delta, p.err = d, err
		close(p.done)
	})
}

// Seq returns the store sequence number of the transaction.
func (p *Pending) Seq() int64 { return p.seq }

// Done is closed once the transaction has been processed or rejected.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the transaction is processed or ctx is done, and returns
// the processing error.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the processing error, or nil while still pending.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Result returns what processing changed. Empty while still pending or
// after a failure.
func (p *Pending) Result() Delta {
	select {
	case <-p.done:
		return p.delta
	default:
		return Delta{}
	}
}
