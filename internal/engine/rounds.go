package engine

import "fmt"

// DefaultMaxRounds is the default limit on chaining rounds per transaction.
const DefaultMaxRounds = 1000

// roundLimiter counts chaining rounds within one materialization and
// enforces a maximum.
//
// Each round seeds every rule with the facts inferred by the previous round.
// A rule set that keeps inventing new nodes never reaches a fixpoint; the
// limit turns that into an error instead of a hang.
type roundLimiter struct {
	max     int
	current int
}

func newRoundLimiter(max int) *roundLimiter {
	if max <= 0 {
		max = DefaultMaxRounds
	}
	return &roundLimiter{max: max}
}

// Next starts a new round. Returns RoundsExceededError if the limit is
// exceeded.
func (l *roundLimiter) Next() error {
	l.current++
	if l.current > l.max {
		return &RoundsExceededError{Rounds: l.current, Limit: l.max}
	}
	return nil
}

// Current returns the number of rounds started.
func (l *roundLimiter) Current() int {
	return l.current
}

// RoundsExceededError is returned when chaining does not reach a fixpoint
// within the round limit. The transaction's reasoning is aborted.
type RoundsExceededError struct {
	Rounds int
	Limit  int
}

// Error implements the error interface.
func (e *RoundsExceededError) Error() string {
	return fmt.Sprintf("%s: no fixpoint after %d rounds (limit %d)",
		ErrCodeRoundsExceeded, e.Rounds-1, e.Limit)
}
