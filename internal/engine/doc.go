// Package engine implements the lemma incremental reasoner.
//
// The reasoner keeps the store's inferred facts equal to the closure of the
// current program over the base facts, one committed transaction at a time.
//
// ARCHITECTURE:
//
// Single Worker:
// Committed transactions are queued by Reasoner.AfterCommit and processed
// by one goroutine in commit order. Each transaction is reasoned in a fresh
// store connection that is committed only when reasoning succeeds, so a
// failure never leaves a partial closure behind.
//
// Transaction Flow:
//  1. Removed facts detach the justifications they support (OnRemove)
//  2. Facts left without a well-founded justification are retracted,
//     cascading through the facts they supported
//  3. Removed facts that are still justified come back as inferred facts
//  4. Added and reinserted facts seed forward chaining (OnAdd)
//  5. Each new inferred fact seeds the next round until nothing is new
//
// Justifications:
// Every derivation is recorded as a justification (supports plus rule).
// Two derivations with the same triple, supports and rules are the same
// justification. The Resolver expands justifications to base facts for
// truth maintenance and for Reasoner.Explain.
//
// Rule Changes:
// Adding or removing rules rebuilds the closure from the base facts in one
// connection and publishes the new program snapshot after it committed.
// Readers of Reasoner.Program always see a complete snapshot.
package engine
