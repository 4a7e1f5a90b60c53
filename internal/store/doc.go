// Package store provides SQLite-backed storage for facts, justifications and
// rule programs.
//
// Facts are soft-deleted: a retracted row keeps its id so justifications and
// commit deltas that reference it stay resolvable. A partial unique index
// keeps at most one live row per quadruple.
//
// # Transactions
//
// All writes go through a Tx. Store.Begin opens a user transaction whose
// inserted and deleted facts are published to OnCommit listeners as an
// ir.TransactionData after a successful commit. Store.BeginReasoner opens a
// transaction for the reasoner itself; its changes are not published.
//
// Every transaction is stamped with a sequence number from a logical clock.
// Listings order by seq ASC, id COLLATE BINARY ASC and never by wall time.
//
// # Idempotency
//
// Justifications are content-addressed by ir.Justification.Signature and
// inserted with ON CONFLICT DO NOTHING, so storing the same derivation twice
// is a no-op. Rules are keyed by their content-addressed id.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity and cascades
//   - one open connection: a transaction owns the database while it runs
package store
