package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/roach88/lemma/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - empty database
// 1 - facts, justifications, rules, programs
const currentSchemaVersion = 1

// Default creators stamped on facts written without an explicit creator.
const (
	DefaultUserCreator     = "lemma:user"
	DefaultReasonerCreator = "lemma:reasoner"
)

// CommitListener receives the delta of every committed user transaction.
// Listeners run synchronously on the committing goroutine, in commit order.
// They must not block or commit another transaction.
type CommitListener func(ir.TransactionData)

// Store provides durable storage for facts, justifications and programs.
type Store struct {
	db     *sql.DB
	ids    IDGenerator
	clock  *Clock
	now    func() time.Time
	logger *zap.Logger

	userCreator     string
	reasonerCreator string

	mu        sync.RWMutex
	listeners []CommitListener

	// commitMu spans a user commit and its notification so listeners see
	// deltas in commit order.
	commitMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the row id generator (default UUIDv7).
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// WithNow overrides the wall clock used for created_at/deleted_at.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger (default no-op).
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithCreators sets the creator ids stamped on user and reasoner writes.
func WithCreators(user, reasoner string) Option {
	return func(s *Store) {
		if user != "" {
			s.userCreator = user
		}
		if reasoner != "" {
			s.reasonerCreator = reasoner
		}
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer; one connection also makes every Tx
	// exclusive, which the reasoner relies on.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	var last int64
	if err := db.QueryRow(`
		SELECT MAX(COALESCE((SELECT MAX(seq) FROM facts), 0),
		           COALESCE((SELECT MAX(seq) FROM justifications), 0),
		           COALESCE((SELECT MAX(seq) FROM programs), 0))
	`).Scan(&last); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read sequence: %w", err)
	}

	s := &Store{
		db:              db,
		ids:             UUIDv7Generator{},
		clock:           NewClockAt(last),
		now:             time.Now,
		logger:          zap.NewNop(),
		userCreator:     DefaultUserCreator,
		reasonerCreator: DefaultReasonerCreator,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Seq returns the sequence number of the most recently started transaction.
func (s *Store) Seq() int64 {
	return s.clock.Current()
}

// OnCommit registers a listener for committed user transactions.
func (s *Store) OnCommit(l CommitListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Begin opens a user transaction. Its delta is published on commit.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	return s.begin(ctx, s.userCreator, true)
}

// BeginReasoner opens a transaction for the reasoner. Its changes are not
// published to commit listeners.
func (s *Store) BeginReasoner(ctx context.Context) (*Tx, error) {
	return s.begin(ctx, s.reasonerCreator, false)
}

// Read runs fn in a transaction that is always rolled back.
func (s *Store) Read(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.begin(ctx, s.userCreator, false)
	if err != nil {
		return err
	}
	defer tx.Close()
	return fn(tx)
}

func (s *Store) begin(ctx context.Context, creator string, publish bool) (*Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{
		store:   s,
		tx:      sqlTx,
		seq:     s.clock.Next(),
		creator: creator,
		publish: publish,
		rules:   make(map[string]ir.Rule),
	}, nil
}

func (s *Store) notify(data ir.TransactionData) {
	s.mu.RLock()
	listeners := append([]CommitListener(nil), s.listeners...)
	s.mu.RUnlock()

	for _, l := range listeners {
		l(data)
	}
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
// Version 1 is the initial schema, created entirely by schema.sql.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
