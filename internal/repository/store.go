package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"shared-transactions/internal/domain"
	"shared-transactions/internal/errors"
)

// Store provides a unified interface for all repository operations with transaction support
type Store struct {
	db       *sql.DB
	executor SQLExecutor
	dialect  Dialect
	logger   *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sql.DB, dialect Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:       db,
		executor: db,
		dialect:  dialect,
		logger:   logger,
	}
}

// Open connects to the database described by dialect and dsn and configures the
// connection pool. For SQLite, dsn is a file path whose directory is created.
func Open(ctx context.Context, dialect Dialect, dsn string, logger *slog.Logger) (*Store, error) {
	if dialect == SQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = "file:" + dsn + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == SQLite {
		// One writer at a time; SQLite serializes writers anyway.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewStore(db, dialect, logger), nil
}

// DB exposes the underlying pool, e.g. for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Transactions returns a TransactionRepository using the current executor
func (s *Store) Transactions() domain.TransactionRepository {
	return &transactionRepository{store: s}
}

// Users returns a UserRepository using the current executor
func (s *Store) Users() domain.UserRepository {
	return &userRepository{store: s}
}

// Identities returns an IdentityResolver backed by the users table.
func (s *Store) Identities() domain.IdentityResolver {
	return NewIdentityResolver(s.Users())
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

// WithTransaction executes a function within a database transaction. When the
// store is already bound to a transaction, fn joins it.
func (s *Store) WithTransaction(ctx context.Context, fn func(*Store) error) error {
	if _, inTx := s.executor.(*sql.Tx); inTx {
		return fn(s)
	}
	if s.db == nil {
		return errors.ErrCannotBeginTransaction
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, "failed to begin transaction")
	}

	txStore := &Store{
		db:       s.db,
		executor: tx,
		dialect:  s.dialect,
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(err, "failed to commit transaction")
	}
	return nil
}
