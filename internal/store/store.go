package store

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"minimart/internal/service"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema/catalog.sql
var catalogSchema string

//go:embed schema/orders.sql
var ordersSchema string

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// EnsureCatalogSchema creates the catalog schema and tables. Idempotent;
// run once at catalog service startup.
func (s *Store) EnsureCatalogSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, catalogSchema); err != nil {
		return fmt.Errorf("failed to ensure catalog schema: %w", err)
	}
	return nil
}

// EnsureOrdersSchema creates the orders schema and tables. Idempotent;
// run once at order service startup. The catalog schema is owned by the
// catalog service and is not created here.
func (s *Store) EnsureOrdersSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, ordersSchema); err != nil {
		return fmt.Errorf("failed to ensure orders schema: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction scoped to ctx. The transaction
// commits only if fn returns nil; any error (including context
// cancellation surfacing through the tx handle) rolls everything back.
func (s *Store) InTx(ctx context.Context, fn func(tx service.OrderTx) error) error {
	txx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Tx{tx: txx}); err != nil {
		_ = txx.Rollback()
		return err
	}

	if err := txx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx wraps one open database transaction. It carries the checkout
// workflow's accessor operations and order writes.
type Tx struct {
	tx *sqlx.Tx
}
