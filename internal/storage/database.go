package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB

	mu               sync.Mutex
	tagLinkListeners []func()
	// tagLinksPending is set when links change inside an open transaction.
	tagLinksPending bool
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: the engine is single-writer and in-memory databases
	// are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Reader returns the connection for queries made outside a transaction.
// It must not be used while a transaction from InTx is open.
func (db *DB) Reader() Querier {
	return db.conn
}

// InTx runs fn inside a transaction. The transaction is committed if fn
// returns nil and rolled back otherwise, including when fn panics.
func (db *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Runs after commit or rollback.
	defer db.flushTagLinks()
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// OnTagLinksChanged registers fn to be called whenever card-tag links are
// added or removed. Inside InTx, fn runs once the transaction has ended.
func (db *DB) OnTagLinksChanged(fn func()) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tagLinkListeners = append(db.tagLinkListeners, fn)
}

// tagLinksChanged records a link change made through q. Changes inside a
// transaction are announced when InTx finishes, others immediately.
func (db *DB) tagLinksChanged(q Querier) {
	if _, ok := q.(*sql.Tx); ok {
		db.mu.Lock()
		db.tagLinksPending = true
		db.mu.Unlock()
		return
	}
	db.notifyTagLinks()
}

func (db *DB) flushTagLinks() {
	db.mu.Lock()
	pending := db.tagLinksPending
	db.tagLinksPending = false
	db.mu.Unlock()
	if pending {
		db.notifyTagLinks()
	}
}

func (db *DB) notifyTagLinks() {
	db.mu.Lock()
	listeners := db.tagLinkListeners
	db.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}
