// Package sqlstore provides a storage adapter backed by a single key/value
// table in a SQL database. Supported drivers are "sqlite3"
// (github.com/mattn/go-sqlite3) and "postgres" (github.com/lib/pq).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lexlapax/agentdb/pkg/errors"
	"github.com/lexlapax/agentdb/pkg/log"
)

// SQLStore implements the storage.Store and storage.Scanner interfaces on
// top of a SQL database.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// NewSQLStore creates a new SQLStore with the given database connection.
// The records table is created if it does not exist.
func NewSQLStore(db *sqlx.DB) (*SQLStore, error) {
	store := &SQLStore{
		db:     db,
		driver: db.DriverName(),
	}

	if err := store.initialize(); err != nil {
		return nil, err
	}

	log.Debug("Initialized SQL storage adapter", "driver", store.driver)
	return store, nil
}

// Open connects to the database identified by driver and dsn and wraps it in
// a SQLStore.
func Open(driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrIO, "failed to connect to %s database: %v", driver, err)
	}
	return NewSQLStore(db)
}

func (s *SQLStore) initialize() error {
	var ddl string
	switch s.driver {
	case "postgres":
		ddl = `CREATE TABLE IF NOT EXISTS agentdb_records (
			key   BYTEA PRIMARY KEY,
			value BYTEA NOT NULL
		)`
	default:
		ddl = `CREATE TABLE IF NOT EXISTS agentdb_records (
			key   BLOB PRIMARY KEY,
			value BLOB NOT NULL
		)`
	}

	if _, err := s.db.Exec(ddl); err != nil {
		return errors.Wrap(errors.ErrIO, "failed to create records table: %v", err)
	}
	return nil
}

// Put implements the storage.Store interface using a driver-appropriate
// upsert.
func (s *SQLStore) Put(ctx context.Context, key, value []byte) error {
	var query string
	switch s.driver {
	case "postgres":
		query = `INSERT INTO agentdb_records (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	default:
		query = `INSERT INTO agentdb_records (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	}

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return errors.Wrap(errors.ErrIO, "failed to put %q: %v", key, err)
	}
	return nil
}

// Get implements the storage.Store interface.
func (s *SQLStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	query := s.db.Rebind(`SELECT value FROM agentdb_records WHERE key = ?`)

	var value []byte
	err := s.db.QueryRowxContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrIO, "failed to get %q: %v", key, err)
	}
	return value, nil
}

// Delete implements the storage.Store interface.
func (s *SQLStore) Delete(ctx context.Context, key []byte) error {
	query := s.db.Rebind(`DELETE FROM agentdb_records WHERE key = ?`)

	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return errors.Wrap(errors.ErrIO, "failed to delete %q: %v", key, err)
	}
	return nil
}

// ScanPrefix implements the storage.Scanner interface. The prefix is matched
// with a half-open key range so the index on the primary key is used.
func (s *SQLStore) ScanPrefix(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	var query string
	var args []interface{}

	if len(prefix) == 0 {
		query = `SELECT key, value FROM agentdb_records ORDER BY key`
	} else {
		query = s.db.Rebind(`SELECT key, value FROM agentdb_records WHERE key >= ? AND key < ? ORDER BY key`)
		args = []interface{}{prefix, prefixUpperBound(prefix)}
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(errors.ErrIO, "failed to scan prefix %q: %v", prefix, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return errors.Wrap(errors.ErrIO, "failed to scan row: %v", err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(errors.ErrIO, "row iteration failed: %v", err)
	}
	return nil
}

// prefixUpperBound returns the smallest key greater than every key that has
// the given prefix. A prefix of all-0xFF bytes has no upper bound; the
// sentinel returned for it sorts after any practical key.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return append(upper, 0xFF)
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// String describes the adapter for logging.
func (s *SQLStore) String() string {
	return fmt.Sprintf("sqlstore(%s)", s.driver)
}
