// Package sqlite provides a durable SQLite backend for the stockx cache and
// credential stores.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	stockx "github.com/stockapp/stockx-go"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("store is closed")

// Config holds store options.
type Config struct {
	// DataSourceName is the SQLite connection string, e.g. "file:stockx.db".
	DataSourceName string

	// EnableWAL turns on write-ahead logging. Recommended when the host app
	// reads and writes from different goroutines.
	EnableWAL bool
}

// Store is a CacheStore and CredentialStore over a single SQLite file.
// Cache entries and credentials live in separate tables; deleting one never
// touches the other.
type Store struct {
	db     *sql.DB
	closed bool
}

var _ stockx.CacheStore = (*Store)(nil)

// New opens (and if necessary initializes) a store.
func New(cfg Config) (*Store, error) {
	dsn := cfg.DataSourceName
	if dsn == "" {
		return nil, errors.New("sqlite: DataSourceName is required")
	}
	if cfg.EnableWAL {
		dsn += "?_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS cache (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		written_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS credentials (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// ============================================================================
// CacheStore
// ============================================================================

// Get reads a cache entry. With maxAge > 0, entries older than maxAge are
// reported as missing.
func (s *Store) Get(key string, maxAge time.Duration) (stockx.Entry, bool, error) {
	if s.closed {
		return stockx.Entry{}, false, ErrStoreClosed
	}

	var value []byte
	var writtenAt int64
	err := s.db.QueryRow(
		"SELECT value, written_at FROM cache WHERE key = ?", key,
	).Scan(&value, &writtenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return stockx.Entry{}, false, nil
	}
	if err != nil {
		return stockx.Entry{}, false, fmt.Errorf("sqlite: get %q: %w", key, err)
	}

	entry := stockx.Entry{
		Value:     json.RawMessage(value),
		WrittenAt: time.Unix(writtenAt, 0),
	}
	if maxAge > 0 && time.Since(entry.WrittenAt) > maxAge {
		return stockx.Entry{}, false, nil
	}
	return entry, true, nil
}

// Put writes a cache entry, overwriting any previous value for the key.
func (s *Store) Put(key string, value json.RawMessage) error {
	if s.closed {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(
		`INSERT INTO cache (key, value, written_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, written_at = excluded.written_at`,
		key, []byte(value), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put %q: %w", key, err)
	}
	return nil
}

// Delete removes a cache entry. Missing keys are not an error.
func (s *Store) Delete(key string) error {
	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.db.Exec("DELETE FROM cache WHERE key = ?", key); err != nil {
		return fmt.Errorf("sqlite: delete %q: %w", key, err)
	}
	return nil
}

// PruneOlderThan garbage-collects cache entries older than age and returns
// how many were removed. The catalog calls this with its GC threshold (7d).
func (s *Store) PruneOlderThan(age time.Duration) (int64, error) {
	if s.closed {
		return 0, ErrStoreClosed
	}
	cutoff := time.Now().Add(-age).Unix()
	res, err := s.db.Exec("DELETE FROM cache WHERE written_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ============================================================================
// CredentialStore
// ============================================================================

// Credentials returns a view of the store implementing stockx.CredentialStore.
// The cache-side Get/Put/Delete signatures differ, so the credential methods
// live behind this adapter.
func (s *Store) Credentials() stockx.CredentialStore {
	return credentialView{s: s}
}

type credentialView struct{ s *Store }

func (v credentialView) Get(key string) (string, error) { return v.s.GetCredential(key) }
func (v credentialView) Set(key, value string) error    { return v.s.SetCredential(key, value) }
func (v credentialView) Delete(key string) error        { return v.s.DeleteCredential(key) }

var _ stockx.CredentialStore = credentialView{}

// GetCredential reads a credential; missing keys return "".
func (s *Store) GetCredential(key string) (string, error) {
	if s.closed {
		return "", ErrStoreClosed
	}
	var value string
	err := s.db.QueryRow("SELECT value FROM credentials WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: get credential %q: %w", key, err)
	}
	return value, nil
}

// SetCredential writes a credential.
func (s *Store) SetCredential(key, value string) error {
	if s.closed {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(
		`INSERT INTO credentials (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("sqlite: set credential %q: %w", key, err)
	}
	return nil
}

// DeleteCredential removes a credential. Missing keys are not an error.
func (s *Store) DeleteCredential(key string) error {
	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.db.Exec("DELETE FROM credentials WHERE key = ?", key); err != nil {
		return fmt.Errorf("sqlite: delete credential %q: %w", key, err)
	}
	return nil
}
