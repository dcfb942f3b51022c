package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Store persists key-value entries and provider payloads in SQLite.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the SQLite database at path and applies the pragmas the server
// relies on. The caller owns the returned *sql.DB.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	return db, nil
}

// Get returns the value stored under key in namespace. The boolean is false
// when no value has been stored.
func (s *Store) Get(namespace, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv_entries WHERE namespace = ? AND key = ?`, namespace, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

// SetMany stores every entry under namespace in one transaction, replacing
// previous values. Either all entries are written or none are.
func (s *Store) SetMany(namespace string, entries map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin %s: %w", namespace, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for key, value := range entries {
		_, err := tx.Exec(`
			INSERT INTO kv_entries (namespace, key, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(namespace, key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at
		`, namespace, key, value, now)
		if err != nil {
			return fmt.Errorf("set %s/%s: %w", namespace, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", namespace, err)
	}
	return nil
}

// Namespaces returns the number of distinct namespaces holding entries.
func (s *Store) Namespaces() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(DISTINCT namespace) FROM kv_entries`).Scan(&n)
	return n, err
}

// Bucket scopes Get and SetMany to one namespace.
type Bucket struct {
	store     *Store
	namespace string
}

func (s *Store) Bucket(namespace string) *Bucket {
	return &Bucket{store: s, namespace: namespace}
}

func (b *Bucket) Get(key string) (string, bool, error) {
	return b.store.Get(b.namespace, key)
}

func (b *Bucket) SetMany(entries map[string]string) error {
	return b.store.SetMany(b.namespace, entries)
}
