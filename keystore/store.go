package keystore

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dnsxfer/xfercore/tsig"
)

// tsigKeyTable is grounded on the teacher's DefaultTables entries in
// tdns/db.go/db_schema.go, adapted from their DNSSEC/SIG(0) key columns
// to the four TSIG key fields spec.md section 3 names.
const tsigKeyTable = `CREATE TABLE IF NOT EXISTS 'TsigKeys' (
id		  INTEGER PRIMARY KEY,
name		  TEXT NOT NULL,
algorithm	  TEXT NOT NULL,
secret		  TEXT NOT NULL,
server		  TEXT,
UNIQUE (name)
)`

// Store is the process-global, immutable-after-startup TSIG key table
// (spec.md section 5). It is backed by a SQLite database the way the
// teacher's KeyDB backs its DNSSEC/SIG(0) key stores (tdns/db.go).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the TsigKeys table exists.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("keystore: database path unspecified")
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Chmod(path, 0664); err != nil {
			return nil, fmt.Errorf("keystore: making %s writable: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("keystore: opening %s: %w", path, err)
	}
	if _, err := db.Exec(tsigKeyTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("keystore: creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces the row for key.Name — used once at import time
// (e.g. right after ReadKeyFile), never by the transfer path itself, which
// only ever reads the table back.
func (s *Store) Put(key *tsig.Key) error {
	_, err := s.db.Exec(
		`INSERT INTO TsigKeys (name, algorithm, secret, server) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET algorithm=excluded.algorithm, secret=excluded.secret, server=excluded.server`,
		key.Name, key.Algorithm, key.Secret, key.Server,
	)
	if err != nil {
		return fmt.Errorf("keystore: storing key %q: %w", key.Name, err)
	}
	return nil
}

// Lookup returns the key named name, if present.
func (s *Store) Lookup(name string) (*tsig.Key, error) {
	row := s.db.QueryRow(`SELECT name, algorithm, secret, server FROM TsigKeys WHERE name = ?`, name)
	key := &tsig.Key{}
	if err := row.Scan(&key.Name, &key.Algorithm, &key.Secret, &key.Server); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("keystore: looking up key %q: %w", name, err)
	}
	return key, nil
}

// All loads the entire key table — the process-global key set spec.md
// section 5 describes as built once at startup and never mutated again.
func (s *Store) All() ([]*tsig.Key, error) {
	rows, err := s.db.Query(`SELECT name, algorithm, secret, server FROM TsigKeys`)
	if err != nil {
		return nil, fmt.Errorf("keystore: listing keys: %w", err)
	}
	defer rows.Close()

	var keys []*tsig.Key
	for rows.Next() {
		key := &tsig.Key{}
		if err := rows.Scan(&key.Name, &key.Algorithm, &key.Secret, &key.Server); err != nil {
			return nil, fmt.Errorf("keystore: scanning key row: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
