// Package labelstore persists user-assigned address labels (spec §6)
// to a local sqlite database, the same driver and open/exec idiom the
// teacher's indexer tutorial uses for its transfer log, generalized
// from a write-only log table into a keyed upsert table.
package labelstore

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is the concrete sqlite-backed implementation of the
// LabelStore collaborator interface named in spec §1/§6:
//
//	type LabelStore interface {
//	    LoadAll() (map[string]string, error)
//	    Set(addr, label string) error
//	    Clear(addr string) error
//	    Close() error
//	}
type Store struct {
	db *sql.DB
}

// Open creates (if needed) the labels table at path and returns a
// ready Store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("labelstore: open %s: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS labels(address TEXT PRIMARY KEY, label TEXT NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("labelstore: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// LoadAll returns every persisted label keyed by lowercased address
// hex, matching the key internal/state.Model.Labels uses.
func (s *Store) LoadAll() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT address, label FROM labels`)
	if err != nil {
		return nil, fmt.Errorf("labelstore: load: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var addr, label string
		if err := rows.Scan(&addr, &label); err != nil {
			return nil, fmt.Errorf("labelstore: scan: %w", err)
		}
		out[strings.ToLower(addr)] = label
	}
	return out, rows.Err()
}

// Set upserts one address's label.
func (s *Store) Set(addr, label string) error {
	_, err := s.db.Exec(
		`INSERT INTO labels(address, label) VALUES (?, ?)
		 ON CONFLICT(address) DO UPDATE SET label = excluded.label`,
		strings.ToLower(addr), label,
	)
	if err != nil {
		return fmt.Errorf("labelstore: set %s: %w", addr, err)
	}
	return nil
}

// Clear removes one address's label, if present.
func (s *Store) Clear(addr string) error {
	if _, err := s.db.Exec(`DELETE FROM labels WHERE address = ?`, strings.ToLower(addr)); err != nil {
		return fmt.Errorf("labelstore: clear %s: %w", addr, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
