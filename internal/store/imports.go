package store

import (
	"database/sql"
	"errors"
	"time"
)

// ImportedAssignment returns the assignment created from content with the
// given hash. Returns empty string and nil error if nothing was imported.
func (s *Store) ImportedAssignment(hash string) (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT assignment_id FROM imports WHERE hash = ?`, hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// RecordImport remembers that content with hash produced the assignment.
func (s *Store) RecordImport(hash, assignmentID, source string) error {
	_, err := s.db.Exec(
		`INSERT INTO imports (hash, assignment_id, source, imported_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET assignment_id = excluded.assignment_id,
		 source = excluded.source, imported_at = excluded.imported_at`,
		hash, assignmentID, source, time.Now().UTC(),
	)
	return err
}
