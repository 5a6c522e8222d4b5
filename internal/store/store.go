package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kaminskia1/excel-autograder/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		questions TEXT NOT NULL DEFAULT '[]',
		key_file_name TEXT NOT NULL DEFAULT '',
		key_file BLOB,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assignment_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		points REAL NOT NULL DEFAULT 0,
		max_points REAL NOT NULL DEFAULT 0,
		score REAL NOT NULL DEFAULT 0,
		questions TEXT NOT NULL DEFAULT '[]',
		properties TEXT NOT NULL DEFAULT '{}',
		error TEXT NOT NULL DEFAULT '',
		graded_at DATETIME NOT NULL,
		UNIQUE (assignment_id, file_name),
		FOREIGN KEY (assignment_id) REFERENCES assignments(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS imports (
		hash TEXT PRIMARY KEY,
		assignment_id TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		imported_at DATETIME NOT NULL,
		FOREIGN KEY (assignment_id) REFERENCES assignments(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateAssignment stores a new assignment and returns its generated ID.
func (s *Store) CreateAssignment(a model.Assignment) (string, error) {
	questions, err := json.Marshal(nonNil(a.Questions))
	if err != nil {
		return "", fmt.Errorf("encode questions: %w", err)
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO assignments (id, name, questions, key_file_name, key_file, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, a.Name, string(questions), a.KeyFileName, a.KeyFile, now, now,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetAssignment returns an assignment, including its answer key, by ID.
func (s *Store) GetAssignment(id string) (model.Assignment, error) {
	var (
		a         model.Assignment
		questions string
	)
	err := s.db.QueryRow(
		`SELECT id, name, questions, key_file_name, key_file, created_at, updated_at
		 FROM assignments WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &questions, &a.KeyFileName, &a.KeyFile, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(questions), &a.Questions); err != nil {
		return a, fmt.Errorf("decode questions of %s: %w", id, err)
	}
	return a, nil
}

// ListAssignments returns all assignments without their answer keys, newest first.
func (s *Store) ListAssignments() ([]model.Assignment, error) {
	rows, err := s.db.Query(
		`SELECT id, name, questions, key_file_name, created_at, updated_at
		 FROM assignments ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Assignment
	for rows.Next() {
		var (
			a         model.Assignment
			questions string
		)
		if err := rows.Scan(&a.ID, &a.Name, &questions, &a.KeyFileName, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(questions), &a.Questions); err != nil {
			return nil, fmt.Errorf("decode questions of %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAssignment replaces the name and questions of an assignment. The
// answer key is replaced only when a.KeyFile is non-empty.
func (s *Store) UpdateAssignment(a model.Assignment) error {
	questions, err := json.Marshal(nonNil(a.Questions))
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	query := `UPDATE assignments SET name = ?, questions = ?, updated_at = ? WHERE id = ?`
	args := []any{a.Name, string(questions), time.Now().UTC(), a.ID}
	if len(a.KeyFile) > 0 {
		query = `UPDATE assignments SET name = ?, questions = ?, key_file_name = ?, key_file = ?, updated_at = ? WHERE id = ?`
		args = []any{a.Name, string(questions), a.KeyFileName, a.KeyFile, time.Now().UTC(), a.ID}
	}
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	return expectRow(res, "assignment "+a.ID)
}

// DeleteAssignment removes an assignment and its submissions.
func (s *Store) DeleteAssignment(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM submissions WHERE assignment_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM imports WHERE assignment_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM assignments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := expectRow(res, "assignment "+id); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertSubmission stores a graded submission. Regrading a file with the same
// name replaces the previous result.
func (s *Store) UpsertSubmission(sub model.Submission) (int64, error) {
	questions, err := json.Marshal(nonNil(sub.Questions))
	if err != nil {
		return 0, fmt.Errorf("encode results: %w", err)
	}
	props, err := json.Marshal(sub.Properties)
	if err != nil {
		return 0, fmt.Errorf("encode properties: %w", err)
	}
	gradedAt := sub.GradedAt
	if gradedAt.IsZero() {
		gradedAt = time.Now().UTC()
	}
	var id int64
	err = s.db.QueryRow(
		`INSERT INTO submissions (assignment_id, file_name, points, max_points, score, questions, properties, error, graded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(assignment_id, file_name) DO UPDATE SET
		   points = excluded.points, max_points = excluded.max_points, score = excluded.score,
		   questions = excluded.questions, properties = excluded.properties,
		   error = excluded.error, graded_at = excluded.graded_at
		 RETURNING id`,
		sub.AssignmentID, sub.FileName, sub.Points, sub.MaxPoints, sub.Score,
		string(questions), string(props), sub.Error, gradedAt,
	).Scan(&id)
	return id, err
}

// ListSubmissions returns the graded submissions of an assignment ordered by
// file name.
func (s *Store) ListSubmissions(assignmentID string) ([]model.Submission, error) {
	rows, err := s.db.Query(
		`SELECT id, assignment_id, file_name, points, max_points, score, questions, properties, error, graded_at
		 FROM submissions WHERE assignment_id = ? ORDER BY file_name`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Submission
	for rows.Next() {
		var (
			sub               model.Submission
			questions, props string
		)
		if err := rows.Scan(&sub.ID, &sub.AssignmentID, &sub.FileName, &sub.Points, &sub.MaxPoints,
			&sub.Score, &questions, &props, &sub.Error, &sub.GradedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(questions), &sub.Questions); err != nil {
			return nil, fmt.Errorf("decode results of %s: %w", sub.FileName, err)
		}
		if err := json.Unmarshal([]byte(props), &sub.Properties); err != nil {
			return nil, fmt.Errorf("decode properties of %s: %w", sub.FileName, err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// SubmissionCount returns the number of graded submissions of an assignment.
func (s *Store) SubmissionCount(assignmentID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM submissions WHERE assignment_id = ?`, assignmentID).Scan(&count)
	return count, err
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
