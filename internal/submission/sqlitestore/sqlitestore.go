// Package sqlitestore persists submissions in a SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/dshills/promptqa/internal/submission"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS submissions (
	id           TEXT PRIMARY KEY,
	asset_id     TEXT NOT NULL,
	version      TEXT NOT NULL,
	submitter_id TEXT NOT NULL,
	status       TEXT NOT NULL,
	score        INTEGER NOT NULL,
	created_unix INTEGER NOT NULL,
	body         TEXT NOT NULL
)`

// Store is a submission.Store backed by a single SQLite file.
type Store struct {
	db *sql.DB
}

var _ submission.Store = (*Store)(nil)

// Open opens or creates the database at path and ensures the table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	// SQLite serializes writers; one connection keeps inserts from failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: create table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert adds sub. An existing id yields submission.ErrDuplicateID.
func (s *Store) Insert(ctx context.Context, sub submission.Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("sqlitestore: encode %s: %w", sub.ID, err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, asset_id, version, submitter_id, status, score, created_unix, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		sub.ID, sub.AssetID, sub.Version, sub.SubmitterID, string(sub.Status), sub.Score,
		sub.CreatedAt.UnixNano(), string(body))
	if err != nil {
		return fmt.Errorf("sqlitestore: insert %s: %w", sub.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitestore: insert %s: %w", sub.ID, err)
	}
	if n == 0 {
		return submission.ErrDuplicateID
	}
	return nil
}

// Get returns the submission with id or submission.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (submission.Submission, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM submissions WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return submission.Submission{}, submission.ErrNotFound
	}
	if err != nil {
		return submission.Submission{}, fmt.Errorf("sqlitestore: get %s: %w", id, err)
	}
	return decode(body)
}

// List returns every submission ordered by creation time, then id.
func (s *Store) List(ctx context.Context) ([]submission.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM submissions ORDER BY created_unix, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list: %w", err)
	}
	defer rows.Close()

	out := []submission.Submission{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("sqlitestore: list: %w", err)
		}
		sub, err := decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: list: %w", err)
	}
	return out, nil
}

func decode(body string) (submission.Submission, error) {
	var sub submission.Submission
	if err := json.Unmarshal([]byte(body), &sub); err != nil {
		return submission.Submission{}, fmt.Errorf("sqlitestore: decode: %w", err)
	}
	return sub, nil
}
