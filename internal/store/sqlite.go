package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// dsnPragmas make concurrent writers wait for the lock instead of failing
// with SQLITE_BUSY.
const dsnPragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrStorageUnavailable, err)
	}
	// One writer connection; queued callers wait on the pool instead of the
	// file lock.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS facts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category TEXT,
			content TEXT,
			confidence_score REAL DEFAULT 1.0,
			created_at TEXT,
			last_updated TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS configuration (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			content TEXT,
			embedding BLOB,
			metadata TEXT
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("%w: failed to init schema: %v", ErrStorageUnavailable, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Facts

func (s *SQLiteStore) AddFact(ctx context.Context, category, content string, confidence float64) (Fact, error) {
	now := time.Now().UTC()
	stamp := now.Format(timeLayout)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO facts (category, content, confidence_score, created_at, last_updated) VALUES (?, ?, ?, ?, ?)`,
		category, content, confidence, stamp, stamp)
	if err != nil {
		return Fact{}, fmt.Errorf("%w: failed to insert fact: %v", ErrStorageUnavailable, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Fact{}, fmt.Errorf("%w: failed to read fact id: %v", ErrStorageUnavailable, err)
	}

	return Fact{
		ID:          id,
		Category:    category,
		Content:     content,
		Confidence:  confidence,
		CreatedAt:   now,
		LastUpdated: now,
	}, nil
}

func (s *SQLiteStore) ListFacts(ctx context.Context, opts ListOptions) ([]Fact, error) {
	query := `SELECT id, category, content, confidence_score, created_at, last_updated FROM facts`
	if opts.Order == OrderInsertion {
		query += ` ORDER BY id ASC`
	} else {
		query += ` ORDER BY id DESC`
	}

	var args []any
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query facts: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	facts := []Fact{}
	for rows.Next() {
		var f Fact
		var created, updated sql.NullString
		if err := rows.Scan(&f.ID, &f.Category, &f.Content, &f.Confidence, &created, &updated); err != nil {
			return nil, fmt.Errorf("%w: failed to scan fact: %v", ErrStorageUnavailable, err)
		}
		f.CreatedAt = parseTime(created)
		f.LastUpdated = parseTime(updated)
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read facts: %v", ErrStorageUnavailable, err)
	}
	return facts, nil
}

func parseTime(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Configuration

func (s *SQLiteStore) SetConfig(key, value string) error {
	query := `INSERT INTO configuration (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.Exec(query, key, value); err != nil {
		return fmt.Errorf("%w: failed to save config: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) GetConfig(key string) (string, error) {
	query := `SELECT value FROM configuration WHERE key = ?`
	row := s.db.QueryRow(query, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("%w: failed to read config: %v", ErrStorageUnavailable, err)
	}
	return value, nil
}
