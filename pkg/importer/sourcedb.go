package importer

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Source represents a row from the import_sources table.
type Source struct {
	AdapterID   string
	Kind        string
	Description string
	SourceURL   string
	License     string
	LastCheck   *int64
	LastStatus  *int
	LastError   *string
	UpdatedAt   int64
}

// Run is one adapter execution recorded in import_runs.
type Run struct {
	ID         string `yaml:"id" json:"id"`
	AdapterID  string `yaml:"adapter" json:"adapter"`
	SourceURL  string `yaml:"source_url" json:"source_url"`
	StartedAt  int64  `yaml:"started_at" json:"started_at"`
	FinishedAt *int64 `yaml:"finished_at,omitempty" json:"finished_at,omitempty"`
	Status     string `yaml:"status" json:"status"`
	Processed  int    `yaml:"processed" json:"processed"`
	Resolved   int    `yaml:"resolved" json:"resolved"`
	Failed     int    `yaml:"failed" json:"failed"`
	Skipped    int    `yaml:"skipped" json:"skipped"`
	Error      string `yaml:"error,omitempty" json:"error,omitempty"`
}

// Run statuses.
const (
	RunRunning = "running"
	RunOK      = "ok"
	RunPartial = "partial"
	RunFailed  = "failed"
)

// SourceDB manages the import_sources and import_runs SQLite tables.
type SourceDB struct {
	db *sql.DB
}

// OpenSourceDB opens (or creates) the SQLite database at path and ensures
// its tables exist.
func OpenSourceDB(path string) (*SourceDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create source db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open source db: %w", err)
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS import_sources (
			adapter_id   TEXT PRIMARY KEY,
			kind         TEXT NOT NULL,
			description  TEXT NOT NULL,
			source_url   TEXT NOT NULL,
			license      TEXT NOT NULL DEFAULT '',
			last_check   INTEGER,
			last_status  INTEGER,
			last_error   TEXT,
			updated_at   INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS import_runs (
			run_id       TEXT PRIMARY KEY,
			adapter_id   TEXT NOT NULL,
			source_url   TEXT NOT NULL,
			started_at   INTEGER NOT NULL,
			finished_at  INTEGER,
			status       TEXT NOT NULL,
			processed    INTEGER NOT NULL DEFAULT 0,
			resolved     INTEGER NOT NULL DEFAULT 0,
			failed       INTEGER NOT NULL DEFAULT 0,
			skipped      INTEGER NOT NULL DEFAULT 0,
			error        TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create source db tables: %w", err)
		}
	}

	return &SourceDB{db: db}, nil
}

// Close closes the SQLite connection.
func (s *SourceDB) Close() error {
	return s.db.Close()
}

// Seed inserts default rows for each adapter (INSERT OR IGNORE: existing rows
// are left untouched so that manual URL overrides survive restarts).
func (s *SourceDB) Seed(adapters []Adapter) error {
	const q = `INSERT OR IGNORE INTO import_sources
		(adapter_id, kind, description, source_url, license, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	now := time.Now().Unix()
	for _, a := range adapters {
		if _, err := s.db.Exec(q, a.ID(), a.Kind(), a.Description(), a.DefaultURL(), a.License(), now); err != nil {
			return fmt.Errorf("seed %s: %w", a.ID(), err)
		}
	}
	return nil
}

// GetURL returns the current source URL for a given adapter ID.
func (s *SourceDB) GetURL(adapterID string) (string, error) {
	var url string
	err := s.db.QueryRow(`SELECT source_url FROM import_sources WHERE adapter_id = ?`, adapterID).Scan(&url)
	if err != nil {
		return "", fmt.Errorf("get url for %s: %w", adapterID, err)
	}
	return url, nil
}

// SetURL updates the source URL for a given adapter and records the change timestamp.
func (s *SourceDB) SetURL(adapterID, url string) error {
	res, err := s.db.Exec(
		`UPDATE import_sources SET source_url = ?, updated_at = ? WHERE adapter_id = ?`,
		url, time.Now().Unix(), adapterID,
	)
	if err != nil {
		return fmt.Errorf("set url for %s: %w", adapterID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("adapter %s not found in import_sources", adapterID)
	}
	return nil
}

// UpdateCheck persists the result of an availability check.
func (s *SourceDB) UpdateCheck(adapterID string, status int, checkErr string) error {
	now := time.Now().Unix()
	var errPtr *string
	if checkErr != "" {
		errPtr = &checkErr
	}
	_, err := s.db.Exec(
		`UPDATE import_sources SET last_check = ?, last_status = ?, last_error = ? WHERE adapter_id = ?`,
		now, status, errPtr, adapterID,
	)
	if err != nil {
		return fmt.Errorf("update check for %s: %w", adapterID, err)
	}
	return nil
}

// ListSources returns all rows from import_sources ordered by adapter_id.
func (s *SourceDB) ListSources() ([]Source, error) {
	rows, err := s.db.Query(`SELECT adapter_id, kind, description, source_url, license,
		last_check, last_status, last_error, updated_at
		FROM import_sources ORDER BY adapter_id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.AdapterID, &src.Kind, &src.Description, &src.SourceURL,
			&src.License, &src.LastCheck, &src.LastStatus, &src.LastError, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// StartRun records the start of an adapter run and returns its id.
func (s *SourceDB) StartRun(adapterID, sourceURL string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO import_runs (run_id, adapter_id, source_url, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		id, adapterID, sourceURL, time.Now().Unix(), RunRunning,
	)
	if err != nil {
		return "", fmt.Errorf("start run for %s: %w", adapterID, err)
	}
	return id, nil
}

// FinishRun stores the final counts and status of a run.
func (s *SourceDB) FinishRun(r Run) error {
	res, err := s.db.Exec(
		`UPDATE import_runs SET finished_at = ?, status = ?, processed = ?, resolved = ?,
			failed = ?, skipped = ?, error = ? WHERE run_id = ?`,
		time.Now().Unix(), r.Status, r.Processed, r.Resolved, r.Failed, r.Skipped, r.Error, r.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", r.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found in import_runs", r.ID)
	}
	return nil
}

// ListRuns returns the most recent runs first, at most limit (0 = all).
func (s *SourceDB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT run_id, adapter_id, source_url, started_at, finished_at, status,
		processed, resolved, failed, skipped, error
		FROM import_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.AdapterID, &r.SourceURL, &r.StartedAt, &r.FinishedAt, &r.Status,
			&r.Processed, &r.Resolved, &r.Failed, &r.Skipped, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
