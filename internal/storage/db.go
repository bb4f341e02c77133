package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// New creates and initializes a new database connection at dbPath. If
// dbPath's directory doesn't exist, it's created.
func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB cache
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	db := &DB{conn: conn, path: dbPath}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate runs database migrations.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS downloads (
		job_id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		title TEXT,
		cover_url TEXT,
		url TEXT NOT NULL,
		total_size INTEGER DEFAULT 0,
		downloaded INTEGER DEFAULT 0,
		status TEXT DEFAULT 'pending',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME,
		error_message TEXT,
		retry_count INTEGER DEFAULT 0,
		max_retries INTEGER DEFAULT 3
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);
	CREATE INDEX IF NOT EXISTS idx_downloads_created_at ON downloads(created_at DESC);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Conn returns the underlying database connection for advanced queries.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Status represents the persisted state of a Job.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusError       Status = "error"
)

// Job is one row of the downloads table: a planned or active download.
type Job struct {
	JobID        string     `json:"jobId"`
	Filename     string     `json:"filename"`
	Title        string     `json:"title"`
	CoverURL     string     `json:"coverUrl"`
	URL          string     `json:"url"`
	TotalSize    int64      `json:"totalSize"`
	Downloaded   int64      `json:"downloaded"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt"`
	ErrorMessage string     `json:"errorMessage"`
	RetryCount   int        `json:"retryCount"`
	MaxRetries   int        `json:"maxRetries"`
}
