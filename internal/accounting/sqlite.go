package accounting

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Schema for the accounting database.
const schema = `
CREATE TABLE IF NOT EXISTS requests (
    id TEXT PRIMARY KEY,
    method TEXT NOT NULL,
    path TEXT NOT NULL,
    model TEXT,
    status INTEGER NOT NULL,
    tool_rounds INTEGER DEFAULT 0,
    tool_calls INTEGER DEFAULT 0,
    streaming BOOLEAN DEFAULT FALSE,
    hybrid BOOLEAN DEFAULT FALSE,
    duration_ms INTEGER,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_requests_created_at ON requests(created_at DESC);
`

// DefaultDBPath returns the accounting database location under the
// user data directory.
func DefaultDBPath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "toolgate", "requests.db"), nil
}

// NewSQLiteStore opens (creating if needed) the accounting database at path.
// An empty path selects the default location.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		var err error
		path, err = DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("get db path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Record(rec Record) error {
	_, err := s.db.Exec(`
		INSERT INTO requests (id, method, path, model, status, tool_rounds, tool_calls, streaming, hybrid, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Method, rec.Path, rec.Model, rec.Status,
		rec.ToolRounds, rec.ToolCalls, rec.Streaming, rec.Hybrid,
		rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Summary() (Summary, error) {
	var sum Summary
	row := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(tool_rounds), 0),
		       COALESCE(SUM(tool_calls), 0),
		       COALESCE(SUM(CASE WHEN hybrid THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status >= 500 THEN 1 ELSE 0 END), 0)
		FROM requests`)
	if err := row.Scan(&sum.Requests, &sum.ToolRounds, &sum.ToolCalls, &sum.Hybrid, &sum.Errors); err != nil {
		return Summary{}, fmt.Errorf("summarize requests: %w", err)
	}
	return sum, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
