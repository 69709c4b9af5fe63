package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Store owns the SQLite connection pool and hands out repositories.
type Store struct {
	db  *sql.DB
	seq *sequenceCounter
}

// Open creates a new Store connected to the SQLite database at dsn.
// Pragmas are applied per connection through the DSN and the schema is
// migrated before returning.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	seq, err := newSequenceCounter(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, seq: seq}, nil
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EventRepo returns an EventRepo backed by this store.
func (s *Store) EventRepo() EventRepo {
	return &eventRepo{db: s.db, seq: s.seq}
}

// SessionRepo returns a SessionRepo backed by this store.
func (s *Store) SessionRepo() SessionRepo {
	return &sessionRepo{db: s.db, seq: s.seq}
}

var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"synchronous(NORMAL)",
}

// withPragmas appends the connection pragmas as _pragma query parameters so
// every pooled connection gets them, not just the first.
func withPragmas(dsn string) string {
	params := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + sep + strings.Join(params, "&")
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS llm_request_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sequence INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		purpose TEXT NOT NULL,
		student_id TEXT NOT NULL DEFAULT '',
		topic_id TEXT NOT NULL DEFAULT '',
		turn INTEGER NOT NULL DEFAULT 0,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		request_body TEXT NOT NULL DEFAULT '',
		response_body TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_llm_events_sequence ON llm_request_events(sequence)`,
	`CREATE TABLE IF NOT EXISTS session_records (
		id TEXT PRIMARY KEY,
		sequence INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		run_id TEXT NOT NULL DEFAULT '',
		student_id TEXT NOT NULL,
		topic_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		final_level INTEGER NOT NULL DEFAULT 0,
		mean_estimate REAL NOT NULL DEFAULT 0,
		scoring_level INTEGER NOT NULL DEFAULT 0,
		turns INTEGER NOT NULL DEFAULT 0,
		stop_reason TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_session_records_run ON session_records(run_id)`,
	`CREATE TABLE IF NOT EXISTS turn_records (
		session_id TEXT NOT NULL REFERENCES session_records(id) ON DELETE CASCADE,
		turn INTEGER NOT NULL,
		question TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		student_response TEXT NOT NULL,
		correctness TEXT NOT NULL,
		confidence_level INTEGER NOT NULL,
		knowledge_gaps TEXT NOT NULL DEFAULT '[]',
		strengths TEXT NOT NULL DEFAULT '[]',
		reasoning TEXT NOT NULL DEFAULT '',
		estimated_level INTEGER NOT NULL,
		level_confidence REAL NOT NULL,
		stability_count INTEGER NOT NULL,
		PRIMARY KEY (session_id, turn)
	)`,
}

func migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// DefaultDBPath resolves the database file path in priority order:
// 1. TUTORBENCH_DB environment variable
// 2. $XDG_DATA_HOME/tutorbench/tutorbench.db
// 3. ~/.local/share/tutorbench/tutorbench.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("TUTORBENCH_DB"); p != "" {
		return p, EnsureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "tutorbench", "tutorbench.db")
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}
