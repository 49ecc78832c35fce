// Package store keeps a log of track decode results in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sergev/fluxtrack/track"
)

const schemaVersion = "1"

// Entry is one stored track result.
type Entry struct {
	ID        int64
	File      string
	Time      time.Time
	Format    string
	Cylinder  int
	Head      int
	Declared  int
	Found     int
	Missing   int
	CRCErrors int
	Errors    string // 'E' or '.' per sector
}

// String formats the entry as one history line.
func (e Entry) String() string {
	return fmt.Sprintf("%d %s %s c%d h%d %s %d/%d missing %d crc %d %s",
		e.ID, e.Time.Local().Format("2006-01-02 15:04:05"), e.Format,
		e.Cylinder, e.Head, e.File, e.Found, e.Declared, e.Missing, e.CRCErrors, e.Errors)
}

// Store is a result log backed by a SQLite database file.
type Store struct {
	mu   sync.Mutex // Serialises writers
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		PRAGMA synchronous = NORMAL;
		PRAGMA temp_store = MEMORY;

		CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file TEXT NOT NULL,
			time INTEGER NOT NULL,
			format TEXT NOT NULL,
			cylinder INTEGER NOT NULL,
			head INTEGER NOT NULL,
			declared INTEGER NOT NULL,
			found INTEGER NOT NULL,
			missing INTEGER NOT NULL,
			crc_errors INTEGER NOT NULL,
			errors TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_results_file ON results(file);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}

	if _, err := db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)`, schemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to update metadata: %w", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file name.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record appends the reports of one input file in a single transaction.
func (s *Store) Record(file string, reports ...track.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO results (file, time, format, cylinder, head, declared, found, missing, crc_errors, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := s.now().Unix()
	for _, r := range reports {
		_, err := stmt.Exec(file, now, r.Name, r.Cylinder, r.Head,
			r.Declared, r.Found, r.Missing(), r.CRCErrors, r.ErrorString())
		if err != nil {
			return fmt.Errorf("failed to record %s c%d h%d: %w", file, r.Cylinder, r.Head, err)
		}
	}
	return tx.Commit()
}

// List returns the newest entries first. A limit of 0 returns all of them.
// A non-empty file restricts the result to that input.
func (s *Store) List(file string, limit int) ([]Entry, error) {
	query := `SELECT id, file, time, format, cylinder, head, declared, found, missing, crc_errors, errors FROM results`
	var args []any
	if file != "" {
		query += ` WHERE file = ?`
		args = append(args, file)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var unix int64
		if err := rows.Scan(&e.ID, &e.File, &unix, &e.Format, &e.Cylinder, &e.Head,
			&e.Declared, &e.Found, &e.Missing, &e.CRCErrors, &e.Errors); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		e.Time = time.Unix(unix, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
