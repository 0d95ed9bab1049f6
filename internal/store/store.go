// Package store provides SQLite persistence for workerwatch: a small
// key-value cache (resolved account ID and friends) plus the deployment
// history consulted by status commands.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"workerwatch/internal/deploy"
	"workerwatch/internal/errors"
	"workerwatch/internal/log"

	// Import pure-Go SQLite driver for database/sql (no CGO required)
	_ "modernc.org/sqlite"
)

// historyKeep bounds the deployments table; older rows are pruned on insert
const historyKeep = 200

// Store wraps the state database
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// New creates a store for the given database path
func New(path string) *Store {
	return &Store{path: path}
}

// Init opens the database and creates tables
func (s *Store) Init() error {
	dbDir := filepath.Dir(s.path)
	if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// WAL for concurrent reads, busy timeout so the daemon and CLI can
	// share the file without immediate lock errors
	dsn := s.path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping state database: %w", err)
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()

	if err := s.createTables(); err != nil {
		return fmt.Errorf("failed to create state tables: %w", err)
	}

	log.Debug("state database ready: %s", s.path)
	return nil
}

func (s *Store) createTables() error {
	db := s.getDB()
	if db == nil {
		return fmt.Errorf("state database not initialized")
	}

	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS deployments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			seq INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			ok INTEGER NOT NULL,
			version_id TEXT,
			urls TEXT,
			error TEXT,
			cause TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_deployments_started ON deployments(started_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *Store) getDB() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Get reads a key from the kv table, ErrKeyNotFound when absent.
// A nil store behaves as an empty one.
func (s *Store) Get(key string) (string, error) {
	if s == nil {
		return "", errors.ErrKeyNotFound
	}
	db := s.getDB()
	if db == nil {
		return "", errors.ErrKeyNotFound
	}

	var value string
	err := db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", errors.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

// Set upserts a key in the kv table. A nil store silently skips.
func (s *Store) Set(key, value string) error {
	if s == nil {
		return nil
	}
	db := s.getDB()
	if db == nil {
		return nil
	}

	query := `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	          ON CONFLICT(key)
	          DO UPDATE SET value = ?, updated_at = ?`
	now := time.Now().UnixMilli()
	if _, err := db.Exec(query, key, value, now, value, now); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key from the kv table
func (s *Store) Delete(key string) error {
	if s == nil {
		return nil
	}
	db := s.getDB()
	if db == nil {
		return nil
	}
	if _, err := db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Deployment is one settled attempt as persisted
type Deployment struct {
	ID        int64
	Seq       int
	StartedAt time.Time
	Duration  time.Duration
	OK        bool
	VersionID string
	URLs      []string
	Error     string
	Cause     string
}

// RecordDeployment persists a settled attempt and prunes old history.
// A nil store silently skips; recording failures never block the loop.
func (s *Store) RecordDeployment(o *deploy.Outcome) error {
	if s == nil {
		return nil
	}
	db := s.getDB()
	if db == nil {
		return nil
	}

	okInt := 0
	errMsg := ""
	if o.OK() {
		okInt = 1
	} else if o.Err != nil {
		errMsg = o.Err.Error()
	}

	query := `INSERT INTO deployments (seq, started_at, duration_ms, ok, version_id, urls, error, cause)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.Exec(query,
		o.Seq,
		o.Started.UnixMilli(),
		o.Duration.Milliseconds(),
		okInt,
		o.VersionID,
		strings.Join(o.URLs, " "),
		errMsg,
		o.Cause,
	)
	if err != nil {
		return fmt.Errorf("failed to record deployment: %w", err)
	}

	prune := `DELETE FROM deployments WHERE id NOT IN (
	            SELECT id FROM deployments ORDER BY id DESC LIMIT ?)`
	if _, err := db.Exec(prune, historyKeep); err != nil {
		return fmt.Errorf("failed to prune deployment history: %w", err)
	}
	return nil
}

// RecentDeployments returns the newest attempts, most recent first
func (s *Store) RecentDeployments(limit int) ([]Deployment, error) {
	if s == nil {
		return nil, nil
	}
	db := s.getDB()
	if db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT id, seq, started_at, duration_ms, ok, version_id, urls, error, cause
	          FROM deployments
	          ORDER BY id DESC
	          LIMIT ?`
	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var deployments []Deployment
	for rows.Next() {
		var d Deployment
		var startedMS, durationMS int64
		var okInt int
		var versionID, urls, errMsg, cause sql.NullString

		if err := rows.Scan(&d.ID, &d.Seq, &startedMS, &durationMS, &okInt, &versionID, &urls, &errMsg, &cause); err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}

		d.StartedAt = time.UnixMilli(startedMS)
		d.Duration = time.Duration(durationMS) * time.Millisecond
		d.OK = okInt == 1
		d.VersionID = versionID.String
		if urls.String != "" {
			d.URLs = strings.Fields(urls.String)
		}
		d.Error = errMsg.String
		d.Cause = cause.String

		deployments = append(deployments, d)
	}

	return deployments, rows.Err()
}

// LastDeployment returns the most recent attempt, nil when history is empty
func (s *Store) LastDeployment() (*Deployment, error) {
	deployments, err := s.RecentDeployments(1)
	if err != nil {
		return nil, err
	}
	if len(deployments) == 0 {
		return nil, nil
	}
	return &deployments[0], nil
}
