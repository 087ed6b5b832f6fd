// Package storage persists search history and engine health to SQLite: a log
// of searches, every terminal engine outcome, and the circuit breaker
// suspensions so restarts do not forget which upstreams were misbehaving.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/metisearch/metis/pkg/core"
)

type History struct {
	db *sql.DB
}

func NewHistory(dbPath string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA temp_store = memory",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			if cerr := db.Close(); cerr != nil {
				err = fmt.Errorf("%w (also closing db: %v)", err, cerr)
			}
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	h := &History{db: db}
	if err := h.createSchema(); err != nil {
		if cerr := db.Close(); cerr != nil {
			err = fmt.Errorf("%w (also closing db: %v)", err, cerr)
		}
		return nil, err
	}
	return h, nil
}

func (h *History) createSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS searches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			query_id TEXT NOT NULL,
			terms TEXT NOT NULL,
			categories TEXT,
			page INTEGER NOT NULL DEFAULT 1,
			result_count INTEGER NOT NULL DEFAULT 0,
			error_count INTEGER NOT NULL DEFAULT 0,
			elapsed_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_searches_created ON searches(created_at)`,
		`CREATE TABLE IF NOT EXISTS engine_outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			query_id TEXT NOT NULL,
			engine TEXT NOT NULL,
			kind TEXT NOT NULL,
			http_status INTEGER NOT NULL DEFAULT 0,
			result_count INTEGER NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			elapsed_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_engine ON engine_outcomes(engine, created_at)`,
		`CREATE TABLE IF NOT EXISTS suspensions (
			engine TEXT PRIMARY KEY,
			until DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := h.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// RecordSearch logs one finished search.
func (h *History) RecordSearch(query core.Query, resultCount, errorCount int, elapsed time.Duration) error {
	_, err := h.db.Exec(
		`INSERT INTO searches (query_id, terms, categories, page, result_count, error_count, elapsed_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		query.ID.String(), query.Terms, strings.Join(query.Categories, ","),
		query.PageNo, resultCount, errorCount, elapsed.Milliseconds(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording search: %w", err)
	}
	return nil
}

// RecordOutcome logs one terminal engine outcome.
func (h *History) RecordOutcome(query core.Query, outcome core.EngineOutcome) error {
	_, err := h.db.Exec(
		`INSERT INTO engine_outcomes (query_id, engine, kind, http_status, result_count, attempts, elapsed_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		query.ID.String(), outcome.Engine, string(outcome.Kind),
		outcome.HTTPStatus, len(outcome.Records), outcome.Attempts,
		outcome.Elapsed.Milliseconds(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording outcome: %w", err)
	}
	return nil
}

// EngineStats summarizes one engine's recent behavior.
type EngineStats struct {
	Engine       string  `json:"engine"`
	Total        int     `json:"total"`
	Successes    int     `json:"successes"`
	Failures     int     `json:"failures"`
	AvgElapsedMs float64 `json:"avg_elapsed_ms"`
	LastKind     string  `json:"last_kind"`
}

// Stats aggregates per-engine outcomes over the given window.
func (h *History) Stats(since time.Duration) ([]EngineStats, error) {
	cutoff := time.Now().Add(-since).UTC().Format(time.RFC3339)
	rows, err := h.db.Query(
		`SELECT engine,
			COUNT(*),
			SUM(CASE WHEN kind = 'success' THEN 1 ELSE 0 END),
			SUM(CASE WHEN kind != 'success' THEN 1 ELSE 0 END),
			AVG(elapsed_ms),
			(SELECT kind FROM engine_outcomes o2
			 WHERE o2.engine = engine_outcomes.engine
			 ORDER BY o2.id DESC LIMIT 1)
		 FROM engine_outcomes
		 WHERE created_at >= ?
		 GROUP BY engine
		 ORDER BY engine`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying engine stats: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var stats []EngineStats
	for rows.Next() {
		var s EngineStats
		if err := rows.Scan(&s.Engine, &s.Total, &s.Successes, &s.Failures,
			&s.AvgElapsedMs, &s.LastKind); err != nil {
			return nil, fmt.Errorf("scanning engine stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// SearchLogEntry is one row of the search history.
type SearchLogEntry struct {
	Terms       string    `json:"terms"`
	Categories  string    `json:"categories,omitempty"`
	Page        int       `json:"page"`
	ResultCount int       `json:"result_count"`
	ErrorCount  int       `json:"error_count"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecentSearches returns the newest entries of the search log.
func (h *History) RecentSearches(limit int) ([]SearchLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.Query(
		`SELECT terms, categories, page, result_count, error_count, elapsed_ms, created_at
		 FROM searches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying search log: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []SearchLogEntry
	for rows.Next() {
		var e SearchLogEntry
		if err := rows.Scan(&e.Terms, &e.Categories, &e.Page, &e.ResultCount,
			&e.ErrorCount, &e.ElapsedMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning search log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveSuspensions replaces the persisted breaker suspensions with the given
// snapshot. Called on shutdown.
func (h *History) SaveSuspensions(suspensions map[string]time.Time) error {
	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`DELETE FROM suspensions`); err != nil {
		return fmt.Errorf("clearing suspensions: %w", err)
	}
	for engine, until := range suspensions {
		if _, err := tx.Exec(
			`INSERT INTO suspensions (engine, until) VALUES (?, ?)`,
			engine, until.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("saving suspension for %s: %w", engine, err)
		}
	}
	return tx.Commit()
}

// LoadSuspensions returns the persisted suspensions that have not expired
// yet. Called on startup to re-seed the circuit breaker.
func (h *History) LoadSuspensions() (map[string]time.Time, error) {
	rows, err := h.db.Query(`SELECT engine, until FROM suspensions`)
	if err != nil {
		return nil, fmt.Errorf("querying suspensions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	now := time.Now()
	suspensions := make(map[string]time.Time)
	for rows.Next() {
		var engine, until string
		if err := rows.Scan(&engine, &until); err != nil {
			return nil, fmt.Errorf("scanning suspension: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339, until)
		if err != nil {
			continue
		}
		if parsed.After(now) {
			suspensions[engine] = parsed
		}
	}
	return suspensions, rows.Err()
}

// Prune removes history older than the retention window.
func (h *History) Prune(retention time.Duration) error {
	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339)
	if _, err := h.db.Exec(`DELETE FROM searches WHERE created_at <= ?`, cutoff); err != nil {
		return fmt.Errorf("pruning searches: %w", err)
	}
	if _, err := h.db.Exec(`DELETE FROM engine_outcomes WHERE created_at <= ?`, cutoff); err != nil {
		return fmt.Errorf("pruning outcomes: %w", err)
	}
	return nil
}

// Optimize runs SQLite maintenance. Called periodically by the server.
func (h *History) Optimize() error {
	if _, err := h.db.Exec(`PRAGMA optimize`); err != nil {
		return fmt.Errorf("optimizing database: %w", err)
	}
	if _, err := h.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("checkpointing wal: %w", err)
	}
	return nil
}

func (h *History) Close() error {
	return h.db.Close()
}
