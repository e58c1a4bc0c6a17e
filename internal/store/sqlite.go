package store

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/valentindosimont/ccem/internal/usage"
)

// tsLayout sorts lexically in UTC.
const tsLayout = "2006-01-02T15:04:05.000Z"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store archives daily usage rollups in SQLite so history outlives the
// session logs it was computed from.
type Store struct {
	db *sql.DB
}

// PassRecord is one entry of the pass log.
type PassRecord struct {
	ID         string    `json:"id"`
	FinishedAt time.Time `json:"finishedAt"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
}

// New creates a new Store with the database at the given path
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; the pragmas below are per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		return fmt.Errorf("set journal_mode WAL: %w", err)
	}
	if _, err := s.db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}

	schema, err := migrationsFS.ReadFile("migrations/001_initial.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}

	_, err = s.db.Exec(string(schema))
	if err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}

	return nil
}

// SaveDaily upserts every day of history.
func (s *Store) SaveDaily(history map[string]usage.TokenUsageWithCost, updatedAt time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save daily: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO daily_usage (date, input_tokens, output_tokens, cache_read_tokens,
		                         cache_creation_tokens, cost, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			cache_read_tokens = excluded.cache_read_tokens,
			cache_creation_tokens = excluded.cache_creation_tokens,
			cost = excluded.cost,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("save daily: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	ts := updatedAt.UTC().Format(tsLayout)
	for date, u := range history {
		if _, err := stmt.Exec(date, u.InputTokens, u.OutputTokens, u.CacheReadTokens,
			u.CacheCreationTokens, u.Cost, ts); err != nil {
			return fmt.Errorf("save daily %s: %w", date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save daily: commit: %w", err)
	}
	return nil
}

// Daily returns archived days within [from, to] in ascending order. Empty
// bounds are open.
func (s *Store) Daily(from, to string) ([]usage.DailyPoint, error) {
	if from == "" {
		from = "0000-00-00"
	}
	if to == "" {
		to = "9999-99-99"
	}

	rows, err := s.db.Query(`
		SELECT date, input_tokens, output_tokens, cache_read_tokens,
		       cache_creation_tokens, cost
		FROM daily_usage
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("get daily usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []usage.DailyPoint
	for rows.Next() {
		var p usage.DailyPoint
		if err := rows.Scan(&p.Date, &p.Usage.InputTokens, &p.Usage.OutputTokens,
			&p.Usage.CacheReadTokens, &p.Usage.CacheCreationTokens, &p.Usage.Cost); err != nil {
			return nil, fmt.Errorf("scan daily usage: %w", err)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

// History returns every archived day keyed by date.
func (s *Store) History() (map[string]usage.TokenUsageWithCost, error) {
	points, err := s.Daily("", "")
	if err != nil {
		return nil, err
	}
	history := make(map[string]usage.TokenUsageWithCost, len(points))
	for _, p := range points {
		history[p.Date] = p.Usage
	}
	return history, nil
}

// RecordPass appends a pass outcome to the pass log.
func (s *Store) RecordPass(rec PassRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO pass_log (id, finished_at, status, message)
		VALUES (?, ?, ?, ?)
	`, rec.ID, rec.FinishedAt.UTC().Format(tsLayout), rec.Status, rec.Message)

	if err != nil {
		return fmt.Errorf("record pass: %w", err)
	}

	return nil
}

// RecentPasses returns the latest pass log entries, newest first.
func (s *Store) RecentPasses(limit int) ([]PassRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, finished_at, status, COALESCE(message, '')
		FROM pass_log
		ORDER BY finished_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent passes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []PassRecord
	for rows.Next() {
		var rec PassRecord
		var finishedAt string
		if err := rows.Scan(&rec.ID, &finishedAt, &rec.Status, &rec.Message); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		rec.FinishedAt, _ = time.Parse(tsLayout, finishedAt)
		records = append(records, rec)
	}

	return records, rows.Err()
}
