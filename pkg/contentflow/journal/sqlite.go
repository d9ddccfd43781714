package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteJournal persists failures to SQLite.
// It is suitable for single-process production use.
type SQLiteJournal struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteJournal opens or creates a journal database.
// The path should be a file path (e.g., "./failures.db") or ":memory:" for testing.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection, so ":memory:" is a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS failures (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			component_id TEXT NOT NULL,
			event_id TEXT NOT NULL,
			cycle_id TEXT NOT NULL,
			category TEXT NOT NULL,
			message TEXT NOT NULL,
			occurred_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_failures_component
		ON failures(kind, component_id)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteJournal{db: db}, nil
}

// Report implements Reporter.
func (s *SQLiteJournal) Report(ctx context.Context, f Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.OccurredAt.IsZero() {
		f.OccurredAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failures (id, kind, component_id, event_id, cycle_id, category, message, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID.String(), f.Kind, f.ComponentID, f.EventID, f.CycleID, f.Category, f.Message,
		f.OccurredAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("report failure: %w", err)
	}
	return nil
}

// where renders filter as a WHERE clause and its arguments.
func (f Filter) where() (string, []any) {
	var conds []string
	var args []any
	add := func(col, v string) {
		if v != "" {
			conds = append(conds, col+" = ?")
			args = append(args, v)
		}
	}
	add("kind", f.Kind)
	add("component_id", f.ComponentID)
	add("event_id", f.EventID)
	add("cycle_id", f.CycleID)

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List implements Journal.
func (s *SQLiteJournal) List(ctx context.Context, filter Filter) ([]Failure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	where, args := filter.where()
	query := `
		SELECT id, kind, component_id, event_id, cycle_id, category, message, occurred_at
		FROM failures` + where + ` ORDER BY seq`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		var id, occurred string
		if err := rows.Scan(&id, &f.Kind, &f.ComponentID, &f.EventID, &f.CycleID,
			&f.Category, &f.Message, &occurred); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse failure id %q: %w", id, err)
		}
		f.OccurredAt, err = time.Parse(time.RFC3339Nano, occurred)
		if err != nil {
			return nil, fmt.Errorf("parse failure time %q: %w", occurred, err)
		}
		out = append(out, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return out, nil
}

// Count implements Journal.
func (s *SQLiteJournal) Count(ctx context.Context, filter Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	where, args := filter.where()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failures`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return n, nil
}

// Close implements Journal.
func (s *SQLiteJournal) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
