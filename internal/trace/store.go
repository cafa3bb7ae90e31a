package trace

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store is the SQLite-backed trace log used by the simulator CLI.
// It records the event streams of scenario runs for later inspection
// with the trace command. It never feeds state back into the manager.
type Store struct {
	db *sql.DB
}

// Open creates or opens a trace database at the given path. Pass
// ":memory:" for an ephemeral store in tests.
//
// The database is configured with WAL mode, NORMAL synchronous mode,
// and a busy timeout; the schema is applied idempotently.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open trace database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to trace database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent command invocations.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// WriteEvents records a run's event stream. Duplicate (run, seq) pairs
// are silently ignored so re-recording a run is idempotent.
func (s *Store) WriteEvents(ctx context.Context, run string, events []Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run, seq, kind, object, owner, task)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, run, e.Seq, string(e.Kind), e.Object, e.Owner, e.Task); err != nil {
			return fmt.Errorf("write event seq %d: %w", e.Seq, err)
		}
	}
	return tx.Commit()
}

// Filter narrows ReadEvents. Zero values match everything.
type Filter struct {
	Run    string
	Kind   Kind
	Object string
}

// ReadEvents returns recorded events in (run, seq) order, narrowed by
// the filter.
func (s *Store) ReadEvents(ctx context.Context, f Filter) ([]Event, error) {
	query := `SELECT seq, kind, object, owner, task FROM events WHERE 1=1`
	var args []any
	if f.Run != "" {
		query += ` AND run = ?`
		args = append(args, f.Run)
	}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(f.Kind))
	}
	if f.Object != "" {
		query += ` AND object = ?`
		args = append(args, f.Object)
	}
	query += ` ORDER BY run, seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var kind string
		if err := rows.Scan(&e.Seq, &kind, &e.Object, &e.Owner, &e.Task); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = Kind(kind)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// Runs lists the distinct run names in the store.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT run FROM events ORDER BY run`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var run string
		if err := rows.Scan(&run); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
