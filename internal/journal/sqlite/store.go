package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schaermu/nfswatch/internal/journal"

	_ "modernc.org/sqlite"
)

// Store persists poll cycles and their change events inside a SQLite database.
type Store struct {
	db *sql.DB
}

// Open initializes (or reuses) a SQLite database at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS cycles (
        id TEXT PRIMARY KEY,
        started_at INTEGER NOT NULL,
        mode TEXT NOT NULL,
        delta INTEGER NOT NULL,
        entries INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        cycle_id TEXT NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
        type TEXT NOT NULL,
        path TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_cycle ON events(cycle_id);
CREATE INDEX IF NOT EXISTS idx_events_path ON events(path);
`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// RecordCycle stores a cycle and all of its events in one transaction.
func (s *Store) RecordCycle(ctx context.Context, cycle journal.Cycle) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
INSERT INTO cycles(id, started_at, mode, delta, entries)
VALUES(?, ?, ?, ?, ?)
`, cycle.ID, cycle.StartedAt.UnixNano(), cycle.Mode, cycle.Delta, cycle.Entries); err != nil {
		return fmt.Errorf("insert cycle %s: %w", cycle.ID, err)
	}

	if len(cycle.Events) > 0 {
		stmt, prepErr := tx.PrepareContext(ctx, `INSERT INTO events(cycle_id, type, path) VALUES(?, ?, ?)`)
		if prepErr != nil {
			err = fmt.Errorf("prepare event insert: %w", prepErr)
			return err
		}
		defer stmt.Close()

		for _, event := range cycle.Events {
			if _, err = stmt.ExecContext(ctx, cycle.ID, event.Type, event.Path); err != nil {
				return fmt.Errorf("insert event %s: %w", event.Path, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit cycle %s: %w", cycle.ID, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]journal.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT e.cycle_id, c.started_at, e.type, e.path
FROM events e JOIN cycles c ON c.id = e.cycle_id
ORDER BY e.seq DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []journal.Event
	for rows.Next() {
		var (
			event     journal.Event
			startedAt int64
		)
		if scanErr := rows.Scan(&event.CycleID, &startedAt, &event.Type, &event.Path); scanErr != nil {
			return nil, fmt.Errorf("scan event: %w", scanErr)
		}
		event.StartedAt = time.Unix(0, startedAt).UTC()
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// CycleCount returns the number of recorded cycles.
func (s *Store) CycleCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cycles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cycles: %w", err)
	}
	return n, nil
}
