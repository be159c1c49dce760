// ABOUTME: SQLite-backed log of operator-side activity using modernc.org/sqlite
// ABOUTME: Records registrations, dispatched commands, results, and evictions per client

package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Kind labels what a history event describes.
type Kind string

const (
	KindRegistered Kind = "registered"
	KindCommand    Kind = "command"
	KindResult     Kind = "result"
	KindEvicted    Kind = "evicted"
)

// Event is one recorded history row.
type Event struct {
	ID        string
	ClientID  string
	Kind      Kind
	Detail    string
	CreatedAt time.Time
}

// Store persists history events in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates a history store at the given path, creating parent directories
// and the schema as needed. A path of ":memory:" keeps events for the life of
// the process only.
func Open(path string) (*Store, error) {
	logger := slog.Default().With("component", "history")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	// One connection: writes are serialized, and an in-memory database stays
	// a single database instead of one per pooled connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("history store initialized", "path", path)
	return s, nil
}

// createSchema creates the events table if it doesn't exist
func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			client_id  TEXT NOT NULL,
			kind       TEXT NOT NULL,
			detail     TEXT NOT NULL,
			created_at TEXT NOT NULL,

			CHECK (kind IN ('registered', 'command', 'result', 'evicted'))
		);

		CREATE INDEX IF NOT EXISTS idx_events_client ON events(client_id, created_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Record appends one event for clientID. Failures are for the caller to log;
// history must never abort an operator loop.
func (s *Store) Record(ctx context.Context, clientID string, kind Kind, detail string) error {
	query := `
		INSERT INTO events (id, client_id, kind, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(),
		clientID,
		string(kind),
		detail,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting %s event: %w", kind, err)
	}

	s.logger.Debug("recorded event", "client_id", clientID, "kind", kind)
	return nil
}

// Recent returns up to limit events for clientID, newest first. A limit of
// zero or less falls back to 10.
func (s *Store) Recent(ctx context.Context, clientID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, client_id, kind, detail, created_at
		FROM events
		WHERE client_id = ?
		ORDER BY rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var kind, createdAt string
		if err := rows.Scan(&ev.ID, &ev.ClientID, &kind, &ev.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Kind = Kind(kind)
		ev.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing event timestamp %q: %w", createdAt, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return events, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
