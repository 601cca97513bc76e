package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"easel/internal/config"
)

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Entry is one persisted transcript line. Hidden entries are synthetic turns
// (continuations, retries) excluded from the human-facing transcript.
type Entry struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Hidden    bool      `json:"hidden"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists the chat transcript in SQLite so conversations survive
// client restarts.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS transcript_entries (
    id         TEXT PRIMARY KEY,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    hidden     INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcript_created_at ON transcript_entries (created_at);
`

// Open initializes or connects to the transcript database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "transcript.db")
	return OpenPath(dbPath)
}

// OpenPath opens a transcript store at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Append persists one entry. A missing id is assigned; a missing timestamp is
// set to now.
func (s *Store) Append(ctx context.Context, entry Entry) (Entry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if strings.TrimSpace(string(entry.Role)) == "" {
		entry.Role = RoleUser
	}

	hidden := 0
	if entry.Hidden {
		hidden = 1
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO transcript_entries (id, role, content, hidden, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID,
		string(entry.Role),
		entry.Content,
		hidden,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert transcript entry: %w", err)
	}
	return entry, nil
}

// Recent returns the newest entries in chronological order, including hidden
// ones. limit <= 0 returns everything.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return s.list(ctx, limit, true)
}

// Visible returns the newest human-facing entries in chronological order.
func (s *Store) Visible(ctx context.Context, limit int) ([]Entry, error) {
	return s.list(ctx, limit, false)
}

func (s *Store) list(ctx context.Context, limit int, includeHidden bool) ([]Entry, error) {
	query := `SELECT id, role, content, hidden, created_at FROM transcript_entries`
	if !includeHidden {
		query += ` WHERE hidden = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var hidden int
		var createdAt string
		if err := rows.Scan(&entry.ID, &entry.Role, &entry.Content, &hidden, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transcript entry: %w", err)
		}
		entry.Hidden = hidden != 0
		if parsed, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
			entry.CreatedAt = parsed
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Clear removes every entry and reports how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transcript_entries`)
	if err != nil {
		return 0, fmt.Errorf("clear transcript: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return removed, nil
}
