package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"hospital-chat/internal/domain"
)

// OpenSQLite opens (or creates) a SQLite database at path and makes sure the
// chat schema exists.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("repository: create db directory %s: %w", dir, err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open db at %s: %w", path, err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: ping db at %s: %w", path, err)
	}
	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitSchema creates the chat_messages table.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chat_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chat_messages_timestamp ON chat_messages(timestamp, id);
	`)
	if err != nil {
		return fmt.Errorf("repository: init schema: %w", err)
	}
	return nil
}

// SQLiteStore keeps the chat log in a local SQLite table.
type SQLiteStore struct {
	db    *sql.DB
	clock *monotonicClock
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("repository: db must not be nil")
	}
	return &SQLiteStore{db: db, clock: newMonotonicClock(time.Now)}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, role domain.Role, content string) (domain.ChatTurn, error) {
	if !role.Valid() {
		return domain.ChatTurn{}, fmt.Errorf("repository: Append: invalid role %q", role)
	}
	createdAt := s.clock.Next()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (role, content, timestamp) VALUES (?, ?, ?)`,
		string(role), content, createdAt.UnixNano(),
	)
	if err != nil {
		return domain.ChatTurn{}, fmt.Errorf("repository: Append: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.ChatTurn{}, fmt.Errorf("repository: Append: get id: %w", err)
	}
	return domain.ChatTurn{
		ID:        strconv.FormatInt(id, 10),
		Role:      role,
		Content:   content,
		CreatedAt: createdAt,
	}, nil
}

// Latest returns up to limit turns, newest first.
func (s *SQLiteStore) Latest(ctx context.Context, limit int) ([]domain.ChatTurn, error) {
	if limit <= 0 {
		return []domain.ChatTurn{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, timestamp FROM chat_messages ORDER BY timestamp DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: Latest query: %w", err)
	}
	defer rows.Close()

	turns := make([]domain.ChatTurn, 0, limit)
	for rows.Next() {
		var (
			id      int64
			role    string
			content string
			nanos   int64
		)
		if err := rows.Scan(&id, &role, &content, &nanos); err != nil {
			return nil, fmt.Errorf("repository: Latest scan: %w", err)
		}
		turns = append(turns, domain.ChatTurn{
			ID:        strconv.FormatInt(id, 10),
			Role:      domain.Role(role),
			Content:   content,
			CreatedAt: time.Unix(0, nanos).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: Latest rows: %w", err)
	}
	return turns, nil
}
