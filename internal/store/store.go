// Package store persists chat messages per user and team in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Message is one persisted chat record. TS is the absolute timestamp
// converted from the platform's epoch-seconds value; it is never mutated
// after insert.
type Message struct {
	Type    string
	Channel string
	User    string
	Text    string
	TS      time.Time
	Team    string
}

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the message database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS message (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	type    TEXT NOT NULL,
	channel TEXT NOT NULL,
	user    TEXT NOT NULL,
	text    TEXT NOT NULL,
	ts      INTEGER NOT NULL,
	team    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_message_user ON message(user);
CREATE INDEX IF NOT EXISTS idx_message_team ON message(team);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert appends one message. User and channel are required.
func (s *Store) Insert(ctx context.Context, m Message) error {
	if m.User == "" || m.Channel == "" {
		return fmt.Errorf("insert message: user and channel are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message (type, channel, user, text, ts, team) VALUES (?, ?, ?, ?, ?, ?)`,
		m.Type, m.Channel, m.User, m.Text, m.TS.UnixNano(), m.Team)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// FindByUser returns up to limit messages authored by user, in insertion
// order.
func (s *Store) FindByUser(ctx context.Context, user string, limit int) ([]Message, error) {
	if user == "" {
		return nil, fmt.Errorf("find messages: user is required")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT type, channel, user, text, ts, team FROM message WHERE user = ? ORDER BY id ASC LIMIT ?`,
		user, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var ts int64
		if err := rows.Scan(&m.Type, &m.Channel, &m.User, &m.Text, &ts, &m.Team); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.TS = time.Unix(0, ts)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// RemoveByUser deletes every message authored by user.
func (s *Store) RemoveByUser(ctx context.Context, user string) error {
	if user == "" {
		return fmt.Errorf("remove messages: user is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM message WHERE user = ?`, user); err != nil {
		return fmt.Errorf("remove messages: %w", err)
	}
	return nil
}

// Count reports how many messages are stored.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM message`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// Optimize runs periodic upkeep: it truncates the WAL and refreshes query
// planner statistics. It never deletes message rows.
func (s *Store) Optimize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `ANALYZE`); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	return nil
}
