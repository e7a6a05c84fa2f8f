package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"chatrelay/domain"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	feed *insertFeed

	// insertMu serializes message inserts so the feed observes them in
	// commit order.
	insertMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db, feed: newInsertFeed()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id TEXT NOT NULL,
			text TEXT NOT NULL,
			is_bot INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_owner ON messages(owner_id, created_at, id)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection and drops all feed subscribers.
func (s *SQLiteStore) Close() error {
	s.feed.closeAll()
	return s.db.Close()
}

// InsertMessage inserts a message, assigning its id and timestamp, and
// publishes the committed row to the insert feed.
func (s *SQLiteStore) InsertMessage(ctx context.Context, message *domain.Message) error {
	s.insertMu.Lock()
	defer s.insertMu.Unlock()

	message.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (owner_id, text, is_bot, created_at) VALUES (?, ?, ?, ?)`,
		message.OwnerID, message.Text, message.IsBot, message.CreatedAt)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read insert id: %w", err)
	}
	message.ID = id

	s.feed.publish(*message)
	return nil
}

// GetMessages retrieves all messages for an owner ordered by creation time.
func (s *SQLiteStore) GetMessages(ctx context.Context, ownerID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, text, is_bot, created_at FROM messages WHERE owner_id = ? ORDER BY created_at ASC, id ASC`,
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.OwnerID, &msg.Text, &msg.IsBot, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// SubscribeInserts subscribes to the message insert feed.
func (s *SQLiteStore) SubscribeInserts() (<-chan domain.Message, func()) {
	return s.feed.subscribe()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at) VALUES (?, ?, ?)`,
		session.Token, session.UserID, session.CreatedAt)
	return err
}

// GetSession retrieves a session by token. Returns (nil, nil) when the token
// is unknown.
func (s *SQLiteStore) GetSession(ctx context.Context, token string) (*domain.Session, error) {
	var session domain.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, created_at FROM sessions WHERE token = ?`,
		token).Scan(&session.Token, &session.UserID, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}
