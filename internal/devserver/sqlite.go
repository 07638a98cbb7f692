package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/streamchat/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		title TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL REFERENCES chats(id),
		content TEXT NOT NULL,
		is_ai INTEGER NOT NULL DEFAULT 0,
		task_id TEXT,
		structured_json TEXT,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, timestamp);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateChat creates a chat for a user and returns it.
func (s *SQLiteStore) CreateChat(ctx context.Context, userID int64) (*domain.Chat, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (user_id, created_at, updated_at) VALUES (?, ?, ?)`,
		userID, now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("chat insert id: %w", err)
	}
	return &domain.Chat{ID: id, UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
}

// GetChat retrieves a chat with its messages in chronological order.
func (s *SQLiteStore) GetChat(ctx context.Context, chatID int64) (*domain.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM chats WHERE id = ?`, chatID)

	var chat domain.Chat
	var title sql.NullString
	var createdAt, updatedAt int64
	err := row.Scan(&chat.ID, &chat.UserID, &title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat row: %w", err)
	}
	chat.Title = title.String
	chat.CreatedAt = time.Unix(createdAt, 0)
	chat.UpdatedAt = time.Unix(updatedAt, 0)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, content, is_ai, task_id, structured_json, timestamp
		 FROM messages WHERE chat_id = ? ORDER BY timestamp ASC, id ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg domain.Message
		var taskID, structured sql.NullString
		var ts int64
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Content, &msg.IsAI, &taskID, &structured, &ts); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.TaskID = taskID.String
		msg.Timestamp = time.Unix(ts, 0)
		if structured.Valid && structured.String != "" {
			if err := json.Unmarshal([]byte(structured.String), &msg.Structured); err != nil {
				return nil, fmt.Errorf("decode structured payload: %w", err)
			}
		}
		chat.Messages = append(chat.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return &chat, nil
}

// UserChats lists a user's chats, most recently updated first.
func (s *SQLiteStore) UserChats(ctx context.Context, userID int64) ([]domain.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM chats WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var chats []domain.Chat
	for rows.Next() {
		var chat domain.Chat
		var title sql.NullString
		var createdAt, updatedAt int64
		if err := rows.Scan(&chat.ID, &chat.UserID, &title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan chat row: %w", err)
		}
		chat.Title = title.String
		chat.CreatedAt = time.Unix(createdAt, 0)
		chat.UpdatedAt = time.Unix(updatedAt, 0)
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// AddMessage appends a message to a chat and returns its id.
func (s *SQLiteStore) AddMessage(ctx context.Context, msg *domain.Message) (int64, error) {
	var structured any
	if msg.HasStructured() {
		data, err := json.Marshal(msg.Structured)
		if err != nil {
			return 0, fmt.Errorf("encode structured payload: %w", err)
		}
		structured = string(data)
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, content, is_ai, task_id, structured_json, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ChatID, msg.Content, msg.IsAI, nullable(msg.TaskID), structured, ts.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("message insert id: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE chats SET updated_at = ? WHERE id = ?`, ts.Unix(), msg.ChatID); err != nil {
		return 0, fmt.Errorf("touch chat: %w", err)
	}

	msg.ID = id
	return id, nil
}

// UpdateTitle sets a chat's title.
func (s *SQLiteStore) UpdateTitle(ctx context.Context, chatID int64, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().Unix(), chatID)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update title rows: %w", err)
	}
	if n == 0 {
		return ErrChatNotFound
	}
	return nil
}

// DeleteChats removes the given chats and their messages.
func (s *SQLiteStore) DeleteChats(ctx context.Context, chatIDs []int64) error {
	if len(chatIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chatIDs)), ",")
	args := make([]any, len(chatIDs))
	for i, id := range chatIDs {
		args[i] = id
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE chat_id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chats WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("delete chats: %w", err)
	}
	return nil
}

// DeleteEmptyChats removes a user's chats that have no messages.
func (s *SQLiteStore) DeleteEmptyChats(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chats WHERE user_id = ?
		 AND NOT EXISTS (SELECT 1 FROM messages WHERE messages.chat_id = chats.id)`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete empty chats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleted rows: %w", err)
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
