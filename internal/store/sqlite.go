package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        telegram_id INTEGER UNIQUE NOT NULL,
        first_name TEXT NOT NULL DEFAULT '',
        username TEXT NOT NULL DEFAULT '',
        tariff TEXT NOT NULL DEFAULT 'free',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS mood_entries (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id INTEGER NOT NULL,
        score INTEGER NOT NULL CHECK (score BETWEEN 1 AND 10),
        emotions_json TEXT NOT NULL DEFAULT '[]',
        note TEXT NOT NULL DEFAULT '',
        date DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (telegram_id)
    );

    CREATE TABLE IF NOT EXISTS chats (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        persona TEXT NOT NULL DEFAULT 'empathic',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (telegram_id)
    );

    -- seq keeps insertion order independent of timestamp resolution
    CREATE TABLE IF NOT EXISTS messages (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT UNIQUE NOT NULL, -- UUID
        chat_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'model')),
        text TEXT NOT NULL,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        is_error BOOLEAN NOT NULL DEFAULT FALSE,
        FOREIGN KEY (chat_id) REFERENCES chats (id)
    );

    CREATE INDEX IF NOT EXISTS idx_mood_entries_user ON mood_entries (user_id, date);
    CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages (chat_id, seq);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods
func (s *SQLiteStore) GetOrCreateUser(ctx context.Context, telegramID int64, profile Profile) (*User, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO users (telegram_id, first_name, username, tariff, created_at) VALUES (?, ?, ?, 'free', ?)",
		telegramID, profile.FirstName, profile.Username, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	user, err := s.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d missing after insert", telegramID)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, telegram_id, first_name, username, tariff, created_at FROM users WHERE telegram_id = ?",
		telegramID,
	).Scan(&user.ID, &user.TelegramID, &user.FirstName, &user.Username, &user.Tariff, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) SetUserTariff(ctx context.Context, telegramID int64, tariff string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET tariff = ? WHERE telegram_id = ?", tariff, telegramID)
	if err != nil {
		return fmt.Errorf("failed to update tariff: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Mood methods
func (s *SQLiteStore) CreateMoodEntry(ctx context.Context, entry *MoodEntry) error {
	if entry.Emotions == nil {
		entry.Emotions = []string{}
	}
	emotionsBytes, err := json.Marshal(entry.Emotions)
	if err != nil {
		return fmt.Errorf("failed to marshal emotions: %w", err)
	}
	if entry.Date.IsZero() {
		entry.Date = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO mood_entries (user_id, score, emotions_json, note, date) VALUES (?, ?, ?, ?, ?)",
		entry.UserID, entry.Score, string(emotionsBytes), entry.Note, entry.Date)
	if err != nil {
		return fmt.Errorf("failed to execute mood insert: %w", err)
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListMoodEntries(ctx context.Context, userID int64, limit int) ([]MoodEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, score, emotions_json, note, date FROM mood_entries WHERE user_id = ? ORDER BY date DESC, id DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query mood entries: %w", err)
	}
	defer rows.Close()

	var entries []MoodEntry
	for rows.Next() {
		var entry MoodEntry
		var emotionsJSON string
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Score, &emotionsJSON, &entry.Note, &entry.Date); err != nil {
			return nil, fmt.Errorf("failed to scan mood row: %w", err)
		}
		if err := json.Unmarshal([]byte(emotionsJSON), &entry.Emotions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal emotions for mood entry %d: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Chat methods
func (s *SQLiteStore) CreateChat(ctx context.Context, userID int64, persona string) (*Chat, error) {
	chatID := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chats (id, user_id, persona, created_at) VALUES (?, ?, ?, ?)",
		chatID, userID, persona, now)
	if err != nil {
		return nil, fmt.Errorf("failed to execute chat insert: %w", err)
	}
	return &Chat{ID: chatID, UserID: userID, Persona: persona, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetChatByID(ctx context.Context, chatID string, userID int64) (*Chat, error) {
	var chat Chat
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, persona, created_at FROM chats WHERE id = ? AND user_id = ?",
		chatID, userID,
	).Scan(&chat.ID, &chat.UserID, &chat.Persona, &chat.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return &chat, nil
}

func (s *SQLiteStore) GetChatsByUserID(ctx context.Context, userID int64) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, persona, created_at FROM chats WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var chat Chat
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Persona, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (s *SQLiteStore) UpdateChatPersona(ctx context.Context, chatID string, userID int64, persona string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE chats SET persona = ? WHERE id = ? AND user_id = ?", persona, chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to execute chat persona update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Message methods
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, chat_id, role, text, timestamp, is_error) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ChatID, msg.Role, msg.Text, msg.Timestamp, msg.IsError)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

// GetMessagesByChatID returns the most recent limit messages in insertion
// order. A limit of zero or less returns the whole chat.
func (s *SQLiteStore) GetMessagesByChatID(ctx context.Context, chatID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}
	query := `
        SELECT id, chat_id, role, text, timestamp, is_error FROM (
            SELECT seq, id, chat_id, role, text, timestamp, is_error
            FROM messages
            WHERE chat_id = ?
            ORDER BY seq DESC
            LIMIT ?
        ) ORDER BY seq ASC
    `
	rows, err := s.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Text, &msg.Timestamp, &msg.IsError); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
